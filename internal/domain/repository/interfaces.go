package repository

import (
	"context"
	"errors"
	"time"

	"Socially/internal/domain/models"
)

// ErrNotFound is returned by stores when no record matches.
var ErrNotFound = errors.New("record not found")

// MailTransport delivers one HTML email.
type MailTransport interface {
	SendEmail(ctx context.Context, receiverEmail, subject, body string) error
}

type AuthStore interface {
	Create(ctx context.Context, a *models.AuthUser) error
	GetByEmail(ctx context.Context, email string) (*models.AuthUser, error)
	// Claim reserves username and email for id until ttl passes or Create
	// makes them permanent. It reports false when either is in use.
	Claim(ctx context.Context, id, username, email string, ttl time.Duration) (bool, error)
	// Release drops the claims id still holds.
	Release(ctx context.Context, id, username, email string) error
	GetByResetToken(ctx context.Context, token string) (*models.AuthUser, error)
	UpdatePasswordToken(ctx context.Context, id, token string, expires time.Time) error
	UpdatePassword(ctx context.Context, id, hash string) error
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// UserCache holds users read on hot paths, written before the store catches up.
type UserCache interface {
	Save(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
}
