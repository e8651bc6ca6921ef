package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Socially/internal/domain/models"
	domrepo "Socially/internal/domain/repository"
	"Socially/pkg/cache"
)

const (
	authPrefix         = "auth"
	authEmailPrefix    = "auth:email"
	authUsernamePrefix = "auth:username"
	authResetPrefix    = "auth:reset"
)

// AuthStore keeps auth records in the cache service with secondary keys for
// email, username and reset token.
type AuthStore struct {
	cache cache.Service
}

func NewAuthStore(c cache.Service) *AuthStore {
	return &AuthStore{cache: c}
}

// Create writes a, replacing any record with the same id.
func (s *AuthStore) Create(ctx context.Context, a *models.AuthUser) error {
	if err := s.put(ctx, a); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, cache.GenerateKey(authEmailPrefix, cache.NormalizeKeyPart(a.Email)), a.ID, 0); err != nil {
		return fmt.Errorf("index auth email: %w", err)
	}
	if err := s.cache.Set(ctx, cache.GenerateKey(authUsernamePrefix, cache.NormalizeKeyPart(a.Username)), a.ID, 0); err != nil {
		return fmt.Errorf("index auth username: %w", err)
	}
	return nil
}

func (s *AuthStore) GetByEmail(ctx context.Context, email string) (*models.AuthUser, error) {
	return s.byIndex(ctx, cache.GenerateKey(authEmailPrefix, cache.NormalizeKeyPart(email)))
}

// Claim writes both indexes with SetNX so two concurrent signups for the same
// username or email cannot both succeed.
func (s *AuthStore) Claim(ctx context.Context, id, username, email string, ttl time.Duration) (bool, error) {
	uKey := cache.GenerateKey(authUsernamePrefix, cache.NormalizeKeyPart(username))
	eKey := cache.GenerateKey(authEmailPrefix, cache.NormalizeKeyPart(email))

	ok, err := s.cache.SetNX(ctx, uKey, id, ttl)
	if err != nil {
		return false, fmt.Errorf("claim username: %w", err)
	}
	if !ok {
		return false, nil
	}
	ok, err = s.cache.SetNX(ctx, eKey, id, ttl)
	if err == nil && ok {
		return true, nil
	}
	if derr := s.cache.Delete(ctx, uKey); derr != nil {
		return false, errors.Join(err, fmt.Errorf("undo username claim: %w", derr))
	}
	if err != nil {
		return false, fmt.Errorf("claim email: %w", err)
	}
	return false, nil
}

func (s *AuthStore) Release(ctx context.Context, id, username, email string) error {
	keys := []string{
		cache.GenerateKey(authUsernamePrefix, cache.NormalizeKeyPart(username)),
		cache.GenerateKey(authEmailPrefix, cache.NormalizeKeyPart(email)),
	}
	for _, key := range keys {
		var owner string
		err := s.cache.Get(ctx, key, &owner)
		if errors.Is(err, cache.ErrCacheMiss) || (err == nil && owner != id) {
			continue
		}
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if err := s.cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
	}
	return nil
}

// GetByResetToken returns the account holding token, expired or not.
func (s *AuthStore) GetByResetToken(ctx context.Context, token string) (*models.AuthUser, error) {
	return s.byIndex(ctx, cache.GenerateKey(authResetPrefix, token))
}

func (s *AuthStore) UpdatePasswordToken(ctx context.Context, id, token string, expires time.Time) error {
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if a.PasswordResetToken != "" {
		if err := s.cache.Delete(ctx, cache.GenerateKey(authResetPrefix, a.PasswordResetToken)); err != nil {
			return fmt.Errorf("drop old reset token: %w", err)
		}
	}

	a.PasswordResetToken = token
	a.PasswordResetExpires = expires
	if err := s.put(ctx, a); err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	ttl := time.Until(expires)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.cache.Set(ctx, cache.GenerateKey(authResetPrefix, token), id, ttl); err != nil {
		return fmt.Errorf("index reset token: %w", err)
	}
	return nil
}

// UpdatePassword sets the password hash and clears any reset token.
func (s *AuthStore) UpdatePassword(ctx context.Context, id, hash string) error {
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if a.PasswordResetToken != "" {
		if err := s.cache.Delete(ctx, cache.GenerateKey(authResetPrefix, a.PasswordResetToken)); err != nil {
			return fmt.Errorf("drop reset token: %w", err)
		}
	}
	a.Password = hash
	a.PasswordResetToken = ""
	a.PasswordResetExpires = time.Time{}
	return s.put(ctx, a)
}

func (s *AuthStore) byIndex(ctx context.Context, key string) (*models.AuthUser, error) {
	var id string
	if err := s.cache.Get(ctx, key, &id); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("auth index %s: %w", key, err)
	}
	return s.get(ctx, id)
}

func (s *AuthStore) get(ctx context.Context, id string) (*models.AuthUser, error) {
	var a models.AuthUser
	if err := s.cache.Get(ctx, cache.GenerateKey(authPrefix, id), &a); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("get auth %s: %w", id, err)
	}
	return &a, nil
}

func (s *AuthStore) put(ctx context.Context, a *models.AuthUser) error {
	if err := s.cache.Set(ctx, cache.GenerateKey(authPrefix, a.ID), a, 0); err != nil {
		return fmt.Errorf("put auth %s: %w", a.ID, err)
	}
	return nil
}

var _ domrepo.AuthStore = (*AuthStore)(nil)
