package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"Socially/internal/domain/models"
	"Socially/internal/domain/repository"
	"Socially/internal/domain/service"
	"Socially/internal/queues"
	"Socially/internal/service/ratelimit"
	"Socially/pkg/cache"
	xhttp "Socially/pkg/http"
	"Socially/pkg/logger"
	"Socially/pkg/util"

	"golang.org/x/crypto/bcrypt"
)

// queueRetryAfter is the hint sent to clients when a broker is unreachable.
const queueRetryAfter = 5 * time.Second

// EmailProducer enqueues email jobs.
type EmailProducer interface {
	AddEmailJob(ctx context.Context, name string, data *models.EmailJob) error
}

type PasswordConfig struct {
	ClientURL  string
	TokenTTL   time.Duration
	BcryptCost int
}

// Password implements the forgot-password and reset-password flows. Both
// answer as soon as the email job is queued.
type Password struct {
	cfg      PasswordConfig
	auth     repository.AuthStore
	renderer service.Renderer
	email    EmailProducer
	limiter  *ratelimit.Limiter
	logger   *logger.Logger
	now      func() time.Time
}

func NewPassword(cfg PasswordConfig, auth repository.AuthStore, renderer service.Renderer, email EmailProducer, limiter *ratelimit.Limiter, lgr *logger.Logger) *Password {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Password{
		cfg:      cfg,
		auth:     auth,
		renderer: renderer,
		email:    email,
		limiter:  limiter,
		logger:   lgr.Named("password"),
		now:      time.Now,
	}
}

// Forgot issues a reset token for email and queues the reset link.
func (p *Password) Forgot(ctx context.Context, email string) error {
	// one bucket per account, however the address is spelled
	email = cache.NormalizeKeyPart(email)
	if p.limiter != nil && !p.limiter.Allow(email) {
		return xhttp.TooManyRequestsError("Too many password reset requests").
			WithRetryAfter(p.limiter.Delay(email))
	}

	existing, err := p.auth.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return xhttp.BadRequestError("Invalid credentials")
		}
		return xhttp.InternalError("Could not look up account").WithError(err)
	}

	token, err := resetToken()
	if err != nil {
		return xhttp.InternalError("Could not create reset token").WithError(err)
	}
	if err := p.auth.UpdatePasswordToken(ctx, existing.ID, token, p.now().Add(p.cfg.TokenTTL)); err != nil {
		return xhttp.InternalError("Could not store reset token").WithError(err)
	}

	resetLink := fmt.Sprintf("%s/reset-password/%s", p.cfg.ClientURL, token)
	html, err := p.renderer.ForgotPassword(existing.Username, resetLink)
	if err != nil {
		return xhttp.InternalError("Could not render email").WithError(err)
	}

	return p.enqueue(ctx, &models.EmailJob{Template: html, ReceiverEmail: email, Subject: "Reset your password"})
}

// Reset replaces the password of the account holding token and queues a
// confirmation email.
func (p *Password) Reset(ctx context.Context, token, password, confirm, ip string) error {
	if password != confirm {
		return xhttp.BadRequestError("Passwords do not match")
	}

	now := p.now()
	existing, err := p.auth.GetByResetToken(ctx, token)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return xhttp.InternalError("Could not look up reset token").WithError(err)
	}
	if existing == nil || !existing.ResetTokenValid(token, now) {
		return xhttp.BadRequestError("Reset token has expired.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return xhttp.InternalError("Could not hash password").WithError(err)
	}
	if err := p.auth.UpdatePassword(ctx, existing.ID, string(hash)); err != nil {
		return xhttp.InternalError("Could not update password").WithError(err)
	}

	html, err := p.renderer.ResetPassword(models.ResetPasswordParams{
		Username:  existing.Username,
		Email:     existing.Email,
		IPAddress: ip,
		Date:      util.FormatDisplay(now),
	})
	if err != nil {
		return xhttp.InternalError("Could not render email").WithError(err)
	}

	return p.enqueue(ctx, &models.EmailJob{Template: html, ReceiverEmail: existing.Email, Subject: "Password Reset Confirmation"})
}

func (p *Password) enqueue(ctx context.Context, job *models.EmailJob) error {
	if err := p.email.AddEmailJob(ctx, queues.JobForgotPasswordEmail, job); err != nil {
		p.logger.Error("queue email failed", logger.String("subject", job.Subject), logger.Error(err))
		return xhttp.ServiceUnavailableError("Email could not be queued, try again later").
			WithRetryAfter(queueRetryAfter).
			WithError(err)
	}
	return nil
}

func resetToken() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
