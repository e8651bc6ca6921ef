package service

import "Socially/internal/domain/models"

// Renderer produces the HTML bodies of transactional emails.
type Renderer interface {
	ForgotPassword(username, resetLink string) (string, error)
	ResetPassword(params models.ResetPasswordParams) (string, error)
}
