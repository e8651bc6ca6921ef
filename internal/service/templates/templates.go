// Package templates renders the transactional email bodies.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"Socially/internal/domain/models"
	"Socially/internal/domain/service"
)

//go:embed html/*.html
var files embed.FS

const lockImageURL = "https://e7.pngegg.com/pngimages/201/134/png-clipart-gray-lock-icon-password-computer-security-scalable-graphics-icon-unlocked-lock-s-noun-project-security-hacker.png"

// Renderer implements service.Renderer over the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.ParseFS(files, "html/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) ForgotPassword(username, resetLink string) (string, error) {
	return r.render("forgot-password.html", map[string]string{
		"Username":  username,
		"ResetLink": resetLink,
		"ImageURL":  lockImageURL,
	})
}

func (r *Renderer) ResetPassword(p models.ResetPasswordParams) (string, error) {
	return r.render("reset-password.html", map[string]string{
		"Username":  p.Username,
		"Email":     p.Email,
		"IPAddress": p.IPAddress,
		"Date":      p.Date,
		"ImageURL":  lockImageURL,
	})
}

func (r *Renderer) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

var _ service.Renderer = (*Renderer)(nil)
