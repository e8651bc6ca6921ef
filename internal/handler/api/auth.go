package api

import (
	"context"
	"net/http"

	"Socially/internal/domain/models"
	xhttp "Socially/pkg/http"
	xlogger "Socially/pkg/logger"

	"github.com/labstack/echo/v4"
)

type PasswordService interface {
	Forgot(ctx context.Context, email string) error
	Reset(ctx context.Context, token, password, confirm, ip string) error
}

type SignupService interface {
	Create(ctx context.Context, req *models.SignupRequest) (*models.User, error)
}

// AuthHandler serves signup and the password flows.
type AuthHandler struct {
	logger   *xlogger.Logger
	password PasswordService
	signup   SignupService
}

func NewAuthHandler(logger *xlogger.Logger, password PasswordService, signup SignupService) *AuthHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &AuthHandler{logger: logger.Named("api.auth"), password: password, signup: signup}
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/signup", h.Signup)
	g.POST("/forgot-password", h.ForgotPassword)
	g.POST("/reset-password/:token", h.ResetPassword)
}

func (h *AuthHandler) Signup(c echo.Context) error {
	req := &models.SignupRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	user, err := h.signup.Create(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("signup failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.MessageResponse(c, http.StatusCreated, "User created successfully",
		&models.SignupResponse{Message: "User created successfully", User: user})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	req := &models.ForgotPasswordRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.password.Forgot(c.Request().Context(), req.Email); err != nil {
		h.logger.Warn("forgot password failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.MessageResponse(c, http.StatusOK, "Password reset email sent.", nil)
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	req := &models.ResetPasswordRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	err := h.password.Reset(c.Request().Context(), req.Token, req.Password, req.ConfirmPassword, c.RealIP())
	if err != nil {
		h.logger.Warn("reset password failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.MessageResponse(c, http.StatusOK, "Password successfully updated.", nil)
}
