package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/middleware/auth"
	"github.com/Skotchmaster/data_delivery/internal/service"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

type AuthHTTP struct {
	Svc      *service.AuthService
	Accounts *service.AccountService
}

func (h *AuthHTTP) Token(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.token")

	username, password, ok := c.Request().BasicAuth()
	if !ok {
		l.Warn("token_failed", "status", 401, "reason", "missing basic auth")
		return errs.Authentication("Missing or incorrect credentials")
	}
	res, err := h.Svc.IssueToken(ctx, username, password)
	if err != nil {
		return err
	}

	l.Info("token_success", "username", username)
	return c.JSON(http.StatusOK, transport.TokenResponse{Token: res.Token, SecondFactorRequired: res.SecondFactorRequired})
}

func (h *AuthHTTP) SecondFactor(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.second_factor")

	var req transport.SecondFactorRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("second_factor_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	token, err := h.Svc.SecondFactor(ctx, auth.SessionFrom(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.TokenResponse{Token: token})
}

func (h *AuthHTTP) EnableTOTP(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := h.Svc.EnableTOTP(ctx, auth.SessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AuthHTTP) ActivateTOTP(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.activate_totp")

	var req transport.TOTPActivateRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("activate_totp_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	if err := h.Svc.ActivateTOTP(ctx, auth.SessionFrom(c), req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "TOTP is now your second factor"})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.change_password")

	var req transport.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("change_password_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	if err := h.Accounts.ChangePassword(ctx, auth.SessionFrom(c), req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password changed. Please request a new token"})
}
