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

type UsersHTTP struct {
	Accounts *service.AccountService
	Projects *service.ProjectService
}

func (h *UsersHTTP) Info(c echo.Context) error {
	sess := auth.SessionFrom(c)
	u := sess.User
	return c.JSON(http.StatusOK, map[string]any{
		"info": map[string]any{
			"username":     u.Username,
			"name":         u.Name,
			"email":        u.Email,
			"role":         u.Role,
			"unit_id":      u.UnitID,
			"totp_enabled": u.TOTPEnabled,
			"active":       u.Active,
		},
	})
}

func (h *UsersHTTP) Add(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.add")
	sess := auth.SessionFrom(c)

	var req transport.NewUserRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_user_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	user, err := h.Accounts.CreateUser(ctx, &sess.Principal, req)
	if err != nil {
		return err
	}
	if req.Project != "" {
		if err := h.Projects.GrantAccess(ctx, sess, req.Project, user.Username); err != nil {
			return err
		}
	}

	l.Info("add_user_success", "new_user", user.Username)
	return c.JSON(http.StatusCreated, map[string]string{"message": "User created", "username": user.Username})
}

func (h *UsersHTTP) Activation(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.activation")

	var req transport.UserActivationRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("activation_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	var active bool
	switch req.Action {
	case "reactivate", "activate":
		active = true
	case "deactivate":
	default:
		return errs.Validation("Unexpected action: %s", req.Action)
	}
	if err := h.Accounts.SetActive(ctx, auth.SessionFrom(c).Principal, req.Username, active); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "User account status updated"})
}

func (h *UsersHTTP) CreateUnit(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "units.create")

	var req transport.NewUnitRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_unit_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	p := auth.SessionFrom(c).Principal
	unit, err := h.Accounts.CreateUnit(ctx, &p, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, unit)
}
