package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/service"
)

const sessionKey = "session"

type Authenticator interface {
	Authenticate(ctx context.Context, token string, allowPendingMFA bool) (*service.Session, error)
}

type Middleware struct {
	Auth Authenticator
	// SecondFactorPath is reachable before the second factor is completed.
	SecondFactorPath string
}

func bearer(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		base := logging.FromContext(ctx)
		l := base.With("mw", "require_auth")

		token := bearer(c)
		if token == "" {
			l.Warn("auth_failed", "status", 401, "reason", "missing bearer token")
			return errs.Authentication("No token")
		}
		sess, err := m.Auth.Authenticate(ctx, token, c.Path() == m.SecondFactorPath)
		if err != nil {
			l.Warn("auth_failed", "status", errs.HTTPStatus(errs.KindOf(err)), "error", err)
			return err
		}

		scoped := base.With("username", sess.User.Username, "role", sess.User.Role)
		c.SetRequest(c.Request().WithContext(logging.IntoContext(ctx, scoped)))
		c.Set(sessionKey, sess)
		return next(c)
	}
}

// RequireAction rejects callers whose role can never perform a. Checks
// that need the target resource happen in the service.
func RequireAction(a access.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := SessionFrom(c)
			if sess == nil {
				return errs.Authentication("No token")
			}
			if err := access.AuthorizeRole(sess.Principal, a).Err(); err != nil {
				logging.FromContext(c.Request().Context()).Warn("access_denied", "status", 403, "action", string(a), "error", err)
				return err
			}
			return next(c)
		}
	}
}

func SessionFrom(c echo.Context) *service.Session {
	s, _ := c.Get(sessionKey).(*service.Session)
	return s
}
