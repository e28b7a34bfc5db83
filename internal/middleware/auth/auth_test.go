package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/service"
)

type stubAuth struct {
	sess        *service.Session
	pendingOnly bool
}

func (s *stubAuth) Authenticate(ctx context.Context, token string, allowPendingMFA bool) (*service.Session, error) {
	if token != "good" {
		return nil, errs.Authentication("Invalid token")
	}
	if s.pendingOnly && !allowPendingMFA {
		return nil, errs.Authentication("Two-factor authentication is required!")
	}
	return s.sess, nil
}

func session(role string) *service.Session {
	return &service.Session{
		User:      &models.User{Username: "alice", Role: role},
		Principal: access.Principal{Username: "alice", Role: role, Active: true},
	}
}

func serve(t *testing.T, mw *Middleware, path, header string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	var handlerErr error
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handlerErr = err
		_ = c.NoContent(errs.HTTPStatus(errs.KindOf(err)))
	}
	g := e.Group("", mw.RequireAuth)
	g.GET(path, h, m...)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, handlerErr
}

func ok(c echo.Context) error {
	if SessionFrom(c) == nil {
		return c.NoContent(http.StatusTeapot)
	}
	return c.NoContent(http.StatusOK)
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		path    string
		pending bool
		code    int
	}{
		{"missing header", "", "/proj/list", false, http.StatusUnauthorized},
		{"wrong scheme", "Basic good", "/proj/list", false, http.StatusUnauthorized},
		{"bad token", "Bearer bad", "/proj/list", false, http.StatusUnauthorized},
		{"valid token", "Bearer good", "/proj/list", false, http.StatusOK},
		{"lowercase scheme", "bearer good", "/proj/list", false, http.StatusOK},
		{"pending mfa blocked", "Bearer good", "/proj/list", true, http.StatusUnauthorized},
		{"pending mfa second factor", "Bearer good", "/user/second_factor", true, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			stub := &stubAuth{sess: session(models.RoleUnitAdmin), pendingOnly: tc.pending}
			mw := &Middleware{Auth: stub, SecondFactorPath: "/user/second_factor"}
			rec, err := serve(t, mw, tc.path, tc.header, ok)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code != http.StatusOK {
				assert.ErrorIs(t, err, errs.ErrAuthentication)
			}
		})
	}
}

func TestRequireAction(t *testing.T) {
	t.Parallel()

	stub := &stubAuth{sess: session(models.RoleResearcher)}
	mw := &Middleware{Auth: stub}

	rec, err := serve(t, mw, "/proj/private", "Bearer good", ok, RequireAction(access.ReadPrivateKey))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.ErrorIs(t, err, errs.ErrAccessDenied)

	rec, err = serve(t, mw, "/proj/public", "Bearer good", ok, RequireAction(access.ReadPublicKey))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
