package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/Skotchmaster/data_delivery/internal/errs"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"validation", errs.Validation("Invalid status: %s", "x"), http.StatusBadRequest, `{"message":"Invalid status: x","kind":"ValidationError"}`},
		{"empty project", errs.EmptyProject("gen00001"), http.StatusNotFound, `{"message":"The project 'gen00001' is empty","kind":"EmptyProjectError"}`},
		{"storage", errs.StorageConnection(errors.New("dial tcp")), http.StatusServiceUnavailable, `{"message":"Could not connect to the object storage","kind":"StorageConnectionError"}`},
		{"internal hides cause", errors.New("pq: relation does not exist"), http.StatusInternalServerError, `{"message":"Internal server error","kind":"InternalError"}`},
		{"echo error", echo.NewHTTPError(http.StatusNotFound), http.StatusNotFound, `{"message":"Not Found"}`},
		{"echo error message", echo.NewHTTPError(http.StatusBadRequest, "bad json"), http.StatusBadRequest, `{"message":"bad json"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(tc.err, c)

			assert.Equal(t, tc.code, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}
