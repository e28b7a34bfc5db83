package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

// ErrorHandler renders every error as {"message", "kind"}. Internal errors
// are logged with their cause and rendered without it.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   transport.ErrorResponse
		he     *echo.HTTPError
	)
	switch {
	case errors.As(err, &he):
		status = he.Code
		body.Message = http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			body.Message = m
		}
	default:
		kind := errs.KindOf(err)
		status = errs.HTTPStatus(kind)
		body = transport.ErrorResponse{Message: errs.MessageOf(err), Kind: string(kind)}
		if kind == errs.KindInternal {
			logging.FromContext(c.Request().Context()).Error("internal_error", "error", err)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}
