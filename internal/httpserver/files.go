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

type FileHTTP struct {
	Svc *service.FileService
}

func (h *FileHTTP) New(c echo.Context) error {
	return h.register(c, false)
}

func (h *FileHTTP) Update(c echo.Context) error {
	return h.register(c, true)
}

func (h *FileHTTP) register(c echo.Context, update bool) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "file.register")

	var req transport.NewFileRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("file_register_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	sess := auth.SessionFrom(c)
	project := c.QueryParam("project")

	var err error
	if update {
		_, err = h.Svc.UpdateFile(ctx, sess, project, req)
	} else {
		_, err = h.Svc.RegisterFile(ctx, sess, project, req)
	}
	if err != nil {
		return err
	}
	verb := "added"
	if update {
		verb = "updated"
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "File '" + req.Name + "' " + verb + " to db."})
}

func (h *FileHTTP) Match(c echo.Context) error {
	ctx := c.Request().Context()
	var names []string
	if err := c.Bind(&names); err != nil {
		return errs.Validation("invalid body")
	}
	found, err := h.Svc.MatchFiles(ctx, auth.SessionFrom(c), c.QueryParam("project"), names)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"files": found})
}

func (h *FileHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := h.Svc.ListFiles(ctx, auth.SessionFrom(c), c.QueryParam("project"), c.QueryParam("subpath"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *FileHTTP) Remove(c echo.Context) error {
	ctx := c.Request().Context()
	var names []string
	if err := c.Bind(&names); err != nil {
		return errs.Validation("invalid body")
	}
	res, err := h.Svc.RemoveFiles(ctx, auth.SessionFrom(c), c.QueryParam("project"), names)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *FileHTTP) RemoveDir(c echo.Context) error {
	ctx := c.Request().Context()
	var folders []string
	if err := c.Bind(&folders); err != nil {
		return errs.Validation("invalid body")
	}
	res, err := h.Svc.RemoveFolders(ctx, auth.SessionFrom(c), c.QueryParam("project"), folders)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *FileHTTP) Info(c echo.Context) error {
	return h.contents(c, false)
}

func (h *FileHTTP) InfoAll(c echo.Context) error {
	return h.contents(c, true)
}

func (h *FileHTTP) contents(c echo.Context, all bool) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "file.info")

	var req transport.ContentsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("file_info_failed", "status", 400, "reason", "invalid request", "error", err)
		return errs.Validation("invalid request")
	}
	if all {
		req.Paths = nil
		req.All = true
	}
	res, err := h.Svc.FetchProjectContents(ctx, auth.SessionFrom(c), c.QueryParam("project"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *FileHTTP) UploadURL(c echo.Context) error {
	ctx := c.Request().Context()
	u, err := h.Svc.UploadURL(ctx, auth.SessionFrom(c), c.QueryParam("project"), c.QueryParam("name_in_bucket"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"url": u})
}

func (h *FileHTTP) Usage(c echo.Context) error {
	ctx := c.Request().Context()
	res, err := h.Svc.Usage(ctx, auth.SessionFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
