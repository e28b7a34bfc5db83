package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/middleware/auth"
	"github.com/Skotchmaster/data_delivery/internal/service"
	"github.com/Skotchmaster/data_delivery/internal/transport"
	"github.com/Skotchmaster/data_delivery/internal/util"
)

type ProjectHTTP struct {
	Svc *service.ProjectService
}

func (h *ProjectHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "project.create")

	var req transport.CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("project_create_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("No project information found when attempting to create project")
	}
	p, err := h.Svc.CreateProject(ctx, auth.SessionFrom(c), req)
	if err != nil {
		return err
	}

	l.Info("project_create_success", "project", p.PublicID)
	return c.JSON(http.StatusOK, transport.CreateProjectResponse{
		ProjectID: p.PublicID,
		Message:   "Added new project '" + p.Title + "'",
	})
}

func (h *ProjectHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	projects, err := h.Svc.ListProjects(ctx, auth.SessionFrom(c))
	if err != nil {
		return err
	}
	// Paging is opt-in; without ?page every project is returned.
	if p := c.QueryParam("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil {
			return errs.Validation("Invalid page: %s", p)
		}
		size, _ := strconv.Atoi(c.QueryParam("size"))
		projects = util.Page(projects, page, size)
	}
	return c.JSON(http.StatusOK, map[string]any{"project_info": projects})
}

func (h *ProjectHTTP) PublicKey(c echo.Context) error {
	ctx := c.Request().Context()
	key, err := h.Svc.PublicKey(ctx, auth.SessionFrom(c), c.QueryParam("project"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"public": key})
}

func (h *ProjectHTTP) PrivateKey(c echo.Context) error {
	ctx := c.Request().Context()
	key, err := h.Svc.PrivateKey(ctx, auth.SessionFrom(c), c.QueryParam("project"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"private": key})
}

func (h *ProjectHTTP) Status(c echo.Context) error {
	ctx := c.Request().Context()
	p, history, err := h.Svc.StatusHistory(ctx, auth.SessionFrom(c), c.QueryParam("project"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"current_status": p.CurrentStatus, "history": history})
}

func (h *ProjectHTTP) ChangeStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "project.change_status")

	var req transport.ChangeStatusRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("change_status_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	msg, err := h.Svc.ChangeStatus(ctx, auth.SessionFrom(c), c.QueryParam("project"), req.NewStatus)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": msg})
}

func (h *ProjectHTTP) RotateKeys(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.Svc.RotateKeys(ctx, auth.SessionFrom(c), c.QueryParam("project")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Project keys rotated"})
}

func (h *ProjectHTTP) GrantAccess(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "project.grant_access")

	var req transport.GrantAccessRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("grant_access_failed", "status", 400, "reason", "invalid body", "error", err)
		return errs.Validation("invalid body")
	}
	if err := h.Svc.GrantAccess(ctx, auth.SessionFrom(c), c.QueryParam("project"), req.Username); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Access granted"})
}
