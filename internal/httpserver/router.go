package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/middleware/auth"
	"github.com/Skotchmaster/data_delivery/internal/repo"
)

const SecondFactorPath = "/user/second_factor"

type Deps struct {
	Repo     *repo.GormRepo
	AuthMW   *auth.Middleware
	Auth     *AuthHTTP
	Users    *UsersHTTP
	Projects *ProjectHTTP
	Files    *FileHTTP
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := d.Repo.Ping(c.Request().Context()); err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	e.POST("/user/token", d.Auth.Token)

	api := e.Group("", d.AuthMW.RequireAuth)
	can := auth.RequireAction

	user := api.Group("/user")
	user.POST("/second_factor", d.Auth.SecondFactor)
	user.POST("/totp/enable", d.Auth.EnableTOTP)
	user.POST("/totp/activate", d.Auth.ActivateTOTP)
	user.POST("/password", d.Auth.ChangePassword)
	user.GET("/info", d.Users.Info)
	user.POST("/add", d.Users.Add, can(access.ManageUsers))
	user.POST("/activation", d.Users.Activation, can(access.ManageUsers))

	api.POST("/unit/create", d.Users.CreateUnit, can(access.ManageUsers))

	proj := api.Group("/proj")
	proj.POST("/create", d.Projects.Create, can(access.CreateProject))
	proj.GET("/list", d.Projects.List, can(access.ListProjects))
	proj.GET("/public", d.Projects.PublicKey, can(access.ReadPublicKey))
	proj.GET("/private", d.Projects.PrivateKey, can(access.ReadPrivateKey))
	proj.GET("/status", d.Projects.Status, can(access.ReadProject))
	proj.POST("/status", d.Projects.ChangeStatus, can(access.ChangeStatus))
	proj.POST("/rotate_keys", d.Projects.RotateKeys, can(access.RotateKeys))
	proj.POST("/access", d.Projects.GrantAccess, can(access.ManageAccess))

	file := api.Group("/file")
	file.POST("/new", d.Files.New, can(access.UploadFile))
	file.PUT("/update", d.Files.Update, can(access.UploadFile))
	file.POST("/match", d.Files.Match, can(access.UploadFile))
	file.DELETE("/rm", d.Files.Remove, can(access.DeleteFile))
	file.DELETE("/rmdir", d.Files.RemoveDir, can(access.DeleteFile))
	file.GET("/info", d.Files.Info, can(access.ReadProject))
	file.GET("/all/info", d.Files.InfoAll, can(access.ReadProject))

	api.GET("/files/list", d.Files.List, can(access.ReadProject))
	api.GET("/s3/proj", d.Files.UploadURL, can(access.UploadFile))
	api.GET("/usage", d.Files.Usage, can(access.ViewUsage))
}
