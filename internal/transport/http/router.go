package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/userhub/userhub/internal/handlers"
	"github.com/userhub/userhub/internal/middleware/auth"
	"github.com/userhub/userhub/internal/models"
)

type Deps struct {
	Auth   *handlers.AuthHandler
	Users  *handlers.UserHandler
	Search *handlers.SearchHandler
	Gate   *auth.Gate
	// UploadDir is served statically when disk storage is in use.
	UploadDir string
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	api := e.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", d.Auth.Register)
	authGroup.POST("/login", d.Auth.Login)
	authGroup.POST("/refresh", d.Auth.Refresh)
	authGroup.POST("/logout", d.Auth.Logout)

	api.GET("/protected", protected, d.Gate.Authenticate, auth.RequireRole(models.RoleAdmin))

	users := api.Group("/users")
	users.GET("/stats", d.Users.Stats)
	users.GET("/me", d.Users.Me, d.Gate.Authenticate)
	users.GET("", d.Users.List, d.Gate.Authenticate, auth.RequireRole(models.RoleAdmin))
	if d.Search != nil {
		users.GET("/search", d.Search.Handle, d.Gate.Authenticate, auth.RequireRole(models.RoleAdmin))
	}
	users.GET("/:id", d.Users.GetByID, d.Gate.Authenticate)
	users.PUT("/:id", d.Users.Update, d.Gate.Authenticate)
	users.DELETE("/:id", d.Users.Delete, d.Gate.Authenticate, auth.RequireRole(models.RoleAdmin))

	if d.UploadDir != "" {
		e.Static("/uploads", d.UploadDir)
	}
}

func protected(c echo.Context) error {
	id, _ := auth.IdentityFrom(c.Request().Context())
	return c.JSON(http.StatusOK, echo.Map{
		"userId": id.UserID,
		"role":   id.Role,
	})
}
