package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/userhub/userhub/internal/repository"
	"github.com/userhub/userhub/internal/tokens"
)

// RoleLookup is the slice of the store the gate needs: one role read per
// authenticated request, no caching.
type RoleLookup interface {
	RoleByID(ctx context.Context, id primitive.ObjectID) (string, error)
}

type Gate struct {
	Tokens *tokens.Service
	Store  RoleLookup
}

// Authenticate extracts the bearer token, verifies it and resolves the role
// from the store. A verified token whose user no longer exists fails closed
// with 401.
func (g *Gate) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "access token required")
		}

		userID, err := g.Tokens.VerifyAccessToken(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		oid, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		ctx := c.Request().Context()
		role, err := g.Store.RoleByID(ctx, oid)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "auth error")
		}

		c.SetRequest(c.Request().WithContext(WithIdentity(ctx, Identity{UserID: userID, Role: role})))
		return next(c)
	}
}

// RequireRole allows the request through only when the identity attached by
// Authenticate carries one of the given roles. Must run after Authenticate.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c.Request().Context())
			if !ok || !contains(roles, id.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "Access denied")
			}
			return next(c)
		}
	}
}

func contains(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
