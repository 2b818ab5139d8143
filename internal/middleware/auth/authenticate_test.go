package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/userhub/userhub/internal/models"
	"github.com/userhub/userhub/internal/repository"
	"github.com/userhub/userhub/internal/tokens"
)

type fakeRoles struct {
	roles map[primitive.ObjectID]string
}

func (f *fakeRoles) RoleByID(_ context.Context, id primitive.ObjectID) (string, error) {
	role, ok := f.roles[id]
	if !ok {
		return "", repository.ErrUserNotFound
	}
	return role, nil
}

func newGate(roles map[primitive.ObjectID]string) *Gate {
	return &Gate{
		Tokens: tokens.NewService([]byte("access-secret"), []byte("refresh-secret")),
		Store:  &fakeRoles{roles: roles},
	}
}

func runGate(t *testing.T, gate *Gate, authHeader string, mw ...echo.MiddlewareFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		id, ok := IdentityFrom(c.Request().Context())
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"userId": id.UserID, "role": id.Role})
	}
	inner := handler
	for i := len(mw) - 1; i >= 0; i-- {
		inner = mw[i](inner)
	}
	return rec, gate.Authenticate(inner)(c)
}

func TestAuthenticateMissingHeader(t *testing.T) {
	gate := newGate(nil)

	_, err := runGate(t, gate, "")
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	gate := newGate(nil)

	_, err := runGate(t, gate, "Token abc")
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	gate := newGate(nil)

	_, err := runGate(t, gate, "Bearer not.a.token")
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	id := primitive.NewObjectID()
	gate := newGate(map[primitive.ObjectID]string{id: models.RoleAdmin})
	gate.Tokens.AccessTTL = -time.Minute

	token, err := gate.Tokens.IssueAccessToken(id.Hex())
	require.NoError(t, err)

	_, err = runGate(t, gate, "Bearer "+token)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthenticateUnknownUserFailsClosed(t *testing.T) {
	gate := newGate(nil)

	token, err := gate.Tokens.IssueAccessToken(primitive.NewObjectID().Hex())
	require.NoError(t, err)

	_, err = runGate(t, gate, "Bearer "+token)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthenticateAttachesIdentity(t *testing.T) {
	id := primitive.NewObjectID()
	gate := newGate(map[primitive.ObjectID]string{id: models.RoleUser})

	token, err := gate.Tokens.IssueAccessToken(id.Hex())
	require.NoError(t, err)

	rec, err := runGate(t, gate, "Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), id.Hex())
	require.Contains(t, rec.Body.String(), models.RoleUser)
}

func TestRequireRoleDeniesNonAdmin(t *testing.T) {
	id := primitive.NewObjectID()
	gate := newGate(map[primitive.ObjectID]string{id: models.RoleUser})

	token, err := gate.Tokens.IssueAccessToken(id.Hex())
	require.NoError(t, err)

	_, err = runGate(t, gate, "Bearer "+token, RequireRole(models.RoleAdmin))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)
}

func TestRequireRoleAllowsAdmin(t *testing.T) {
	id := primitive.NewObjectID()
	gate := newGate(map[primitive.ObjectID]string{id: models.RoleAdmin})

	token, err := gate.Tokens.IssueAccessToken(id.Hex())
	require.NoError(t, err)

	rec, err := runGate(t, gate, "Bearer "+token, RequireRole(models.RoleAdmin))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequireRole(models.RoleAdmin)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)
}
