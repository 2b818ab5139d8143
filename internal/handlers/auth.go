package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/userhub/userhub/internal/hash"
	"github.com/userhub/userhub/internal/logging"
	"github.com/userhub/userhub/internal/models"
	"github.com/userhub/userhub/internal/mykafka"
	"github.com/userhub/userhub/internal/repository"
	"github.com/userhub/userhub/internal/service/search"
	"github.com/userhub/userhub/internal/storage"
	"github.com/userhub/userhub/internal/tokens"
)

const maxUploadSize = 2 << 20 // 2 MiB, same cap as the upload middleware it replaces

type AuthHandler struct {
	Store         repository.UserStore
	Tokens        *tokens.Service
	Producer      *mykafka.Producer
	ES            *elasticsearch.Client
	ESIndex       string
	Files         storage.Store
	SecureCookies bool
}

type RegisterRequest struct {
	Name     string `json:"name" form:"name" validate:"required,min=3"`
	Email    string `json:"email" form:"email" validate:"required,email"`
	Phone    string `json:"phone" form:"phone" validate:"required,numeric,min=10,max=15"`
	Password string `json:"password" form:"password" validate:"required,min=6"`
	Address  string `json:"address" form:"address" validate:"omitempty,max=150"`
	State    string `json:"state" form:"state" validate:"required"`
	City     string `json:"city" form:"city" validate:"required"`
	Country  string `json:"country" form:"country" validate:"required"`
	Pincode  string `json:"pincode" form:"pincode" validate:"required,numeric,min=4,max=10"`
}

type LoginRequest struct {
	User     string `json:"user" form:"user"`
	Password string `json:"password" form:"password"`
}

func CreateCookie(name, value, path string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	exists, err := h.Store.ExistsByEmailOrPhone(ctx, req.Email, req.Phone)
	if err != nil {
		l.Error("register failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to register the user")
	}
	if exists {
		return echo.NewHTTPError(http.StatusConflict, "user already registered please login")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to register the user")
	}

	// Role is fixed here: clients cannot self-elevate to admin.
	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: pwHash,
		Address:      req.Address,
		State:        req.State,
		City:         req.City,
		Country:      req.Country,
		Pincode:      req.Pincode,
		Role:         models.RoleUser,
	}

	if fh, ferr := c.FormFile("profileImage"); ferr == nil {
		path, err := saveProfileImage(c, h.Files, fh)
		if err != nil {
			return err
		}
		user.ProfileImage = path
	}

	id, err := h.Store.Create(ctx, &user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicatePhone) {
			return echo.NewHTTPError(http.StatusConflict, "user already registered please login")
		}
		l.Error("register failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to register the user")
	}

	h.publish(c, id.Hex(), map[string]interface{}{
		"type":   "user_registered",
		"userID": id.Hex(),
		"email":  user.Email,
	})
	h.index(c, user.Public())

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "user registered successfully!",
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.User == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email/phone and password required")
	}

	user, err := h.Store.FindByIdentifier(ctx, req.User)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		l.Error("login failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	accessToken, err := h.Tokens.IssueAccessToken(user.ID.Hex())
	if err != nil {
		l.Error("login failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create access token")
	}
	refreshToken, err := h.Tokens.IssueRefreshToken(user.ID.Hex())
	if err != nil {
		l.Error("login failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create refresh token")
	}

	c.SetCookie(CreateCookie("refreshToken", refreshToken, "/", time.Now().Add(h.Tokens.RefreshTTL), h.SecureCookies))

	h.publish(c, user.ID.Hex(), map[string]interface{}{
		"type":   "user_logged_in",
		"userID": user.ID.Hex(),
		"email":  user.Email,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"message":     "Login Success!",
		"accessToken": accessToken,
		"user":        user.Public(),
	})
}

// Refresh mints a new access token from the refresh cookie and slides the
// refresh window. The user must still exist in the store.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	cookie, err := c.Cookie("refreshToken")
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token required")
	}

	userID, err := h.Tokens.VerifyRefreshToken(cookie.Value)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	if _, err := h.Store.FindByID(ctx, oid); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}

	accessToken, err := h.Tokens.IssueAccessToken(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create access token")
	}
	refreshToken, err := h.Tokens.IssueRefreshToken(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create refresh token")
	}

	c.SetCookie(CreateCookie("refreshToken", refreshToken, "/", time.Now().Add(h.Tokens.RefreshTTL), h.SecureCookies))

	return c.JSON(http.StatusOK, echo.Map{
		"accessToken": accessToken,
	})
}

// Logout only clears the cookies: tokens are stateless, there is no
// server-side revocation list to update.
func (h *AuthHandler) Logout(c echo.Context) error {
	expired := time.Now().Add(-time.Hour)
	c.SetCookie(CreateCookie("refreshToken", "", "/", expired, h.SecureCookies))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out",
	})
}

func saveProfileImage(c echo.Context, files storage.Store, fh *multipart.FileHeader) (string, error) {
	if fh.Size > maxUploadSize {
		return "", echo.NewHTTPError(http.StatusBadRequest, "image too large")
	}
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", echo.NewHTTPError(http.StatusBadRequest, "JPG/PNG only")
	}

	src, err := fh.Open()
	if err != nil {
		return "", echo.NewHTTPError(http.StatusInternalServerError, "failed to read image")
	}
	defer src.Close()

	path, err := files.Save(c.Request().Context(), fh.Filename, contentType, src)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusInternalServerError, "failed to store image")
	}
	return path, nil
}

func (h *AuthHandler) publish(c echo.Context, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func (h *AuthHandler) index(c echo.Context, user models.PublicUser) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := search.IndexUser(ctx, h.ES, h.ESIndex, user); err != nil {
		logging.FromContext(c.Request().Context()).Error("es index error", "error", err)
	}
}
