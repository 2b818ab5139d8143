package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/userhub/userhub/internal/logging"
	"github.com/userhub/userhub/internal/middleware/auth"
	"github.com/userhub/userhub/internal/models"
	"github.com/userhub/userhub/internal/mykafka"
	"github.com/userhub/userhub/internal/repository"
	"github.com/userhub/userhub/internal/service/search"
	"github.com/userhub/userhub/internal/storage"
	"github.com/userhub/userhub/internal/util"
)

type UserHandler struct {
	Store    repository.UserStore
	Producer *mykafka.Producer
	ES       *elasticsearch.Client
	ESIndex  string
	Files    storage.Store
}

type UpdateUserRequest struct {
	Name    *string `json:"name" form:"name" validate:"omitempty,min=3"`
	Email   *string `json:"email" form:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone" form:"phone" validate:"omitempty,numeric,min=10,max=15"`
	Address *string `json:"address" form:"address" validate:"omitempty,max=150"`
	State   *string `json:"state" form:"state"`
	City    *string `json:"city" form:"city"`
	Country *string `json:"country" form:"country"`
	Pincode *string `json:"pincode" form:"pincode" validate:"omitempty,numeric,min=4,max=10"`
	Role    *string `json:"role" form:"role" validate:"omitempty,oneof=user admin"`
}

func (h *UserHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	skip, limit := util.Calculate(page, limit)
	if page < 1 {
		page = 1
	}

	users, total, err := h.Store.List(ctx, repository.ListQuery{
		Search: c.QueryParam("search"),
		Skip:   skip,
		Limit:  limit,
	})
	if err != nil {
		logging.FromContext(ctx).Error("user list failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "server error")
	}

	public := make([]models.PublicUser, len(users))
	for i := range users {
		public[i] = users[i].Public()
	}

	return c.JSON(http.StatusOK, echo.Map{
		"users": public,
		"total": total,
		"page":  page,
		"pages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

func (h *UserHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.Store.Stats(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("stats failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch stats")
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *UserHandler) Me(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "access token required")
	}
	oid, err := primitive.ObjectIDFromHex(id.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	user, err := h.Store.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "server error")
	}

	return c.JSON(http.StatusOK, echo.Map{"user": user.Public()})
}

func (h *UserHandler) GetByID(c echo.Context) error {
	ctx := c.Request().Context()

	oid, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	user, err := h.Store.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch user")
	}

	return c.JSON(http.StatusOK, echo.Map{"user": user.Public()})
}

func (h *UserHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_update")

	oid, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	upd := repository.UserUpdate{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		State:   req.State,
		City:    req.City,
		Country: req.Country,
		Pincode: req.Pincode,
		Role:    req.Role,
	}

	if fh, ferr := c.FormFile("profileImage"); ferr == nil {
		path, err := saveProfileImage(c, h.Files, fh)
		if err != nil {
			return err
		}
		upd.ProfileImage = &path
	}

	user, err := h.Store.Update(ctx, oid, upd)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		case errors.Is(err, repository.ErrDuplicateEmail), errors.Is(err, repository.ErrDuplicatePhone):
			return echo.NewHTTPError(http.StatusConflict, "email or phone already in use")
		default:
			l.Error("update failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to update user")
		}
	}

	h.publish(c, user.ID.Hex(), map[string]interface{}{
		"type":   "user_updated",
		"userID": user.ID.Hex(),
		"email":  user.Email,
	})
	h.index(c, user.Public())

	return c.JSON(http.StatusCreated, echo.Map{
		"message": fmt.Sprintf("%s User updated", user.Email),
	})
}

func (h *UserHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_delete")

	idParam := c.Param("id")
	oid, err := primitive.ObjectIDFromHex(idParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	if err := h.Store.Delete(ctx, oid); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		l.Error("delete failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete user")
	}

	h.publish(c, idParam, map[string]interface{}{
		"type":   "user_deleted",
		"userID": idParam,
	})
	h.deindex(c, idParam)

	return c.JSON(http.StatusCreated, echo.Map{
		"message": fmt.Sprintf("%s - User deleted successfully", idParam),
	})
}

func (h *UserHandler) publish(c echo.Context, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func (h *UserHandler) index(c echo.Context, user models.PublicUser) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := search.IndexUser(ctx, h.ES, h.ESIndex, user); err != nil {
		logging.FromContext(c.Request().Context()).Error("es index error", "error", err)
	}
}

func (h *UserHandler) deindex(c echo.Context, id string) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := search.DeleteUser(ctx, h.ES, h.ESIndex, id); err != nil {
		logging.FromContext(c.Request().Context()).Error("es delete error", "error", err)
	}
}
