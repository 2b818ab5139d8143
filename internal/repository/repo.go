package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/userhub/userhub/internal/models"
)

var (
	ErrDuplicateEmail = errors.New("email already exists")
	ErrDuplicatePhone = errors.New("phone already exists")
	ErrUserNotFound   = errors.New("user not found")
)

type ListQuery struct {
	Search string
	Skip   int
	Limit  int
}

// UserUpdate carries the fields of a partial update; nil means "leave as is".
type UserUpdate struct {
	Name         *string
	Email        *string
	Phone        *string
	Address      *string
	State        *string
	City         *string
	Country      *string
	Pincode      *string
	ProfileImage *string
	Role         *string
}

type Stats struct {
	TotalUsers  int64                `json:"totalUsers"`
	TotalCities int                  `json:"totalCities"`
	RecentUsers []models.UserPreview `json:"recentUsers"`
}

// UserStore is the access contract of the credential store. Everything it
// returns has the password hash stripped except the credential lookups used
// for login.
type UserStore interface {
	Create(ctx context.Context, u *models.User) (primitive.ObjectID, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	// FindByIdentifier matches the identifier against either email or phone
	// and returns the full record, hash included.
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	RoleByID(ctx context.Context, id primitive.ObjectID) (string, error)
	List(ctx context.Context, q ListQuery) ([]models.User, int64, error)
	Update(ctx context.Context, id primitive.ObjectID, upd UserUpdate) (*models.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	Stats(ctx context.Context) (*Stats, error)
}
