package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the stored record. The password hash lives in the bson "password"
// field and is never serialized outward: every response goes through Public().
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	Phone        string             `bson:"phone"`
	PasswordHash string             `bson:"password"`
	Address      string             `bson:"address,omitempty"`
	State        string             `bson:"state"`
	City         string             `bson:"city"`
	Country      string             `bson:"country"`
	Pincode      string             `bson:"pincode"`
	ProfileImage string             `bson:"profile_image,omitempty"`
	Role         string             `bson:"role"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

type PublicUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address,omitempty"`
	State        string    `json:"state"`
	City         string    `json:"city"`
	Country      string    `json:"country"`
	Pincode      string    `json:"pincode"`
	ProfileImage string    `json:"profileImage,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID.Hex(),
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		Address:      u.Address,
		State:        u.State,
		City:         u.City,
		Country:      u.Country,
		Pincode:      u.Pincode,
		ProfileImage: u.ProfileImage,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// UserPreview is the shape used by the stats endpoint for recent signups.
type UserPreview struct {
	ID        string    `json:"id" bson:"-"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}
