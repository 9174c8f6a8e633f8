package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleAgent   Role = "agent"
	RoleBuilder Role = "builder"
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email           string             `bson:"email,omitempty" json:"email,omitempty"`
	Phone           string             `bson:"phone,omitempty" json:"phone,omitempty"`
	PasswordHash    string             `bson:"password,omitempty" json:"-"`
	Name            string             `bson:"name" json:"name"`
	Role            Role               `bson:"role" json:"role"`
	Purpose         string             `bson:"purpose,omitempty" json:"purpose,omitempty"`
	PropertyType    string             `bson:"propertyType,omitempty" json:"propertyType,omitempty"`
	SpecificType    string             `bson:"specificType,omitempty" json:"specificType,omitempty"`
	IsEmailVerified bool               `bson:"isEmailVerified" json:"isEmailVerified"`
	IsPhoneVerified bool               `bson:"isPhoneVerified" json:"isPhoneVerified"`
	LastLogin       *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// HasContact reports whether the record satisfies the email-or-phone invariant.
func (u *User) HasContact() bool {
	return u.Email != "" || u.Phone != ""
}
