package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Vendor struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email              string             `bson:"email" json:"email"`
	Name               string             `bson:"name,omitempty" json:"name,omitempty"`
	PasswordHash       string             `bson:"password" json:"-"`
	RefreshTokenDigest string             `bson:"refreshTokenDigest,omitempty" json:"-"`
	LastLogin          *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}
