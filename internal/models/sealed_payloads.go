package models

import "time"

// SealedPayload is an envelope-encrypted blob: AES-GCM ciphertext plus the wrapped data key.
type SealedPayload struct {
	Ciphertext   []byte    `bson:"ciphertext" json:"ciphertext"`
	Nonce        []byte    `bson:"nonce" json:"nonce"`
	EncryptedDEK []byte    `bson:"encryptedDek" json:"encryptedDek"`
	KeyID        string    `bson:"keyId" json:"keyId"`
	Version      int       `bson:"version" json:"version"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// PendingRegistration is what register seals into the registration OTP record.
type PendingRegistration struct {
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone"`
	PasswordHash string `json:"passwordHash"`
	Role         Role   `json:"role"`
	Purpose      string `json:"purpose"`
	PropertyType string `json:"propertyType"`
	SpecificType string `json:"specificType"`
}
