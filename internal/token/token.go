// Package token signs and parses the HS256 access and refresh JWTs.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/models"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the access token payload.
type Claims struct {
	ID              string `json:"id"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Name            string `json:"name,omitempty"`
	Role            string `json:"role,omitempty"`
	IsEmailVerified bool   `json:"isEmailVerified"`
	IsPhoneVerified bool   `json:"isPhoneVerified"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the subject id.
type RefreshClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

type Issuer struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewIssuer(cfg config.JWTConfig) *Issuer {
	return &Issuer{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of the issuer reading time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// SessionTTL is the lifetime of an OTP-completed login.
func (i *Issuer) SessionTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return i.cfg.RememberMeTTL
	}
	return i.cfg.SessionTTL
}

func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Issuer:    i.cfg.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func UserClaims(u *models.User) Claims {
	return Claims{
		ID:              u.ID.Hex(),
		Email:           u.Email,
		Phone:           u.Phone,
		Name:            u.Name,
		Role:            string(u.Role),
		IsEmailVerified: u.IsEmailVerified,
		IsPhoneVerified: u.IsPhoneVerified,
	}
}

func VendorClaims(v *models.Vendor) Claims {
	return Claims{ID: v.ID.Hex(), Email: v.Email, Name: v.Name, Role: "vendor"}
}

// Access signs claims with JWT_SECRET for ttl.
func (i *Issuer) Access(claims Claims, ttl time.Duration) (string, error) {
	claims.RegisteredClaims = i.registered(claims.ID, ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Refresh signs an id-only token with JWT_REFRESH_SECRET.
func (i *Issuer) Refresh(id string) (string, error) {
	claims := RefreshClaims{ID: id, RegisteredClaims: i.registered(id, i.cfg.RefreshTTL)}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.RefreshSecret))
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) ParseAccess(raw string) (*Claims, error) {
	claims := &Claims{}
	if err := i.parse(raw, claims, i.cfg.Secret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) ParseRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(raw, claims, i.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) parse(raw string, claims jwt.Claims, secret string) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// Opaque returns a random flow token for registration, login sessions and resets.
func Opaque() string {
	return uuid.NewString()
}
