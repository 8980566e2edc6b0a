package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"sisi-realtime/internal/model"
)

var (
	ErrMissingSecret = errors.New("missing secret")
	ErrMissingUser   = errors.New("missing user id")
	ErrInvalidExpiry = errors.New("invalid expiry")
)

// Claims is the session token shape. The dev backend signs it; the client
// reads it unverified to learn who it is and when the session ends.
type Claims struct {
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string { return c.Subject }

// ExpiredAt reports whether the token is past its exp. Tokens without exp
// never expire.
func (c *Claims) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time)
}

type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret: secret,
		Expiry: 24 * time.Hour,
		Issuer: "sisi-devserver",
	}
}

// IssueToken signs a token naming user, valid for cfg.Expiry from now.
func IssueToken(user model.User, cfg TokenConfig, now time.Time) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case user.ID == "":
		return "", ErrMissingUser
	case cfg.Expiry <= 0:
		return "", ErrInvalidExpiry
	}

	claims := Claims{
		Username:    user.Username,
		DisplayName: user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// VerifyToken checks signature, algorithm, expiry and, when configured,
// issuer. The subject must name a user.
func VerifyToken(tokenString string, cfg TokenConfig) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.UserID() == "" {
		return nil, ErrMissingUser
	}
	return claims, nil
}

// ReadClaims decodes a token without checking its signature.
func ReadClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
