package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthRejected is returned when a credential fails validation. Terminal
// for the connection attempt; clients must not retry with the same credential.
var ErrAuthRejected = errors.New("auth rejected")

// Claims represents the JWT claims carried by a chatwire credential.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Validator validates opaque credentials handed over during the transport
// handshake and resolves them to a user id.
type Validator struct {
	cfg *JWTConfig
}

// NewValidator creates a credential validator.
func NewValidator(cfg *JWTConfig) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateToken parses and validates a credential, returning its claims.
// Any failure is reported as ErrAuthRejected.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthRejected, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrAuthRejected)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrAuthRejected)
	}

	if v.cfg.Issuer != "" && claims.Issuer != v.cfg.Issuer {
		return nil, fmt.Errorf("%w: invalid issuer", ErrAuthRejected)
	}

	if v.cfg.Audience != "" {
		validAudience := false
		for _, aud := range claims.Audience {
			if aud == v.cfg.Audience {
				validAudience = true
				break
			}
		}
		if !validAudience {
			return nil, fmt.Errorf("%w: invalid audience", ErrAuthRejected)
		}
	}

	return claims, nil
}

// GenerateToken creates a credential for the given user. The external auth
// collaborator issues these in production; tests and tooling use it directly.
func GenerateToken(cfg *JWTConfig, userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}
