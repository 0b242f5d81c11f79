package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionRevoked     = errors.New("session revoked or expired")
	ErrNoSecret           = errors.New("jwt secret not configured")
)

// ForbiddenError indicates the caller does not own the resource.
type ForbiddenError struct {
	Resource string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s belongs to another climber", e.Resource)
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword returns ErrInvalidCredentials on mismatch.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// Issuer signs and verifies HS256 bearer tokens. The token ID is the auth
// session ID so a token can be revoked server side.
type Issuer struct {
	Secret string
	TTL    time.Duration
}

func (i Issuer) ttl() time.Duration {
	if i.TTL > 0 {
		return i.TTL
	}
	return 30 * 24 * time.Hour
}

// Issue returns a signed token and its expiry.
func (i Issuer) Issue(userID, username, sessionID string, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(i.Secret) == "" {
		return "", time.Time{}, ErrNoSecret
	}
	exp := now.Add(i.ttl()).UTC().Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "abyss-climber",
		},
		Username: username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses token and checks its signature and expiry at now.
func (i Issuer) Verify(token string, now time.Time) (Claims, error) {
	if strings.TrimSpace(i.Secret) == "" {
		return Claims{}, ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	claims := Claims{}
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(i.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidCredentials
	}
	if claims.Subject == "" || claims.ID == "" {
		return Claims{}, ErrInvalidCredentials
	}
	return claims, nil
}

// NewAPIKey returns a random plaintext key.
func NewAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "abk_" + hex.EncodeToString(buf), nil
}
