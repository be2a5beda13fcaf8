package service

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"aireadiness/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenService mints and validates results-page access tokens. A token is
// minted when a session completes or skips to results, and gates reads of
// the durable session record.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service keyed by JWT_SECRET.
func NewTokenService() *TokenService {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}

	return &TokenService{
		secret: []byte(secret),
		ttl:    24 * time.Hour,
	}
}

// MintResultToken signs a token granting access to one session's results.
func (s *TokenService) MintResultToken(sessionID string, partial bool) (string, error) {
	claims := &model.ResultClaims{
		SessionID: sessionID,
		Partial:   partial,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateResultToken parses and verifies a results token.
func (s *TokenService) ValidateResultToken(tokenString string) (*model.ResultClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.ResultClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.ResultClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
