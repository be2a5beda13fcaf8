package model

import "github.com/golang-jwt/jwt/v5"

// ResultClaims are JWT claims for the results-page access token minted
// when a session completes or is skipped to results.
type ResultClaims struct {
	SessionID string `json:"sessionId"`
	Partial   bool   `json:"partial,omitempty"`
	jwt.RegisteredClaims
}
