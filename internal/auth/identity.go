package auth

import (
	stderrors "errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyToken   = stderrors.New("empty token")
	ErrMissingClaim = stderrors.New("missing subject claim")
)

// SubjectFromToken decodes token without verifying its signature and returns
// the "sub" claim, falling back to "user_id". Verification is the remote
// API's job; the identity here only labels the payload.
func SubjectFromToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}

	for _, key := range []string{"sub", "user_id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrMissingClaim
}
