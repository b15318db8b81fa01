package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// TokenField is the handshake field the TokenAuthenticator reads the JWT from.
const TokenField = "token"

// TokenAuthenticator authenticates sessions locally by validating a JWT
// carried in the handshake fields against an HMAC secret. It is an
// alternative to ServiceAuthenticator for deployments without a dedicated
// authentication service. Any validation failure (missing token, bad
// signature, expired claims) is an explicit rejection, never an error.
type TokenAuthenticator struct {
	secret []byte
}

// NewTokenAuthenticator creates a TokenAuthenticator with the given HMAC
// secret. HS256, HS384, and HS512 signatures are accepted.
//
// Parameters:
//   - secret: The HMAC secret shared with the token issuer
//
// Returns:
//   - A new TokenAuthenticator instance
func NewTokenAuthenticator(secret []byte) *TokenAuthenticator {
	return &TokenAuthenticator{secret: secret}
}

// Authenticate implements Authenticator. The context is accepted for
// interface symmetry; validation is local and does not block.
func (a *TokenAuthenticator) Authenticate(_ context.Context, req Request) (bool, error) {
	tokenString, ok := req.Fields[TokenField]
	if !ok || tokenString == "" {
		return false, nil
	}

	token, err := jwt.Parse(
		tokenString,
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	)
	if err != nil {
		return false, nil
	}

	return token.Valid, nil
}
