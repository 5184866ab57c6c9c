// Package jwtauth validates bearer JWTs against a configured issuer's JWKS,
// in Strict/Optional/Permissive modes, following a
// validate-then-resolve-identity shape.
package jwtauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
)

// ErrMissingToken is returned when Strict mode requires a bearer token and
// none was presented.
var ErrMissingToken = errors.New("jwtauth: missing bearer token")

// ErrInvalidToken wraps any signature, expiry, issuer, or audience failure.
var ErrInvalidToken = errors.New("jwtauth: invalid token")

// Claims is the minimal claim set the CEL `jwt` context variable and
// downstream policies consult.
type Claims struct {
	Subject   string
	Issuer    string
	Audiences []string
	Raw       jwt.MapClaims
}

// KeySetSource resolves the key used to verify a token's signature,
// keyed by the token's `kid` header; JWKSSource in this package is the
// fetching, caching implementation.
type KeySetSource interface {
	Key(ctx context.Context, keyID string) (any, error)
}

// Validator validates bearer tokens against one Policy's issuer/audience
// configuration and JwtMode.
type Validator struct {
	Policy *store.Policy
	Keys   KeySetSource
}

// Validate checks token (the raw bearer string, without the "Bearer "
// prefix) and returns its claims. An empty token is accepted in
// Permissive and Optional modes (nil claims, nil error) and rejected with
// ErrMissingToken in Strict mode.
func (v *Validator) Validate(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		switch v.Policy.JwtMode {
		case store.JwtPermissive:
			return nil, nil
		case store.JwtOptional:
			return nil, nil
		default:
			return nil, ErrMissingToken
		}
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.Keys.Key(ctx, kid)
	}, jwt.WithIssuer(v.Policy.Issuer), jwt.WithAudience(v.Policy.Audiences...))

	if err != nil || !parsed.Valid {
		if v.Policy.JwtMode == store.JwtPermissive {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	subject, _ := claims.GetSubject()
	issuer, _ := claims.GetIssuer()
	audiences, _ := claims.GetAudience()

	return &Claims{
		Subject:   subject,
		Issuer:    issuer,
		Audiences: audiences,
		Raw:       claims,
	}, nil
}
