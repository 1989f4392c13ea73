// Package auth validates the JWTs issued by the authentication service and
// resolves the participant behind a request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims is the payload of an access token. The user id is carried in the
// "Id" claim.
type Claims struct {
	UserID string `json:"Id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator checks signature, issuer, audience and lifetime of tokens
// signed with HS256.
type TokenValidator struct {
	key      []byte
	issuer   string
	audience string
}

// NewTokenValidator creates a validator for tokens signed with key.
func NewTokenValidator(key []byte, issuer, audience string) *TokenValidator {
	return &TokenValidator{key: key, issuer: issuer, audience: audience}
}

// Validate parses tokenString and returns its claims. No clock skew is
// tolerated.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	return claims, nil
}

// GenerateToken signs a token for userID valid for ttl.
func (v *TokenValidator) GenerateToken(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}
