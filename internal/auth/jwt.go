// Package auth resolves bearer tokens to host user IDs. Tokens are either
// HS256 JWTs signed with a secret shared with the host, or opaque host tokens
// resolved through the host API; both sit behind an expiring LRU cache.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/media-ratings-backend/internal/host"
)

// JWT validates HS256 tokens whose subject is the user ID.
type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWT returns a validator for tokens signed with secret. An empty issuer
// accepts any issuer.
func NewJWT(secret, issuer string) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Claims is the payload the host signs.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Parse validates token and returns its claims.
func (j *JWT) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, host.ErrNoCredentials
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", host.ErrUnknownToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, host.ErrUnknownToken
	}
	return claims, nil
}

// ResolveToken implements the token half of host.Identity.
func (j *JWT) ResolveToken(_ context.Context, token string) (string, error) {
	c, err := j.Parse(token)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// Sign issues a token for userID valid for ttl. It backs the operator CLI
// and tests; in production the host signs tokens.
func (j *JWT) Sign(userID, name string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// TokenResolver maps bearer tokens to user IDs.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (string, error)
}

// UserLookup returns host account data.
type UserLookup interface {
	LookupUser(ctx context.Context, userID string) (host.User, error)
}

// Chain combines a token resolver with an optional user directory into a
// host.Identity. Without a directory LookupUser returns only the ID.
type Chain struct {
	Tokens TokenResolver
	Users  UserLookup
}

// ResolveToken delegates to Tokens.
func (c Chain) ResolveToken(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", host.ErrNoCredentials
	}
	return c.Tokens.ResolveToken(ctx, token)
}

// LookupUser delegates to Users when configured.
func (c Chain) LookupUser(ctx context.Context, userID string) (host.User, error) {
	if userID == "" {
		return host.User{}, host.ErrUnknownUser
	}
	if c.Users == nil {
		return host.User{ID: userID}, nil
	}
	return c.Users.LookupUser(ctx, userID)
}

// IsAuthError reports whether err means the caller is not authenticated
// rather than that the identity service failed.
func IsAuthError(err error) bool {
	return errors.Is(err, host.ErrNoCredentials) || errors.Is(err, host.ErrUnknownToken) || errors.Is(err, host.ErrUnknownUser)
}
