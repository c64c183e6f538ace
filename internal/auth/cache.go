package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tbourn/media-ratings-backend/internal/host"
)

// Cached memoizes successful token and user lookups of an inner identity
// for ttl. Failures are never cached, so a revoked token is refused again
// only once its entry expires.
type Cached struct {
	inner  host.Identity
	tokens *expirable.LRU[string, string]
	users  *expirable.LRU[string, host.User]
}

// NewCached wraps inner with caches of size entries each.
func NewCached(inner host.Identity, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 1024
	}
	return &Cached{
		inner:  inner,
		tokens: expirable.NewLRU[string, string](size, nil, ttl),
		users:  expirable.NewLRU[string, host.User](size, nil, ttl),
	}
}

// ResolveToken implements host.Identity.
func (c *Cached) ResolveToken(ctx context.Context, token string) (string, error) {
	if id, ok := c.tokens.Get(token); ok {
		return id, nil
	}
	id, err := c.inner.ResolveToken(ctx, token)
	if err != nil {
		return "", err
	}
	c.tokens.Add(token, id)
	return id, nil
}

// LookupUser implements host.Identity.
func (c *Cached) LookupUser(ctx context.Context, userID string) (host.User, error) {
	if u, ok := c.users.Get(userID); ok {
		return u, nil
	}
	u, err := c.inner.LookupUser(ctx, userID)
	if err != nil {
		return host.User{}, err
	}
	c.users.Add(userID, u)
	return u, nil
}

// Forget drops a cached token, e.g. after the host reports it revoked.
func (c *Cached) Forget(token string) {
	c.tokens.Remove(token)
}
