// Package host declares the contracts the service needs from the media
// server it runs beside: identity resolution, library lookup and deletion,
// session broadcast, and library change events. Implementations live in
// internal/auth and internal/hostapi.
package host

import (
	"context"
	"errors"
)

var (
	// ErrNoCredentials means the caller supplied no token at all.
	ErrNoCredentials = errors.New("no credentials supplied")
	// ErrUnknownToken means a token was supplied but does not resolve.
	ErrUnknownToken = errors.New("unknown or invalid token")
	// ErrUnknownUser means the user ID is not known to the host.
	ErrUnknownUser = errors.New("unknown user")
	// ErrItemNotFound means the library has no item with the given ID.
	ErrItemNotFound = errors.New("library item not found")
)

// Item types the notification log accepts.
const (
	ItemMovie  = "Movie"
	ItemSeries = "Series"
)

// User is the host's view of an account.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Item is a library entry.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Year int    `json:"year,omitempty"`
}

// Session is an active client connection on the host.
type Session struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Client   string `json:"client,omitempty"`
}

// Identity resolves bearer tokens and user IDs.
type Identity interface {
	// ResolveToken maps a bearer token to a user ID. An empty token yields
	// ErrNoCredentials; a token that does not resolve yields ErrUnknownToken.
	ResolveToken(ctx context.Context, token string) (string, error)
	// LookupUser returns the display data of a user or ErrUnknownUser.
	LookupUser(ctx context.Context, userID string) (User, error)
}

// Library resolves and deletes catalog items.
type Library interface {
	// GetItem returns the item or ErrItemNotFound.
	GetItem(ctx context.Context, id string) (Item, error)
	// DeleteItem removes the item's files and catalog entry.
	DeleteItem(ctx context.Context, id string) error
	// ListItems enumerates items of one type.
	ListItems(ctx context.Context, itemType string) ([]Item, error)
}

// Sessions broadcasts display messages to connected clients.
type Sessions interface {
	ListSessions(ctx context.Context) ([]Session, error)
	SendMessage(ctx context.Context, sessionID, header, text string) error
}

// LibraryEvents delivers "item added" notifications.
type LibraryEvents interface {
	// SubscribeItemAdded calls fn for each added item until ctx is done or
	// the stream fails. It returns the reason the stream ended.
	SubscribeItemAdded(ctx context.Context, fn func(Item)) error
}

// IsTopLevel reports whether t is a movie or series rather than an episode,
// season or other child item.
func IsTopLevel(t string) bool {
	return t == ItemMovie || t == ItemSeries
}
