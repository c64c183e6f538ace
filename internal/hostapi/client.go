// Package hostapi talks to the media server host over its REST API and its
// WebSocket event stream. Client implements the host collaborator
// interfaces the services depend on.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/media-ratings-backend/internal/host"
)

// TokenHeader carries the API key or a user's access token.
const TokenHeader = "X-MediaBrowser-Token"

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client is a host REST client with retries on connection errors and 5xx.
type Client struct {
	base   string
	apiKey string
	http   *retryablehttp.Client
	log    zerolog.Logger
}

// New builds a Client.
func New(o Options) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = o.RetryMax
	if o.RetryWaitMin > 0 {
		rc.RetryWaitMin = o.RetryWaitMin
	}
	if o.RetryWaitMax > 0 {
		rc.RetryWaitMax = o.RetryWaitMax
	}
	if o.Timeout > 0 {
		rc.HTTPClient.Timeout = o.Timeout
	}
	lg := log.With().Str("component", "hostapi").Logger()
	rc.Logger = retryablehttp.LeveledLogger(leveledZerolog{lg})
	rc.CheckRetry = retryPolicy
	return &Client{
		base:   strings.TrimRight(o.BaseURL, "/"),
		apiKey: o.APIKey,
		http:   rc,
		log:    lg,
	}
}

// retryPolicy treats 429 as final so callers see the host's rate limit.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// StatusError is a non-2xx host response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("host %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// do sends a request and decodes a JSON response into out when non-nil.
// token overrides the API key.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if token == "" {
		token = c.apiKey
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusIs(err error, code int) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == code
}

// ----------------------------------------------------------------------------
// Wire shapes

type wireItem struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Type           string `json:"Type"`
	ProductionYear int    `json:"ProductionYear"`
}

func (w wireItem) item() host.Item {
	return host.Item{ID: w.ID, Name: w.Name, Type: w.Type, Year: w.ProductionYear}
}

type wireUser struct {
	ID              string `json:"Id"`
	Name            string `json:"Name"`
	PrimaryImageTag string `json:"PrimaryImageTag"`
}

type wireSession struct {
	ID       string `json:"Id"`
	UserID   string `json:"UserId"`
	UserName string `json:"UserName"`
	Client   string `json:"Client"`
}

// ----------------------------------------------------------------------------
// host.Identity

// ResolveToken asks the host who owns token.
func (c *Client) ResolveToken(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", host.ErrNoCredentials
	}
	var u wireUser
	err := c.do(ctx, http.MethodGet, "/Users/Me", token, nil, &u)
	if statusIs(err, http.StatusUnauthorized) || statusIs(err, http.StatusForbidden) {
		return "", host.ErrUnknownToken
	}
	if err != nil {
		return "", err
	}
	if u.ID == "" {
		return "", host.ErrUnknownToken
	}
	return u.ID, nil
}

// LookupUser fetches a user's display data.
func (c *Client) LookupUser(ctx context.Context, userID string) (host.User, error) {
	var u wireUser
	err := c.do(ctx, http.MethodGet, "/Users/"+url.PathEscape(userID), "", nil, &u)
	if statusIs(err, http.StatusNotFound) {
		return host.User{}, host.ErrUnknownUser
	}
	if err != nil {
		return host.User{}, err
	}
	out := host.User{ID: u.ID, Name: u.Name}
	if u.PrimaryImageTag != "" {
		out.AvatarURL = fmt.Sprintf("%s/Users/%s/Images/Primary?tag=%s", c.base, url.PathEscape(u.ID), url.QueryEscape(u.PrimaryImageTag))
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// host.Library

// GetItem fetches one library item.
func (c *Client) GetItem(ctx context.Context, id string) (host.Item, error) {
	var w wireItem
	err := c.do(ctx, http.MethodGet, "/Items/"+url.PathEscape(id), "", nil, &w)
	if statusIs(err, http.StatusNotFound) {
		return host.Item{}, host.ErrItemNotFound
	}
	if err != nil {
		return host.Item{}, err
	}
	return w.item(), nil
}

// DeleteItem removes an item's files and catalog entry.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/Items/"+url.PathEscape(id), "", nil, nil)
	if statusIs(err, http.StatusNotFound) {
		return host.ErrItemNotFound
	}
	if err == nil {
		c.log.Info().Str("item_id", id).Msg("library item deleted")
	}
	return err
}

// ListItems enumerates items of itemType across the library.
func (c *Client) ListItems(ctx context.Context, itemType string) ([]host.Item, error) {
	q := url.Values{}
	q.Set("IncludeItemTypes", itemType)
	q.Set("Recursive", "true")
	var page struct {
		Items []wireItem `json:"Items"`
	}
	if err := c.do(ctx, http.MethodGet, "/Items?"+q.Encode(), "", nil, &page); err != nil {
		return nil, err
	}
	out := make([]host.Item, 0, len(page.Items))
	for _, w := range page.Items {
		out = append(out, w.item())
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// host.Sessions

// ListSessions returns the active client sessions.
func (c *Client) ListSessions(ctx context.Context) ([]host.Session, error) {
	var ws []wireSession
	if err := c.do(ctx, http.MethodGet, "/Sessions", "", nil, &ws); err != nil {
		return nil, err
	}
	out := make([]host.Session, 0, len(ws))
	for _, s := range ws {
		out = append(out, host.Session{ID: s.ID, UserID: s.UserID, UserName: s.UserName, Client: s.Client})
	}
	return out, nil
}

// SendMessage shows a display message on one session.
func (c *Client) SendMessage(ctx context.Context, sessionID, header, text string) error {
	body := map[string]any{"Header": header, "Text": text, "TimeoutMs": 10000}
	return c.do(ctx, http.MethodPost, "/Sessions/"+url.PathEscape(sessionID)+"/Message", "", body, nil)
}

// ----------------------------------------------------------------------------
// Logging adapter

// leveledZerolog adapts zerolog to retryablehttp.LeveledLogger. Intermediate
// errors are logged at warn level because a retry follows.
type leveledZerolog struct{ l zerolog.Logger }

func (z leveledZerolog) Error(msg string, kv ...any) { z.l.Warn().Fields(kv).Msg(msg) }
func (z leveledZerolog) Warn(msg string, kv ...any)  { z.l.Warn().Fields(kv).Msg(msg) }
func (z leveledZerolog) Info(msg string, kv ...any)  { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledZerolog) Debug(msg string, kv ...any) { z.l.Debug().Fields(kv).Msg(msg) }
