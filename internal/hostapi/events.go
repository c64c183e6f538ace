package hostapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/media-ratings-backend/internal/host"
)

// Host socket message types.
const (
	msgLibraryChanged = "LibraryChanged"
	msgForceKeepAlive = "ForceKeepAlive"
	msgKeepAlive      = "KeepAlive"

	writeControlWindow = 5 * time.Second
)

type socketMessage struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data,omitempty"`
}

type libraryChanged struct {
	ItemsAdded []string `json:"ItemsAdded"`
}

// socketURL derives the event socket address from the REST base URL.
func (c *Client) socketURL() (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported host scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket"
	q := u.Query()
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SubscribeItemAdded connects to the host socket and calls fn for every
// item added to the library. Added IDs are resolved through the REST API;
// items that vanished in between are skipped. It returns when ctx is done or
// the connection fails.
func (c *Client) SubscribeItemAdded(ctx context.Context, fn func(host.Item)) error {
	addr, err := c.socketURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, http.Header{})
	if err != nil {
		return fmt.Errorf("events dial failed: %w", err)
	}
	defer conn.Close()
	c.log.Info().Msg("subscribed to library events")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeControlWindow))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		switch msg.MessageType {
		case msgForceKeepAlive:
			if err := conn.WriteJSON(socketMessage{MessageType: msgKeepAlive}); err != nil {
				return fmt.Errorf("keepalive: %w", err)
			}
		case msgLibraryChanged:
			var lc libraryChanged
			if err := json.Unmarshal(msg.Data, &lc); err != nil {
				c.log.Warn().Err(err).Msg("malformed library event")
				continue
			}
			for _, id := range lc.ItemsAdded {
				it, err := c.GetItem(ctx, id)
				if err != nil {
					c.log.Debug().Err(err).Str("item_id", id).Msg("skip added item")
					continue
				}
				fn(it)
			}
		}
	}
}
