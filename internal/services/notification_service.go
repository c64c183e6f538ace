// Package services – NotificationService
//
// NotificationService feeds the in-memory new-media log from the host's
// "item added" events, keeps only movies and series, and pushes a display
// message to every connected session on a best-effort basis.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/host"
)

// NotificationStore is the repository contract NotificationService needs.
type NotificationStore interface {
	IsAdmin(userID string) bool
	AddNotification(n domain.NewMediaNotification) domain.NewMediaNotification
	GetNotificationsSince(since *time.Time) []domain.NewMediaNotification
}

// NotificationService records and announces library additions.
type NotificationService struct {
	Store NotificationStore
	// Library, Sessions and Events are optional host collaborators.
	Library  host.Library
	Sessions host.Sessions
	Events   host.LibraryEvents
	// Broadcast enables the session display message.
	Broadcast bool
	// BroadcastTimeout bounds one background broadcast to all sessions.
	BroadcastTimeout time.Duration
	// RetryDelay is the pause before resubscribing after the event stream
	// ends; it doubles up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	inflight sync.WaitGroup
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(s NotificationStore, lib host.Library, sess host.Sessions, ev host.LibraryEvents) *NotificationService {
	return &NotificationService{
		Store:         s,
		Library:       lib,
		Sessions:      sess,
		Events:        ev,
		Broadcast:        sess != nil,
		BroadcastTimeout: 30 * time.Second,
		RetryDelay:       time.Second,
		MaxRetryDelay:    time.Minute,
	}
}

// HandleItemAdded records a notification for a top-level item and reports
// whether one was recorded. Episodes, seasons and the like are ignored.
func (s *NotificationService) HandleItemAdded(ctx context.Context, it host.Item) (domain.NewMediaNotification, bool) {
	if !host.IsTopLevel(it.Type) {
		return domain.NewMediaNotification{}, false
	}
	n := s.Store.AddNotification(domain.NewMediaNotification{
		ItemID:    it.ID,
		Title:     it.Name,
		MediaType: it.Type,
		Year:      it.Year,
	})
	s.announce(ctx, n)
	return n, true
}

// Since returns notifications created after since, oldest first.
func (s *NotificationService) Since(ctx context.Context, since *time.Time) []domain.NewMediaNotification {
	return s.Store.GetNotificationsSince(since)
}

// SendTest records a test notification for a random movie or series from
// the library. Admin only.
func (s *NotificationService) SendTest(ctx context.Context, actorID string) (domain.NewMediaNotification, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "SendTest",
		trace.WithAttributes(attribute.String("actor.id", actorID)))
	defer span.End()

	if !s.Store.IsAdmin(actorID) {
		return domain.NewMediaNotification{}, ErrForbidden
	}
	if s.Library == nil {
		return domain.NewMediaNotification{}, ErrFeatureUnavailable
	}
	var pool []host.Item
	for _, t := range []string{host.ItemMovie, host.ItemSeries} {
		items, err := s.Library.ListItems(ctx, t)
		if err != nil {
			return domain.NewMediaNotification{}, err
		}
		pool = append(pool, items...)
	}
	if len(pool) == 0 {
		return domain.NewMediaNotification{}, ErrNotFound
	}
	it := pool[rand.IntN(len(pool))]
	n := s.Store.AddNotification(domain.NewMediaNotification{
		ItemID:    it.ID,
		Title:     it.Name,
		MediaType: it.Type,
		Year:      it.Year,
		IsTest:    true,
	})
	s.announce(ctx, n)
	return n, nil
}

// Run subscribes to item-added events until ctx is done, resubscribing with
// backoff whenever the stream ends.
func (s *NotificationService) Run(ctx context.Context) {
	if s.Events == nil {
		return
	}
	lg := log.With().Str("component", "notifications").Logger()
	delay := s.RetryDelay
	for {
		err := s.Events.SubscribeItemAdded(ctx, func(it host.Item) {
			s.HandleItemAdded(ctx, it)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			lg.Warn().Err(err).Dur("retry_in", delay).Msg("library event stream ended")
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if delay *= 2; delay > s.MaxRetryDelay {
			delay = s.MaxRetryDelay
		}
	}
}

// announce sends a display message to every session in the background so
// a slow host never holds up the event stream. Failures are logged.
func (s *NotificationService) announce(ctx context.Context, n domain.NewMediaNotification) {
	if !s.Broadcast || s.Sessions == nil {
		return
	}
	timeout := s.BroadcastTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		s.broadcast(bctx, n)
	}()
}

func (s *NotificationService) broadcast(ctx context.Context, n domain.NewMediaNotification) {
	lg := log.With().Str("component", "notifications").Str("item_id", n.ItemID).Logger()
	sessions, err := s.Sessions.ListSessions(ctx)
	if err != nil {
		lg.Warn().Err(err).Msg("list sessions failed")
		return
	}
	header, text := displayMessage(n)
	for _, ss := range sessions {
		if ctx.Err() != nil {
			lg.Warn().Err(ctx.Err()).Msg("broadcast abandoned")
			return
		}
		if err := s.Sessions.SendMessage(ctx, ss.ID, header, text); err != nil {
			lg.Debug().Err(err).Str("session_id", ss.ID).Msg("display message failed")
		}
	}
}

// Wait blocks until every background broadcast has finished.
func (s *NotificationService) Wait() {
	s.inflight.Wait()
}

func displayMessage(n domain.NewMediaNotification) (header, text string) {
	kind := cases.Title(language.English).String(n.MediaType)
	header = "New " + kind
	text = n.Title
	if n.Year > 0 {
		text = fmt.Sprintf("%s (%d)", n.Title, n.Year)
	}
	return header + " added", text
}
