// Package sweeper runs the periodic maintenance cycle: expired bans, stale
// presence, old notifications and requests, rate-limit windows, idempotency
// records and due scheduled deletions.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/media-ratings-backend/internal/archive"
	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/host"
)

const (
	// PresenceMaxAge is how long a user may stay unseen before the presence
	// record is dropped.
	PresenceMaxAge = 30 * 24 * time.Hour
	// NotificationMaxAge is how long a new-media notification is kept.
	NotificationMaxAge = 7 * 24 * time.Hour
)

// Store is the repository contract the sweeper needs.
type Store interface {
	PurgeExpiredBans(now time.Time) (chatBans, userBans int)
	EvictStalePresence(maxAge time.Duration) int
	CleanupOldNotifications(maxAge time.Duration) int
	UnsnoozeDue(now time.Time) int
	CleanupOldRejected(daysOld int) int
	CleanupOldChatMessages(daysOld int) int
	GetDueDeletions(now time.Time) []domain.ScheduledDeletion
	RemoveScheduledDeletion(itemID string) bool
	PurgeCancelledDeletions() int
}

// Pruner forgets rate-limit windows that have ended.
type Pruner interface {
	PruneRateLimits(now time.Time) int
}

// Options tunes the cycle.
type Options struct {
	Interval     time.Duration
	InitialDelay time.Duration
	// ScheduledDeletions enables execution of due scheduled deletions.
	ScheduledDeletions  bool
	RejectedCleanupDays int
	ChatRetentionDays   int
}

// Option configures optional collaborators.
type Option func(*Sweeper)

// WithLibrary sets the library used for scheduled deletions.
func WithLibrary(l host.Library) Option { return func(s *Sweeper) { s.lib = l } }

// WithPruner adds a rate limiter to prune each cycle.
func WithPruner(p Pruner) Option { return func(s *Sweeper) { s.pruners = append(s.pruners, p) } }

// WithArchive purges expired idempotency records from db each cycle.
func WithArchive(db *gorm.DB) Option { return func(s *Sweeper) { s.db = db } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Sweeper) { s.now = now } }

// Sweeper owns the background maintenance goroutine.
type Sweeper struct {
	store   Store
	lib     host.Library
	pruners []Pruner
	db      *gorm.DB
	opts    Options
	now     func() time.Time
	log     zerolog.Logger

	exit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New constructs a Sweeper. Start must be called to run it periodically.
func New(store Store, opts Options, o ...Option) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	s := &Sweeper{
		store: store,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With().Str("component", "sweeper").Logger(),
		exit:  make(chan struct{}),
	}
	for _, fn := range o {
		fn(s)
	}
	return s
}

// Start runs the first cycle after InitialDelay and then every Interval.
func (s *Sweeper) Start() {
	s.log.Info().Dur("interval", s.opts.Interval).Dur("initial_delay", s.opts.InitialDelay).Msg("starting sweeper")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		first := time.NewTimer(s.opts.InitialDelay)
		defer first.Stop()
		select {
		case <-s.exit:
			return
		case <-first.C:
		}
		s.cycle()

		t := time.NewTicker(s.opts.Interval)
		defer t.Stop()
		for {
			select {
			case <-s.exit:
				return
			case <-t.C:
				s.cycle()
			}
		}
	}()
}

// Shutdown stops the goroutine and waits for a running cycle to finish.
func (s *Sweeper) Shutdown() {
	s.once.Do(func() {
		s.log.Info().Msg("stopping sweeper")
		close(s.exit)
	})
	s.wg.Wait()
	s.log.Info().Msg("sweeper stopped")
}

func (s *Sweeper) cycle() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.exit:
			cancel()
		case <-ctx.Done():
		}
	}()
	res := s.RunOnce(ctx)
	s.log.Info().Interface("result", res).Msg("sweep complete")
}

// Result counts what one cycle did.
type Result struct {
	ChatBans         int `json:"chat_bans"`
	UserBans         int `json:"user_bans"`
	Presence         int `json:"presence"`
	Notifications    int `json:"notifications"`
	Unsnoozed        int `json:"unsnoozed"`
	RejectedRequests int `json:"rejected_requests"`
	ChatMessages     int `json:"chat_messages"`
	RateLimitWindows int `json:"rate_limit_windows"`
	Idempotency      int `json:"idempotency"`
	Deleted          int `json:"deleted"`
	AlreadyGone      int `json:"already_gone"`
	DeleteFailures   int `json:"delete_failures"`
	CancelledDropped int `json:"cancelled_dropped"`
}

// RunOnce performs one maintenance cycle. The expiry passes always run;
// scheduled deletions run only when enabled and a library is configured.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	ctx, span := otel.Tracer("sweeper").Start(ctx, "RunOnce")
	defer span.End()
	start := time.Now()
	now := s.now()

	var res Result
	res.ChatBans, res.UserBans = s.store.PurgeExpiredBans(now)
	res.Presence = s.store.EvictStalePresence(PresenceMaxAge)
	res.Notifications = s.store.CleanupOldNotifications(NotificationMaxAge)
	res.Unsnoozed = s.store.UnsnoozeDue(now)
	res.RejectedRequests = s.store.CleanupOldRejected(s.opts.RejectedCleanupDays)
	res.ChatMessages = s.store.CleanupOldChatMessages(s.opts.ChatRetentionDays)
	for _, p := range s.pruners {
		res.RateLimitWindows += p.PruneRateLimits(now)
	}
	if s.db != nil {
		n, err := archive.PurgeExpiredIdempotency(ctx, s.db, now)
		if err != nil {
			s.log.Warn().Err(err).Msg("purge idempotency records failed")
		}
		res.Idempotency = int(n)
	}

	if s.opts.ScheduledDeletions && s.lib != nil {
		s.runDeletions(ctx, now, &res)
		res.CancelledDropped = s.store.PurgeCancelledDeletions()
	}

	for kind, n := range map[string]int{
		"chat_ban":         res.ChatBans,
		"user_ban":         res.UserBans,
		"presence":         res.Presence,
		"notification":     res.Notifications,
		"unsnooze":         res.Unsnoozed,
		"rejected_request": res.RejectedRequests,
		"chat_message":     res.ChatMessages,
		"idempotency":      res.Idempotency,
		"scheduled_delete": res.Deleted + res.AlreadyGone,
		"cancelled_delete": res.CancelledDropped,
	} {
		if n > 0 {
			removedTotal.WithLabelValues(kind).Add(float64(n))
		}
	}
	runsTotal.Inc()
	runDuration.Observe(time.Since(start).Seconds())
	return res
}

// runDeletions executes due scheduled deletions. A failure is logged and the
// record kept so the next cycle retries it.
func (s *Sweeper) runDeletions(ctx context.Context, now time.Time, res *Result) {
	for _, d := range s.store.GetDueDeletions(now) {
		if ctx.Err() != nil {
			return
		}
		lg := s.log.With().Str("item_id", d.ItemID).Str("title", d.Title).Logger()

		_, err := s.lib.GetItem(ctx, d.ItemID)
		if errors.Is(err, host.ErrItemNotFound) {
			s.store.RemoveScheduledDeletion(d.ItemID)
			res.AlreadyGone++
			lg.Info().Msg("scheduled item already gone")
			continue
		}
		if err != nil {
			res.DeleteFailures++
			deletionErrors.Inc()
			lg.Error().Err(err).Msg("resolve scheduled item failed")
			continue
		}
		if err := s.lib.DeleteItem(ctx, d.ItemID); err != nil && !errors.Is(err, host.ErrItemNotFound) {
			res.DeleteFailures++
			deletionErrors.Inc()
			lg.Error().Err(err).Msg("scheduled deletion failed")
			continue
		}
		s.store.RemoveScheduledDeletion(d.ItemID)
		res.Deleted++
		lg.Info().Msg("scheduled item deleted")
	}
}
