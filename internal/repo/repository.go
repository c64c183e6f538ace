// Package repo owns every in-memory collection of the service and mirrors
// each one to its own JSON file through internal/store.
//
// Concurrency model:
//
//   - One mutex (the state lock) guards all collections together. Every
//     public method takes it for the duration of its in-memory work only.
//   - A mutating method marks the collections it touched. Before the lock is
//     released each marked collection produces a snapshot and a generation;
//     after release the snapshots go to their store.File writers, which never
//     block the caller.
//   - No method performs I/O while holding the state lock, except
//     ReloadFromDisk and RestoreFiles, which must be atomic with respect to
//     every other operation.
//
// Expected conditions (missing entity, expired ban, exceeded quota) are plain
// return values. Persistence failures are logged by the store and never reach
// the caller; memory stays authoritative for the running process.
package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/collate"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/store"
)

// Collection file names (without the .json suffix).
const (
	FileRatings            = "ratings"
	FileMediaRequests      = "media_requests"
	FileScheduledDeletions = "scheduled_deletions"
	FileDeletionRequests   = "deletion_requests"
	FileUserBans           = "user_bans"
	FileChatMessages       = "chat_messages"
	FileChatUsers          = "chat_users"
	FileChatModerators     = "chat_moderators"
	FileChatBans           = "chat_bans"
	FilePrivateMessages    = "private_messages"
	FileChatLastSeen       = "public_chat_last_seen"
	FileModeratorActions   = "moderator_actions"
	FileStyleOverrides     = "user_style_overrides"
	FileMediaQuotas        = "media_quotas"
)

// Repository is the single owner of all domain state.
type Repository struct {
	mu  sync.Mutex
	now func() time.Time
	log zerolog.Logger

	ratings       map[string]domain.UserRating
	requests      map[string]domain.MediaRequest
	scheduled     map[string]domain.ScheduledDeletion
	deletions     map[string]domain.DeletionRequest
	userBans      map[string]domain.UserBan
	chatBans      map[string]domain.ChatBan
	moderators    map[string]domain.ChatModerator // by user ID
	chatUsers     map[string]domain.ChatUser      // by user ID
	styles        map[string]domain.UserStyleOverride
	quotas        map[string]domain.MediaQuota
	lastSeen      map[string]string // user ID -> last seen chat message ID
	messages      []domain.ChatMessage
	dms           []domain.PrivateMessage
	actions       []domain.ModeratorAction
	notifications []domain.NewMediaNotification

	collator *collate.Collator

	colls []collection

	cRatings, cRequests, cScheduled, cDeletions, cUserBans collection
	cMessages, cChatUsers, cModerators, cChatBans, cDMs    collection
	cLastSeen, cActions, cStyles, cQuotas                  collection
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces time.Now as the source of timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// Open creates the data directory if needed, loads every collection from
// dir and starts one writer per collection file. A collection whose file is
// malformed is logged and starts empty.
func Open(dir string, opts ...Option) (*Repository, error) {
	if err := store.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	r := &Repository{
		now: func() time.Time { return time.Now().UTC() },
		log: log.With().Str("component", "repo").Logger(),
	}
	for _, o := range opts {
		o(r)
	}
	r.resetLocked()

	r.cRatings = register(r, dir, FileRatings,
		func() []domain.UserRating { return sortedValues(r.ratings, func(v domain.UserRating) time.Time { return v.CreatedAt }) },
		func(in []domain.UserRating) { r.ratings = indexBy(in, func(v domain.UserRating) string { return v.ID }) })
	r.cRequests = register(r, dir, FileMediaRequests,
		func() []domain.MediaRequest { return sortedValues(r.requests, func(v domain.MediaRequest) time.Time { return v.CreatedAt }) },
		func(in []domain.MediaRequest) { r.requests = indexBy(in, func(v domain.MediaRequest) string { return v.ID }) })
	r.cScheduled = register(r, dir, FileScheduledDeletions,
		func() []domain.ScheduledDeletion {
			return sortedValues(r.scheduled, func(v domain.ScheduledDeletion) time.Time { return v.CreatedAt })
		},
		func(in []domain.ScheduledDeletion) {
			r.scheduled = indexBy(in, func(v domain.ScheduledDeletion) string { return v.ID })
		})
	r.cDeletions = register(r, dir, FileDeletionRequests,
		func() []domain.DeletionRequest {
			return sortedValues(r.deletions, func(v domain.DeletionRequest) time.Time { return v.CreatedAt })
		},
		func(in []domain.DeletionRequest) {
			r.deletions = indexBy(in, func(v domain.DeletionRequest) string { return v.ID })
		})
	r.cUserBans = register(r, dir, FileUserBans,
		func() []domain.UserBan { return sortedValues(r.userBans, func(v domain.UserBan) time.Time { return v.CreatedAt }) },
		func(in []domain.UserBan) { r.userBans = indexBy(in, func(v domain.UserBan) string { return v.ID }) })
	r.cChatBans = register(r, dir, FileChatBans,
		func() []domain.ChatBan { return sortedValues(r.chatBans, func(v domain.ChatBan) time.Time { return v.BannedAt }) },
		func(in []domain.ChatBan) { r.chatBans = indexBy(in, func(v domain.ChatBan) string { return v.ID }) })
	r.cModerators = register(r, dir, FileChatModerators,
		func() []domain.ChatModerator {
			return sortedValues(r.moderators, func(v domain.ChatModerator) time.Time { return v.AssignedAt })
		},
		func(in []domain.ChatModerator) {
			r.moderators = indexBy(in, func(v domain.ChatModerator) string { return v.UserID })
		})
	r.cChatUsers = register(r, dir, FileChatUsers,
		func() []domain.ChatUser { return sortedValues(r.chatUsers, func(v domain.ChatUser) time.Time { return v.LastSeen }) },
		func(in []domain.ChatUser) { r.chatUsers = indexBy(in, func(v domain.ChatUser) string { return v.UserID }) })
	r.cStyles = register(r, dir, FileStyleOverrides,
		func() []domain.UserStyleOverride {
			return sortedValues(r.styles, func(v domain.UserStyleOverride) time.Time { return v.UpdatedAt })
		},
		func(in []domain.UserStyleOverride) {
			r.styles = indexBy(in, func(v domain.UserStyleOverride) string { return v.UserID })
		})
	r.cQuotas = register(r, dir, FileMediaQuotas,
		func() []domain.MediaQuota { return sortedValues(r.quotas, func(v domain.MediaQuota) time.Time { return v.UpdatedAt }) },
		func(in []domain.MediaQuota) { r.quotas = indexBy(in, func(v domain.MediaQuota) string { return v.UserID }) })
	r.cLastSeen = register(r, dir, FileChatLastSeen,
		func() map[string]string { return cloneMap(r.lastSeen) },
		func(in map[string]string) {
			r.lastSeen = in
			if r.lastSeen == nil {
				r.lastSeen = map[string]string{}
			}
		})
	r.cMessages = register(r, dir, FileChatMessages,
		func() []domain.ChatMessage { return append([]domain.ChatMessage(nil), r.messages...) },
		func(in []domain.ChatMessage) { r.messages = trimOldest(in, domain.MaxChatMessages) })
	r.cDMs = register(r, dir, FilePrivateMessages,
		func() []domain.PrivateMessage { return append([]domain.PrivateMessage(nil), r.dms...) },
		func(in []domain.PrivateMessage) { r.dms = trimOldest(in, domain.MaxPrivateMessages) })
	r.cActions = register(r, dir, FileModeratorActions,
		func() []domain.ModeratorAction { return append([]domain.ModeratorAction(nil), r.actions...) },
		func(in []domain.ModeratorAction) { r.actions = trimOldest(in, domain.MaxModeratorLog) })

	r.mu.Lock()
	r.loadAllLocked()
	r.mu.Unlock()
	return r, nil
}

// ReloadFromDisk re-reads every collection. Pending writes are flushed under
// the state lock so no mutation can queue a snapshot the reload would miss;
// the writers never take that lock.
func (r *Repository) ReloadFromDisk(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.flushLocked(ctx); err != nil {
		return err
	}
	r.loadAllLocked()
	return nil
}

// RestoreFiles overwrites collection files with the given raw JSON contents
// (keyed by file name as returned by DataFiles) and reloads all state. Files
// not present in contents are left as they are. The state lock is held for
// the whole operation so no mutation interleaves with the restore.
func (r *Repository) RestoreFiles(ctx context.Context, contents map[string][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.flushLocked(ctx); err != nil {
		return err
	}

	var errs []error
	for _, c := range r.colls {
		raw, ok := contents[c.fileName()]
		if !ok {
			continue
		}
		if err := c.replace(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.fileName(), err))
		}
	}
	r.loadAllLocked()
	return errors.Join(errs...)
}

// Flush waits until every queued snapshot has reached disk.
func (r *Repository) Flush(ctx context.Context) error {
	return r.flushLocked(ctx)
}

// flushLocked is Flush for callers that may hold the state lock. It only
// touches the per-file writers.
func (r *Repository) flushLocked(ctx context.Context) error {
	for _, c := range r.colls {
		if err := c.flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close drains all writers. The repository must not be used afterwards.
func (r *Repository) Close() error {
	var errs []error
	for _, c := range r.colls {
		if err := c.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DataFiles maps each collection file name (e.g. "ratings.json") to its path.
func (r *Repository) DataFiles() map[string]string {
	out := make(map[string]string, len(r.colls))
	for _, c := range r.colls {
		out[c.fileName()] = c.path()
	}
	return out
}

func (r *Repository) resetLocked() {
	r.ratings = map[string]domain.UserRating{}
	r.requests = map[string]domain.MediaRequest{}
	r.scheduled = map[string]domain.ScheduledDeletion{}
	r.deletions = map[string]domain.DeletionRequest{}
	r.userBans = map[string]domain.UserBan{}
	r.chatBans = map[string]domain.ChatBan{}
	r.moderators = map[string]domain.ChatModerator{}
	r.chatUsers = map[string]domain.ChatUser{}
	r.styles = map[string]domain.UserStyleOverride{}
	r.quotas = map[string]domain.MediaQuota{}
	r.lastSeen = map[string]string{}
}

func (r *Repository) loadAllLocked() {
	for _, c := range r.colls {
		c.load()
	}
}

// mutate runs fn under the state lock. Collections fn marks dirty are
// snapshotted before the lock is released and handed to their writers after.
func (r *Repository) mutate(fn func(tx *txn)) {
	tx := &txn{}
	r.mu.Lock()
	fn(tx)
	saves := make([]func(), 0, len(tx.dirty))
	for _, c := range tx.dirty {
		saves = append(saves, c.snapshot())
	}
	r.mu.Unlock()
	for _, save := range saves {
		save()
	}
}

// txn records which collections a mutation touched.
type txn struct {
	dirty []collection
}

func (t *txn) touch(c collection) {
	for _, d := range t.dirty {
		if d == c {
			return
		}
	}
	t.dirty = append(t.dirty, c)
}

// collection is the persistence side of one in-memory collection. Every
// method except flush, close and path must be called with the state lock held.
type collection interface {
	snapshot() func()
	load()
	replace(raw []byte) error
	flush(ctx context.Context) error
	revision() uint64
	close() error
	fileName() string
	path() string
}

type fileCollection[S any] struct {
	r    *Repository
	file *store.File[S]
	gen  uint64
	snap func() S
	set  func(S)
}

func register[S any](r *Repository, dir, name string, snap func() S, set func(S)) collection {
	c := &fileCollection[S]{r: r, file: store.NewFile[S](dir, name), snap: snap, set: set}
	r.colls = append(r.colls, c)
	return c
}

func (c *fileCollection[S]) snapshot() func() {
	c.gen++
	gen, data := c.gen, c.snap()
	return func() { c.file.Save(gen, data) }
}

func (c *fileCollection[S]) load() {
	c.gen++
	c.file.Fence(c.gen)
	data, err := c.file.Load()
	if err != nil {
		c.r.log.Error().Err(err).Str("collection", c.file.Name()).Msg("load collection; keeping current state")
		return
	}
	c.set(data)
}

func (c *fileCollection[S]) replace(raw []byte) error {
	c.gen++
	return c.file.Replace(c.gen, raw)
}

func (c *fileCollection[S]) flush(ctx context.Context) error { return c.file.Flush(ctx) }
func (c *fileCollection[S]) revision() uint64                { return c.gen }
func (c *fileCollection[S]) close() error                    { return c.file.Close() }
func (c *fileCollection[S]) fileName() string                { return c.file.Name() + ".json" }
func (c *fileCollection[S]) path() string                    { return c.file.Path() }

func newID() string { return uuid.NewString() }

// sortedValues returns the map values ordered by at, ties broken by map key,
// so snapshots of equal state serialize identically.
func sortedValues[V any](m map[string]V, at func(V) time.Time) []V {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]V, 0, len(m))
	for _, k := range keys {
		out = append(out, m[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return at(out[i]).Before(at(out[j])) })
	return out
}

func indexBy[V any](in []V, key func(V) string) map[string]V {
	out := make(map[string]V, len(in))
	for _, v := range in {
		out[key(v)] = v
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// trimOldest keeps the last max elements of s.
func trimOldest[T any](s []T, max int) []T {
	if len(s) <= max {
		return s
	}
	return append([]T(nil), s[len(s)-max:]...)
}

func sortStable[T any](s []T, less func(a, b T) bool) {
	sort.SliceStable(s, func(i, j int) bool { return less(s[i], s[j]) })
}
