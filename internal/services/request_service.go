// Package services – RequestService
//
// RequestService runs the media request pipeline: users file requests for
// titles, admins move them through pending, processing, snoozed, rejected and
// done. Deletion requests, request bans and scheduled deletions hang off the
// same service since they share the admin gate and the library collaborator.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/host"
	"github.com/tbourn/media-ratings-backend/internal/repo"
	"github.com/tbourn/media-ratings-backend/internal/search"
)

// RequestStore is the repository contract RequestService needs.
type RequestStore interface {
	IsAdmin(userID string) bool

	CreateMediaRequest(in repo.NewMediaRequest) domain.MediaRequest
	GetMediaRequest(id string) (domain.MediaRequest, bool)
	ListMediaRequests(status domain.RequestStatus) []domain.MediaRequest
	ListUserMediaRequests(userID string) []domain.MediaRequest
	UpdateMediaRequestStatus(id string, status domain.RequestStatus, mediaLink, rejectionReason string) (domain.MediaRequest, bool)
	SnoozeMediaRequest(id string, until time.Time) (domain.MediaRequest, bool)
	UnsnoozeMediaRequest(id string) (domain.MediaRequest, bool)
	DeleteMediaRequest(id string) bool
	CountUserRequestsInMonth(userID string, now time.Time) int

	CreateDeletionRequest(in repo.NewDeletionRequest) domain.DeletionRequest
	HasPendingDeletionRequest(mediaRequestID string) bool
	GetDeletionRequest(id string) (domain.DeletionRequest, bool)
	ListDeletionRequests(status domain.DeletionStatus) []domain.DeletionRequest
	ListUserDeletionRequests(userID string) []domain.DeletionRequest
	ResolveDeletionRequest(id string, status domain.DeletionStatus, resolvedBy, rejectionReason string) (domain.DeletionRequest, bool)

	ScheduleDeletion(itemID, title string, deleteAt time.Time, scheduledBy string) domain.ScheduledDeletion
	CancelScheduledDeletion(itemID string) bool
	ListScheduledDeletions() []domain.ScheduledDeletion

	CreateUserBan(userID string, banType domain.UserBanType, reason, bannedBy string, expiresAt *time.Time) domain.UserBan
	LiftUserBan(id string) bool
	ListUserBans(userID string) []domain.UserBan
	GetActiveUserBan(userID string, banType domain.UserBanType, now time.Time) (domain.UserBan, bool)
}

// titleStopwords are ignored when comparing request titles.
var titleStopwords = []string{"the", "a", "an", "of", "and", "la", "le", "der", "die", "das"}

// RequestService coordinates media requests and their satellite workflows.
type RequestService struct {
	Store RequestStore
	// Library is optional; without it approved deletions only change status
	// and scheduled deletions keep the title the admin supplied.
	Library host.Library
	// MaxPerMonth caps requests per user per calendar month; 0 is unlimited.
	MaxPerMonth int
	Now         func() time.Time
}

// NewRequestService constructs a RequestService.
func NewRequestService(s RequestStore, lib host.Library, maxPerMonth int) *RequestService {
	return &RequestService{
		Store:       s,
		Library:     lib,
		MaxPerMonth: maxPerMonth,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// NewRequestInput is a user's media request.
type NewRequestInput struct {
	UserID   string
	Username string
	Title    string
	Type     string
	Notes    string
}

// Create files a media request after the ban and monthly limit checks.
func (s *RequestService) Create(ctx context.Context, in NewRequestInput) (domain.MediaRequest, error) {
	_, span := otel.Tracer("services/RequestService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", in.UserID)))
	defer span.End()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.MediaRequest{}, ErrEmptyTitle
	}
	now := s.Now()
	if b, banned := s.Store.GetActiveUserBan(in.UserID, domain.UserBanMediaRequest, now); banned {
		return domain.MediaRequest{}, userBanError(b)
	}
	if s.MaxPerMonth > 0 && s.Store.CountUserRequestsInMonth(in.UserID, now) >= s.MaxPerMonth {
		return domain.MediaRequest{}, ErrRequestLimitReached
	}
	return s.Store.CreateMediaRequest(repo.NewMediaRequest{
		UserID:   in.UserID,
		Username: strings.TrimSpace(in.Username),
		Title:    title,
		Type:     strings.TrimSpace(in.Type),
		Notes:    strings.TrimSpace(in.Notes),
	}), nil
}

// Similar returns up to k open requests whose titles resemble title, best
// match first. Rejected and done requests are not considered.
func (s *RequestService) Similar(ctx context.Context, title string, k int) []domain.MediaRequest {
	open := make(map[string]domain.MediaRequest)
	var docs []search.Doc
	for _, r := range s.Store.ListMediaRequests("") {
		if r.Status == domain.RequestRejected || r.Status == domain.RequestDone {
			continue
		}
		open[r.ID] = r
		docs = append(docs, search.Doc{ID: r.ID, Text: r.Title})
	}
	idx := search.NewIndex(docs, search.WithStopwords(titleStopwords), search.WithMinScore(0.5))
	hits := idx.TopK(title, k)
	out := make([]domain.MediaRequest, 0, len(hits))
	for _, h := range hits {
		out = append(out, open[h.ID])
	}
	return out
}

// Get returns a request visible to callerID: its owner or an admin.
func (s *RequestService) Get(ctx context.Context, callerID, id string) (domain.MediaRequest, error) {
	r, ok := s.Store.GetMediaRequest(id)
	if !ok {
		return domain.MediaRequest{}, ErrNotFound
	}
	if r.UserID != callerID && !s.Store.IsAdmin(callerID) {
		return domain.MediaRequest{}, ErrForbidden
	}
	return r, nil
}

// ListAll returns every request in status (all when empty). Admin only.
func (s *RequestService) ListAll(ctx context.Context, actorID string, status domain.RequestStatus) ([]domain.MediaRequest, error) {
	if !s.Store.IsAdmin(actorID) {
		return nil, ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.Store.ListMediaRequests(status), nil
}

// ListMine returns the caller's own requests, newest first.
func (s *RequestService) ListMine(ctx context.Context, userID string) []domain.MediaRequest {
	return s.Store.ListUserMediaRequests(userID)
}

// StatusInput moves a request to a new status. SnoozeFor is required for
// the snoozed status.
type StatusInput struct {
	Status          domain.RequestStatus
	MediaLink       string
	RejectionReason string
	SnoozeFor       time.Duration
}

// UpdateStatus applies an admin status transition.
func (s *RequestService) UpdateStatus(ctx context.Context, actorID, id string, in StatusInput) (domain.MediaRequest, error) {
	_, span := otel.Tracer("services/RequestService").Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("actor.id", actorID),
			attribute.String("request.id", id),
			attribute.String("status", string(in.Status)),
		),
	)
	defer span.End()

	if !s.Store.IsAdmin(actorID) {
		return domain.MediaRequest{}, ErrForbidden
	}
	if !in.Status.Valid() {
		return domain.MediaRequest{}, ErrInvalidStatus
	}
	if in.Status == domain.RequestSnoozed {
		return s.Snooze(ctx, actorID, id, in.SnoozeFor)
	}
	r, ok := s.Store.UpdateMediaRequestStatus(id, in.Status, strings.TrimSpace(in.MediaLink), strings.TrimSpace(in.RejectionReason))
	if !ok {
		return domain.MediaRequest{}, ErrNotFound
	}
	return r, nil
}

// Snooze parks a request until now+d. Admin only.
func (s *RequestService) Snooze(ctx context.Context, actorID, id string, d time.Duration) (domain.MediaRequest, error) {
	if !s.Store.IsAdmin(actorID) {
		return domain.MediaRequest{}, ErrForbidden
	}
	if d <= 0 {
		return domain.MediaRequest{}, ErrDurationNotAllowed
	}
	r, ok := s.Store.SnoozeMediaRequest(id, s.Now().Add(d))
	if !ok {
		return domain.MediaRequest{}, ErrNotFound
	}
	return r, nil
}

// Unsnooze returns a snoozed request to pending. Admin only.
func (s *RequestService) Unsnooze(ctx context.Context, actorID, id string) (domain.MediaRequest, error) {
	if !s.Store.IsAdmin(actorID) {
		return domain.MediaRequest{}, ErrForbidden
	}
	r, ok := s.Store.UnsnoozeMediaRequest(id)
	if !ok {
		return domain.MediaRequest{}, ErrNotFound
	}
	return r, nil
}

// Delete removes a request. Owners may delete their own; admins any.
func (s *RequestService) Delete(ctx context.Context, callerID, id string) error {
	if _, err := s.Get(ctx, callerID, id); err != nil {
		return err
	}
	if !s.Store.DeleteMediaRequest(id) {
		return ErrNotFound
	}
	return nil
}

// ----------------------------------------------------------------------------
// Deletion requests

// DeletionInput asks for the item that fulfilled a request to be removed.
type DeletionInput struct {
	UserID         string
	Username       string
	MediaRequestID string
	ItemID         string
	Reason         string
}

// RequestDeletion files a deletion request for one of the caller's media
// requests. Only one may be pending per media request.
func (s *RequestService) RequestDeletion(ctx context.Context, in DeletionInput) (domain.DeletionRequest, error) {
	_, span := otel.Tracer("services/RequestService").Start(ctx, "RequestDeletion",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.String("request.id", in.MediaRequestID),
		),
	)
	defer span.End()

	if b, banned := s.Store.GetActiveUserBan(in.UserID, domain.UserBanDeletionRequest, s.Now()); banned {
		return domain.DeletionRequest{}, userBanError(b)
	}
	mr, err := s.Get(ctx, in.UserID, in.MediaRequestID)
	if err != nil {
		return domain.DeletionRequest{}, err
	}
	if s.Store.HasPendingDeletionRequest(mr.ID) {
		return domain.DeletionRequest{}, ErrPendingDeletionExists
	}
	return s.Store.CreateDeletionRequest(repo.NewDeletionRequest{
		UserID:         in.UserID,
		Username:       strings.TrimSpace(in.Username),
		MediaRequestID: mr.ID,
		ItemID:         strings.TrimSpace(in.ItemID),
		Title:          mr.Title,
		Reason:         strings.TrimSpace(in.Reason),
	}), nil
}

// ListDeletions returns deletion requests in status (all when empty). Admin
// only.
func (s *RequestService) ListDeletions(ctx context.Context, actorID string, status domain.DeletionStatus) ([]domain.DeletionRequest, error) {
	if !s.Store.IsAdmin(actorID) {
		return nil, ErrForbidden
	}
	return s.Store.ListDeletionRequests(status), nil
}

// ListMyDeletions returns the caller's deletion requests.
func (s *RequestService) ListMyDeletions(ctx context.Context, userID string) []domain.DeletionRequest {
	return s.Store.ListUserDeletionRequests(userID)
}

// ResolveDeletion approves or rejects a pending deletion request. Approval
// deletes the library item first when a library is configured; an item that
// is already gone does not block approval.
func (s *RequestService) ResolveDeletion(ctx context.Context, actorID, actorName, id string, status domain.DeletionStatus, rejectionReason string) (domain.DeletionRequest, error) {
	ctx, span := otel.Tracer("services/RequestService").Start(ctx, "ResolveDeletion",
		trace.WithAttributes(
			attribute.String("actor.id", actorID),
			attribute.String("deletion.id", id),
			attribute.String("status", string(status)),
		),
	)
	defer span.End()

	if !s.Store.IsAdmin(actorID) {
		return domain.DeletionRequest{}, ErrForbidden
	}
	if status != domain.DeletionApproved && status != domain.DeletionRejected {
		return domain.DeletionRequest{}, ErrInvalidStatus
	}
	dr, ok := s.Store.GetDeletionRequest(id)
	if !ok {
		return domain.DeletionRequest{}, ErrNotFound
	}
	if dr.Status != domain.DeletionPending {
		return domain.DeletionRequest{}, ErrInvalidStatus
	}
	if status == domain.DeletionApproved && s.Library != nil && dr.ItemID != "" {
		if err := s.Library.DeleteItem(ctx, dr.ItemID); err != nil && !errors.Is(err, host.ErrItemNotFound) {
			return domain.DeletionRequest{}, err
		}
	}
	out, ok := s.Store.ResolveDeletionRequest(id, status, actorName, strings.TrimSpace(rejectionReason))
	if !ok {
		return domain.DeletionRequest{}, ErrNotFound
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Request bans

// UserBanInput revokes a request privilege. A zero Duration bans until
// lifted.
type UserBanInput struct {
	TargetID string
	Type     domain.UserBanType
	Reason   string
	Duration time.Duration
}

// BanUser revokes a request privilege. Admin only; admins cannot be banned.
func (s *RequestService) BanUser(ctx context.Context, actorID string, in UserBanInput) (domain.UserBan, error) {
	if !s.Store.IsAdmin(actorID) {
		return domain.UserBan{}, ErrForbidden
	}
	if !in.Type.Valid() {
		return domain.UserBan{}, ErrInvalidBanType
	}
	if s.Store.IsAdmin(in.TargetID) {
		return domain.UserBan{}, ErrCannotBanAdmin
	}
	if in.Duration < 0 {
		return domain.UserBan{}, ErrDurationNotAllowed
	}
	var expires *time.Time
	if in.Duration > 0 {
		t := s.Now().Add(in.Duration)
		expires = &t
	}
	b := s.Store.CreateUserBan(in.TargetID, in.Type, strings.TrimSpace(in.Reason), actorID, expires)
	log.Info().
		Str("component", "requests").
		Str("actor", actorID).
		Str("target", in.TargetID).
		Str("ban_type", string(in.Type)).
		Msg("request ban issued")
	return b, nil
}

// LiftUserBan lifts a request ban. Admin only.
func (s *RequestService) LiftUserBan(ctx context.Context, actorID, banID string) error {
	if !s.Store.IsAdmin(actorID) {
		return ErrForbidden
	}
	if !s.Store.LiftUserBan(banID) {
		return ErrNotFound
	}
	return nil
}

// ListUserBans returns request bans of userID (all when empty). Admin only.
func (s *RequestService) ListUserBans(ctx context.Context, actorID, userID string) ([]domain.UserBan, error) {
	if !s.Store.IsAdmin(actorID) {
		return nil, ErrForbidden
	}
	return s.Store.ListUserBans(userID), nil
}

// ----------------------------------------------------------------------------
// Scheduled deletions

// Schedule marks itemID for deletion at deleteAt. With a library configured
// the item must exist and its name becomes the title when none is given.
func (s *RequestService) Schedule(ctx context.Context, actorID, itemID, title string, deleteAt time.Time) (domain.ScheduledDeletion, error) {
	ctx, span := otel.Tracer("services/RequestService").Start(ctx, "Schedule",
		trace.WithAttributes(attribute.String("actor.id", actorID), attribute.String("item.id", itemID)))
	defer span.End()

	if !s.Store.IsAdmin(actorID) {
		return domain.ScheduledDeletion{}, ErrForbidden
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.ScheduledDeletion{}, ErrNotFound
	}
	title = strings.TrimSpace(title)
	if s.Library != nil {
		it, err := s.Library.GetItem(ctx, itemID)
		if errors.Is(err, host.ErrItemNotFound) {
			return domain.ScheduledDeletion{}, ErrNotFound
		}
		if err != nil {
			return domain.ScheduledDeletion{}, err
		}
		if title == "" {
			title = it.Name
		}
	}
	return s.Store.ScheduleDeletion(itemID, title, deleteAt.UTC(), actorID), nil
}

// CancelSchedule cancels the pending deletion of itemID. Admin only.
func (s *RequestService) CancelSchedule(ctx context.Context, actorID, itemID string) error {
	if !s.Store.IsAdmin(actorID) {
		return ErrForbidden
	}
	if !s.Store.CancelScheduledDeletion(itemID) {
		return ErrNotFound
	}
	return nil
}

// ListScheduled returns every scheduled deletion. Admin only.
func (s *RequestService) ListScheduled(ctx context.Context, actorID string) ([]domain.ScheduledDeletion, error) {
	if !s.Store.IsAdmin(actorID) {
		return nil, ErrForbidden
	}
	return s.Store.ListScheduledDeletions(), nil
}
