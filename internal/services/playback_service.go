// Package services – PlaybackService
//
// PlaybackService is the gate the host consults before starting playback.
// It refuses users with an active media ban or an exhausted quota window,
// and counts a use once playback actually starts.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// PlaybackStore is the repository contract PlaybackService needs.
type PlaybackStore interface {
	GetActiveChatBan(userID string, now time.Time, types ...domain.BanType) (domain.ChatBan, bool)
	GetQuota(userID string, now time.Time) (domain.MediaQuota, bool)
	IsQuotaExceeded(userID string, now time.Time) (domain.MediaQuota, bool)
	TryConsumeQuota(userID string, now time.Time) (domain.MediaQuota, bool)
}

// PlaybackService enforces media bans and quotas.
type PlaybackService struct {
	Store PlaybackStore
	Now   func() time.Time
}

// NewPlaybackService constructs a PlaybackService.
func NewPlaybackService(s PlaybackStore) *PlaybackService {
	return &PlaybackService{Store: s, Now: func() time.Time { return time.Now().UTC() }}
}

// Authorize reports whether userID may start playback. A rejection is a
// *BanError wrapping ErrMediaBanned or a *QuotaError.
func (s *PlaybackService) Authorize(ctx context.Context, userID string) error {
	_, span := otel.Tracer("services/PlaybackService").Start(ctx, "Authorize",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	now := s.Now()
	if b, banned := s.Store.GetActiveChatBan(userID, now, domain.BanMedia); banned {
		return chatBanError(ErrMediaBanned, b)
	}
	if q, exceeded := s.Store.IsQuotaExceeded(userID, now); exceeded {
		return quotaError(q)
	}
	return nil
}

// Start authorizes and counts one use against userID's quota. The quota
// check and the count are atomic, so concurrent starts never overshoot a
// limit.
func (s *PlaybackService) Start(ctx context.Context, userID string) error {
	_, span := otel.Tracer("services/PlaybackService").Start(ctx, "Start",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	now := s.Now()
	if b, banned := s.Store.GetActiveChatBan(userID, now, domain.BanMedia); banned {
		return chatBanError(ErrMediaBanned, b)
	}
	if q, allowed := s.Store.TryConsumeQuota(userID, now); !allowed {
		return quotaError(q)
	}
	return nil
}

// PlaybackStatus summarizes what the gate would decide for a user.
type PlaybackStatus struct {
	Allowed bool               `json:"allowed"`
	Ban     *domain.ChatBan    `json:"ban,omitempty"`
	Quota   *domain.MediaQuota `json:"quota,omitempty"`
	Window  string             `json:"exceeded_window,omitempty"`
}

// Status reports the caller's media ban and quota without counting a use.
func (s *PlaybackService) Status(ctx context.Context, userID string) PlaybackStatus {
	now := s.Now()
	st := PlaybackStatus{Allowed: true}
	if b, banned := s.Store.GetActiveChatBan(userID, now, domain.BanMedia); banned {
		st.Allowed = false
		st.Ban = &b
	}
	if q, ok := s.Store.GetQuota(userID, now); ok {
		st.Quota = &q
		if w := q.ExceededWindow(); w != "" {
			st.Allowed = false
			st.Window = w
		}
	}
	return st
}
