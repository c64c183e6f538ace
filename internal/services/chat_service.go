// Package services – ChatService
//
// This file implements ChatService, which owns the public room and direct
// messages. It validates message input (length, GIF allowlist), enforces
// chat and snooze bans, applies the per-user message budget, and passes
// presence updates through to the repository.
//
// Ban and rate-limit rejections are returned as errors (*BanError wrapping
// ErrChatBanned, ErrRateLimited) so handlers can map them consistently.
package services

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/repo"
)

// ChatStore is the repository contract ChatService needs.
type ChatStore interface {
	AddChatMessage(in repo.NewChatMessage) domain.ChatMessage
	GetRecentChatMessages(limit int, since *time.Time) []domain.ChatMessage
	GetChatMessage(id string) (domain.ChatMessage, bool)
	GetActiveChatBan(userID string, now time.Time, types ...domain.BanType) (domain.ChatBan, bool)

	Heartbeat(in repo.HeartbeatInput) domain.ChatUser
	SetTyping(userID string, typing bool) bool
	GetTypingUsers(excludeUserID string) []domain.ChatUser
	GetOnlineUsers(window time.Duration) []domain.ChatUser
	MarkChatSeen(userID, messageID string)
	GetUnreadChatCount(userID string) int
	ListStyleOverrides() []domain.UserStyleOverride

	SendPrivateMessage(in repo.NewPrivateMessage) domain.PrivateMessage
	GetPrivateMessage(id string) (domain.PrivateMessage, bool)
	GetConversation(userID, otherUserID string, limit int) []domain.PrivateMessage
	GetConversations(userID string) []domain.Conversation
	MarkConversationRead(userID, otherUserID string) int
	DeletePrivateMessage(id, requesterID string) bool
	GetUnreadPrivateCount(userID string) int
}

// ChatOptions carries the chat limits from configuration.
type ChatOptions struct {
	RateLimitPerMinute int
	MaxMessageLength   int
	AllowedGIFDomains  []string
	OnlineWindow       time.Duration
}

// ChatService coordinates chat posting, direct messages and presence.
type ChatService struct {
	Store ChatStore
	Opts  ChatOptions
	Now   func() time.Time

	limiter *windowLimiter
}

// NewChatService constructs a ChatService with a one-minute message budget.
func NewChatService(s ChatStore, opts ChatOptions) *ChatService {
	if opts.OnlineWindow <= 0 {
		opts.OnlineWindow = 5 * time.Minute
	}
	return &ChatService{
		Store:   s,
		Opts:    opts,
		Now:     func() time.Time { return time.Now().UTC() },
		limiter: newWindowLimiter(opts.RateLimitPerMinute, time.Minute),
	}
}

// SendInput is a chat post.
type SendInput struct {
	UserID    string
	UserName  string
	Content   string
	GifURL    string
	ReplyToID string
}

// Send validates and posts a message to the public room.
func (s *ChatService) Send(ctx context.Context, in SendInput) (domain.ChatMessage, error) {
	_, span := otel.Tracer("services/ChatService").Start(ctx, "Send",
		trace.WithAttributes(attribute.String("user.id", in.UserID)))
	defer span.End()

	content, err := s.validate(in.Content, in.GifURL)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if in.ReplyToID != "" {
		if _, ok := s.Store.GetChatMessage(in.ReplyToID); !ok {
			return domain.ChatMessage{}, ErrNotFound
		}
	}
	if err := s.admit(in.UserID); err != nil {
		return domain.ChatMessage{}, err
	}
	return s.Store.AddChatMessage(repo.NewChatMessage{
		UserID:    in.UserID,
		UserName:  in.UserName,
		Content:   content,
		GifURL:    in.GifURL,
		ReplyToID: in.ReplyToID,
	}), nil
}

// Recent returns up to limit messages posted after since, oldest first.
func (s *ChatService) Recent(ctx context.Context, limit int, since *time.Time) []domain.ChatMessage {
	return s.Store.GetRecentChatMessages(limit, since)
}

// ActiveBan returns the chat or snooze ban currently silencing userID.
func (s *ChatService) ActiveBan(ctx context.Context, userID string) (domain.ChatBan, bool) {
	return s.Store.GetActiveChatBan(userID, s.Now(), domain.BanChat, domain.BanSnooze)
}

// Heartbeat refreshes the presence record of the caller.
func (s *ChatService) Heartbeat(ctx context.Context, in repo.HeartbeatInput) domain.ChatUser {
	return s.Store.Heartbeat(in)
}

// SetTyping updates the typing flag of a user who has sent a heartbeat.
func (s *ChatService) SetTyping(ctx context.Context, userID string, typing bool) error {
	if !s.Store.SetTyping(userID, typing) {
		return ErrNotFound
	}
	return nil
}

// Typing lists users currently typing, excluding the caller.
func (s *ChatService) Typing(ctx context.Context, callerID string) []domain.ChatUser {
	return s.Store.GetTypingUsers(callerID)
}

// Online lists users seen within the configured window.
func (s *ChatService) Online(ctx context.Context) []domain.ChatUser {
	return s.Store.GetOnlineUsers(s.Opts.OnlineWindow)
}

// Styles lists the display overrides every client applies.
func (s *ChatService) Styles(ctx context.Context) []domain.UserStyleOverride {
	return s.Store.ListStyleOverrides()
}

// MarkSeen records the last room message the caller has seen.
func (s *ChatService) MarkSeen(ctx context.Context, userID, messageID string) {
	s.Store.MarkChatSeen(userID, messageID)
}

// UnreadCounts pairs the unread room and direct message counts of a user.
type UnreadCounts struct {
	Chat    int `json:"chat"`
	Private int `json:"private"`
}

// Unread returns the unread counters of userID.
func (s *ChatService) Unread(ctx context.Context, userID string) UnreadCounts {
	return UnreadCounts{
		Chat:    s.Store.GetUnreadChatCount(userID),
		Private: s.Store.GetUnreadPrivateCount(userID),
	}
}

// PrivateInput is a direct message.
type PrivateInput struct {
	SenderID    string
	SenderName  string
	RecipientID string
	Content     string
	GifURL      string
}

// SendPrivate validates and delivers a direct message. The same bans and
// message budget as the public room apply.
func (s *ChatService) SendPrivate(ctx context.Context, in PrivateInput) (domain.PrivateMessage, error) {
	_, span := otel.Tracer("services/ChatService").Start(ctx, "SendPrivate",
		trace.WithAttributes(
			attribute.String("user.id", in.SenderID),
			attribute.String("recipient.id", in.RecipientID),
		),
	)
	defer span.End()

	if in.RecipientID == "" || in.RecipientID == in.SenderID {
		return domain.PrivateMessage{}, ErrNotFound
	}
	content, err := s.validate(in.Content, in.GifURL)
	if err != nil {
		return domain.PrivateMessage{}, err
	}
	if err := s.admit(in.SenderID); err != nil {
		return domain.PrivateMessage{}, err
	}
	return s.Store.SendPrivateMessage(repo.NewPrivateMessage{
		SenderID:    in.SenderID,
		SenderName:  in.SenderName,
		RecipientID: in.RecipientID,
		Content:     content,
		GifURL:      in.GifURL,
	}), nil
}

// Conversation returns the thread between userID and otherUserID.
func (s *ChatService) Conversation(ctx context.Context, userID, otherUserID string, limit int) []domain.PrivateMessage {
	return s.Store.GetConversation(userID, otherUserID, limit)
}

// Conversations lists the caller's threads, most recent first.
func (s *ChatService) Conversations(ctx context.Context, userID string) []domain.Conversation {
	return s.Store.GetConversations(userID)
}

// MarkRead marks otherUserID's messages to userID read.
func (s *ChatService) MarkRead(ctx context.Context, userID, otherUserID string) int {
	return s.Store.MarkConversationRead(userID, otherUserID)
}

// DeletePrivate soft-deletes a direct message. Only its sender may do so.
func (s *ChatService) DeletePrivate(ctx context.Context, id, requesterID string) error {
	m, ok := s.Store.GetPrivateMessage(id)
	if !ok || m.IsDeleted {
		return ErrNotFound
	}
	if m.SenderID != requesterID {
		return ErrForbidden
	}
	if !s.Store.DeletePrivateMessage(id, requesterID) {
		return ErrNotFound
	}
	return nil
}

// PruneRateLimits forgets budget windows that have ended.
func (s *ChatService) PruneRateLimits(now time.Time) int {
	return s.limiter.prune(now)
}

// admit checks the sender's bans, then spends one unit of the message budget.
func (s *ChatService) admit(userID string) error {
	now := s.Now()
	if b, banned := s.Store.GetActiveChatBan(userID, now, domain.BanChat, domain.BanSnooze); banned {
		return chatBanError(ErrChatBanned, b)
	}
	if !s.limiter.allow(userID, now) {
		return ErrRateLimited
	}
	return nil
}

// validate trims content and checks length and the GIF URL. A message needs
// text or a GIF.
func (s *ChatService) validate(content, gifURL string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && gifURL == "" {
		return "", ErrEmptyMessage
	}
	if s.Opts.MaxMessageLength > 0 && utf8.RuneCountInString(content) > s.Opts.MaxMessageLength {
		return "", ErrMessageTooLong
	}
	if gifURL != "" && !gifAllowed(gifURL, s.Opts.AllowedGIFDomains) {
		return "", ErrDisallowedGIF
	}
	return content, nil
}

// gifAllowed accepts https URLs whose host is an allowed domain or one of
// its subdomains.
func gifAllowed(raw string, domains []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
