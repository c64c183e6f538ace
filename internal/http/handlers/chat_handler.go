// Chat and presence endpoints:
//   - POST   /chat/messages           (send)
//   - GET    /chat/messages           (recent, oldest first, weak ETag)
//   - POST   /chat/heartbeat          (presence upsert)
//   - PUT    /chat/typing             (typing flag)
//   - GET    /chat/typing             (who is typing)
//   - GET    /chat/online             (who is online)
//   - POST   /chat/seen               (mark the room read up to a message)
//   - GET    /chat/unread             (room and DM unread counts)
//   - GET    /chat/ban                (the caller's active chat ban)
//   - GET    /chat/styles             (display overrides)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/http/middleware"
	"github.com/tbourn/media-ratings-backend/internal/repo"
	"github.com/tbourn/media-ratings-backend/internal/services"
)

// SendMessageRequest is the payload of POST /chat/messages. Either content or
// gif_url must be set; the service enforces length and the GIF allowlist.
type SendMessageRequest struct {
	Content   string `json:"content" example:"anyone watching Dune tonight?"`
	GifURL    string `json:"gif_url" validate:"omitempty,url" example:"https://media.giphy.com/media/x/giphy.gif"`
	ReplyToID string `json:"reply_to_id" validate:"omitempty,uuid"`
}

// HeartbeatRequest refreshes the caller's presence. IsAdmin is asserted by
// the client and trusted for moderation gating.
type HeartbeatRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// TypingRequest sets the typing flag.
type TypingRequest struct {
	Typing bool `json:"typing"`
}

// SeenRequest marks the room as read up to MessageID.
type SeenRequest struct {
	MessageID string `json:"message_id" validate:"required,uuid"`
}

// BanStatusResponse is the answer of GET /chat/ban.
type BanStatusResponse struct {
	Banned bool        `json:"banned"`
	Ban    *BanDetails `json:"ban,omitempty"`
}

// SendMessage godoc
// @ID          sendChatMessage
// @Summary     Post to the room
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.SendMessageRequest  true  "Message"
// @Success     201  {object}  domain.ChatMessage
// @Failure     400  {object}  handlers.ErrorResponse  "Empty, too long or disallowed GIF"
// @Failure     403  {object}  handlers.ErrorResponse  "Banned (with ban details)"
// @Failure     429  {object}  handlers.ErrorResponse  "Per-minute limit reached"
// @Router      /chat/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !bind(c, &req) {
		return
	}
	m, err := h.svc.Chat.Send(c.Request.Context(), services.SendInput{
		UserID:    caller(c),
		UserName:  middleware.UserName(c),
		Content:   req.Content,
		GifURL:    req.GifURL,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// RecentMessages godoc
// @ID          recentChatMessages
// @Summary     Recent room messages
// @Description Oldest first. Supports a weak ETag via If-None-Match.
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Param       limit          query   int     false  "Max messages"  minimum(1) maximum(1000) default(50)
// @Param       since          query   string  false  "RFC 3339 lower bound"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {array}   domain.ChatMessage
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Router      /chat/messages [get]
func (h *Handlers) RecentMessages(c *gin.Context) {
	limit := limitParam(c, 50, 1000)
	since, valid := sinceParam(c)
	if !valid {
		return
	}
	if h.stats != nil {
		count, deleted, latest := h.stats.ChatStats()
		etag := fmt.Sprintf(`W/"chat:%d:%d:%d:%d:%d"`, count, deleted, unixOrZero(latest), limit, unixOrZero(since))
		if notModified(c, etag) {
			return
		}
	}
	ok(c, http.StatusOK, h.svc.Chat.Recent(c.Request.Context(), limit, since))
}

// Heartbeat godoc
// @ID          chatHeartbeat
// @Summary     Refresh presence
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.HeartbeatRequest  true  "Presence"
// @Success     200  {object}  domain.ChatUser
// @Router      /chat/heartbeat [post]
func (h *Handlers) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if !bind(c, &req) {
		return
	}
	u := h.svc.Chat.Heartbeat(c.Request.Context(), repo.HeartbeatInput{
		UserID:    caller(c),
		UserName:  middleware.UserName(c),
		AvatarURL: middleware.AvatarURL(c),
		IsAdmin:   req.IsAdmin,
	})
	ok(c, http.StatusOK, u)
}

// SetTyping godoc
// @ID          setTyping
// @Summary     Set the typing flag
// @Description The flag expires on its own after 10 seconds.
// @Tags        Chat
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.TypingRequest  true  "Typing"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "No heartbeat yet"
// @Router      /chat/typing [put]
func (h *Handlers) SetTyping(c *gin.Context) {
	var req TypingRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Chat.SetTyping(c.Request.Context(), caller(c), req.Typing); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Typing godoc
// @ID          typingUsers
// @Summary     Users currently typing
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.ChatUser
// @Router      /chat/typing [get]
func (h *Handlers) Typing(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Chat.Typing(c.Request.Context(), caller(c)))
}

// Online godoc
// @ID          onlineUsers
// @Summary     Users seen recently, ordered by name
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.ChatUser
// @Router      /chat/online [get]
func (h *Handlers) Online(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Chat.Online(c.Request.Context()))
}

// MarkSeen godoc
// @ID          markChatSeen
// @Summary     Mark the room read up to a message
// @Tags        Chat
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.SeenRequest  true  "Last seen message"
// @Success     204  {string}  string  "No Content"
// @Router      /chat/seen [post]
func (h *Handlers) MarkSeen(c *gin.Context) {
	var req SeenRequest
	if !bind(c, &req) {
		return
	}
	h.svc.Chat.MarkSeen(c.Request.Context(), caller(c), req.MessageID)
	noContent(c)
}

// Unread godoc
// @ID          unreadCounts
// @Summary     Unread room messages and direct messages
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.UnreadCounts
// @Router      /chat/unread [get]
func (h *Handlers) Unread(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Chat.Unread(c.Request.Context(), caller(c)))
}

// MyBan godoc
// @ID          myChatBan
// @Summary     The caller's active chat or snooze ban
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.BanStatusResponse
// @Router      /chat/ban [get]
func (h *Handlers) MyBan(c *gin.Context) {
	b, banned := h.svc.Chat.ActiveBan(c.Request.Context(), caller(c))
	resp := BanStatusResponse{Banned: banned}
	if banned {
		resp.Ban = &BanDetails{Type: string(b.BanType), Reason: b.Reason, ExpiresAt: b.ExpiresAt, Permanent: b.IsPermanent}
	}
	ok(c, http.StatusOK, resp)
}

// Styles godoc
// @ID          chatStyles
// @Summary     Display overrides for every styled user
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.UserStyleOverride
// @Router      /chat/styles [get]
func (h *Handlers) Styles(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Chat.Styles(c.Request.Context()))
}
