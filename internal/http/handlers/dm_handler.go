// Direct message endpoints:
//   - POST   /dm                  (send)
//   - GET    /dm                  (conversation summaries)
//   - GET    /dm/{userId}         (thread with one user)
//   - POST   /dm/{userId}/read    (mark a thread read)
//   - DELETE /dm/messages/{id}    (delete own message)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/http/middleware"
	"github.com/tbourn/media-ratings-backend/internal/services"
)

// SendPrivateRequest is the payload of POST /dm.
type SendPrivateRequest struct {
	RecipientID string `json:"recipient_id" validate:"required" example:"5f1c0e9a8b7d4c3e"`
	Content     string `json:"content" example:"want to watch together?"`
	GifURL      string `json:"gif_url" validate:"omitempty,url"`
}

// MarkReadResponse reports how many messages were marked read.
type MarkReadResponse struct {
	Marked int `json:"marked"`
}

// SendPrivate godoc
// @ID          sendPrivateMessage
// @Summary     Send a direct message
// @Tags        DirectMessages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.SendPrivateRequest  true  "Message"
// @Success     201  {object}  domain.PrivateMessage
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Banned"
// @Failure     404  {object}  handlers.ErrorResponse  "Recipient invalid"
// @Failure     429  {object}  handlers.ErrorResponse
// @Router      /dm [post]
func (h *Handlers) SendPrivate(c *gin.Context) {
	var req SendPrivateRequest
	if !bind(c, &req) {
		return
	}
	m, err := h.svc.Chat.SendPrivate(c.Request.Context(), services.PrivateInput{
		SenderID:    caller(c),
		SenderName:  middleware.UserName(c),
		RecipientID: req.RecipientID,
		Content:     req.Content,
		GifURL:      req.GifURL,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// Conversations godoc
// @ID          listConversations
// @Summary     Conversation summaries, most recent first
// @Tags        DirectMessages
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.Conversation
// @Router      /dm [get]
func (h *Handlers) Conversations(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Chat.Conversations(c.Request.Context(), caller(c)))
}

// Conversation godoc
// @ID          getConversation
// @Summary     Thread with one user, oldest first
// @Tags        DirectMessages
// @Produce     json
// @Security    BearerAuth
// @Param       userId  path   string  true   "Other participant"
// @Param       limit   query  int     false  "Max messages"  minimum(1) maximum(500) default(100)
// @Success     200  {array}  domain.PrivateMessage
// @Router      /dm/{userId} [get]
func (h *Handlers) Conversation(c *gin.Context) {
	other, valid := pathParam(c, "userId")
	if !valid {
		return
	}
	limit := limitParam(c, 100, 500)
	ok(c, http.StatusOK, h.svc.Chat.Conversation(c.Request.Context(), caller(c), other, limit))
}

// MarkConversationRead godoc
// @ID          markConversationRead
// @Summary     Mark every message from a user as read
// @Tags        DirectMessages
// @Produce     json
// @Security    BearerAuth
// @Param       userId  path  string  true  "Other participant"
// @Success     200  {object}  handlers.MarkReadResponse
// @Router      /dm/{userId}/read [post]
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	other, valid := pathParam(c, "userId")
	if !valid {
		return
	}
	n := h.svc.Chat.MarkRead(c.Request.Context(), caller(c), other)
	ok(c, http.StatusOK, MarkReadResponse{Marked: n})
}

// DeletePrivate godoc
// @ID          deletePrivateMessage
// @Summary     Delete one of the caller's direct messages
// @Tags        DirectMessages
// @Security    BearerAuth
// @Param       id  path  string  true  "Message ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the sender"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /dm/messages/{id} [delete]
func (h *Handlers) DeletePrivate(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Chat.DeletePrivate(c.Request.Context(), id, caller(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
