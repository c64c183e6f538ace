// Moderation endpoints. Admin status comes from the heartbeat flag and
// moderator rights from the roster; the service enforces both.
//   - GET    /moderation/me
//   - POST   /moderation/bans, GET /moderation/bans, DELETE /moderation/bans/{id}
//   - DELETE /chat/messages/{id}, DELETE /chat/messages
//   - PUT    /moderation/moderators/{userId}, DELETE ..., GET /moderation/moderators
//   - PUT    /moderation/styles/{userId}, DELETE ...
//   - PUT    /moderation/quotas/{userId}, DELETE ..., GET /moderation/quotas
//   - GET    /moderation/actions
//   - GET    /moderation/media-ban-days
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/services"
)

// BanRequest is the payload of POST /moderation/bans. DurationMinutes is
// ignored for permanent bans.
type BanRequest struct {
	UserID          string `json:"user_id" validate:"required"`
	UserName        string `json:"user_name"`
	BanType         string `json:"ban_type" validate:"required,oneof=chat snooze media" example:"chat"`
	Reason          string `json:"reason" validate:"max=500"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0" example:"60"`
	Permanent       bool   `json:"permanent"`
}

// ModeratorRequest is the payload of PUT /moderation/moderators/{userId}.
type ModeratorRequest struct {
	UserName string `json:"user_name"`
	Level    int    `json:"level" validate:"omitempty,min=1,max=3" example:"1"`
}

// StyleRequest is the payload of PUT /moderation/styles/{userId}.
type StyleRequest struct {
	NicknameColor string `json:"nickname_color" validate:"omitempty,hexcolor" example:"#ff8800"`
	MessageColor  string `json:"message_color" validate:"omitempty,hexcolor"`
	TextStyle     string `json:"text_style" validate:"max=32"`
}

// QuotaRequest is the payload of PUT /moderation/quotas/{userId}. Zero
// leaves a window unlimited.
type QuotaRequest struct {
	DailyLimit   int `json:"daily_limit" validate:"gte=0"`
	WeeklyLimit  int `json:"weekly_limit" validate:"gte=0"`
	MonthlyLimit int `json:"monthly_limit" validate:"gte=0"`
}

// ClearChatResponse reports how many messages were removed.
type ClearChatResponse struct {
	Removed int `json:"removed"`
}

// MediaBanDaysResponse is the monthly media-ban total of one moderator
// against one user.
type MediaBanDaysResponse struct {
	ModeratorID string `json:"moderator_id"`
	UserID      string `json:"user_id"`
	Days        int    `json:"days"`
}

// ModerationRole godoc
// @ID          moderationRole
// @Summary     The caller's moderation standing
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.Role
// @Router      /moderation/me [get]
func (h *Handlers) ModerationRole(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Moderation.Role(c.Request.Context(), caller(c)))
}

// Ban godoc
// @ID          issueBan
// @Summary     Ban a user from chat, snooze them, or ban them from playback
// @Description Moderators are capped by level; media bans need an admin.
// @Tags        Moderation
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.BanRequest  true  "Ban"
// @Success     201  {object}  domain.ChatBan
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not allowed, target is admin, or duration too long"
// @Router      /moderation/bans [post]
func (h *Handlers) Ban(c *gin.Context) {
	var req BanRequest
	if !bind(c, &req) {
		return
	}
	b, err := h.svc.Moderation.Ban(c.Request.Context(), caller(c), services.BanInput{
		TargetID:   req.UserID,
		TargetName: req.UserName,
		Type:       domain.BanType(req.BanType),
		Reason:     req.Reason,
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
		Permanent:  req.Permanent,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

// Unban godoc
// @ID          liftBan
// @Summary     Lift a ban
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Ban ID"
// @Success     200  {object}  domain.ChatBan
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /moderation/bans/{id} [delete]
func (h *Handlers) Unban(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	b, err := h.svc.Moderation.Unban(c.Request.Context(), caller(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// ListBans godoc
// @ID          listBans
// @Summary     Chat, snooze and media bans
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Param       active  query  bool  false  "Only bans in force"
// @Success     200  {array}  domain.ChatBan
// @Router      /moderation/bans [get]
func (h *Handlers) ListBans(c *gin.Context) {
	bans, err := h.svc.Moderation.ListBans(c.Request.Context(), caller(c), c.Query("active") == "true")
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, bans)
}

// DeleteChatMessage godoc
// @ID          deleteChatMessage
// @Summary     Soft-delete a room message
// @Description Moderators spend one unit of their daily allowance.
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Message ID"
// @Success     200  {object}  domain.ChatMessage
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     429  {object}  handlers.ErrorResponse  "Daily allowance used"
// @Router      /chat/messages/{id} [delete]
func (h *Handlers) DeleteChatMessage(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	m, err := h.svc.Moderation.DeleteMessage(c.Request.Context(), caller(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// ClearChat godoc
// @ID          clearChat
// @Summary     Remove every room message
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ClearChatResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /chat/messages [delete]
func (h *Handlers) ClearChat(c *gin.Context) {
	n, err := h.svc.Moderation.ClearChat(c.Request.Context(), caller(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ClearChatResponse{Removed: n})
}

// AddModerator godoc
// @ID          addModerator
// @Summary     Grant moderation rights
// @Tags        Moderation
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       userId  path  string  true  "Target user"
// @Param       body    body  handlers.ModeratorRequest  true  "Level"
// @Success     200  {object}  domain.ChatModerator
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /moderation/moderators/{userId} [put]
func (h *Handlers) AddModerator(c *gin.Context) {
	target, valid := pathParam(c, "userId")
	if !valid {
		return
	}
	var req ModeratorRequest
	if !bind(c, &req) {
		return
	}
	m, err := h.svc.Moderation.AddModerator(c.Request.Context(), caller(c), target, req.UserName, req.Level)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// RemoveModerator godoc
// @ID          removeModerator
// @Summary     Revoke moderation rights
// @Tags        Moderation
// @Security    BearerAuth
// @Param       userId  path  string  true  "Target user"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /moderation/moderators/{userId} [delete]
func (h *Handlers) RemoveModerator(c *gin.Context) {
	target, valid := pathParam(c, "userId")
	if !valid {
		return
	}
	if err := h.svc.Moderation.RemoveModerator(c.Request.Context(), caller(c), target); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListModerators godoc
// @ID          listModerators
// @Summary     Moderator roster
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.ChatModerator
// @Router      /moderation/moderators [get]
func (h *Handlers) ListModerators(c *gin.Context) {
	mods, err := h.svc.Moderation.ListModerators(c.Request.Context(), caller(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, mods)
}

// SetStyle godoc
// @ID          setStyle
// @Summary     Replace a user's display override
// @Tags        Moderation
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       userId  path  string  true  "Target user"
// @Param       body    body  handlers.StyleRequest  true  "Style"
// @Success     200  {object}  domain.UserStyleOverride
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /moderation/styles/{userId} [put]
func (h *Handlers) SetStyle(c *gin.Context) {
	target, valid := pathParam(c, "userId")
	if !valid {
		return
	}
	var req StyleRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.svc.Moderation.SetStyle(c.Request.Context(), caller(c), domain.UserStyleOverride{
		UserID:        target,
		NicknameColor: req.NicknameColor,
		MessageColor:  req.MessageColor,
		TextStyle:     req.TextStyle,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// RemoveStyle godoc
// @ID          removeStyle
// @Summary     Remove a user's display override
// @Tags        Moderation
// @Security    BearerAuth
// @Param       userId  path  string  true  "Target user"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /moderation/styles/{userId} [delete]
func (h *Handlers) RemoveStyle(c *gin.Context) {
	target, valid := pathParam(c, "userId")
	if !valid {
		return
	}
	if err := h.svc.Moderation.RemoveStyle(c.Request.Context(), caller(c), target); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// SetQuota godoc
// @ID          setQuota
// @Summary     Set a user's playback limits
// @Tags        Moderation
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       userId  path  string  true  "Target user"
// @Param       body    body  handlers.QuotaRequest  true  "Limits"
// @Success     200  {object}  domain.MediaQuota
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /moderation/quotas/{userId} [put]
func (h *Handlers) SetQuota(c *gin.Context) {
	target, valid := pathParam(c, "userId")
	if !valid {
		return
	}
	var req QuotaRequest
	if !bind(c, &req) {
		return
	}
	q, err := h.svc.Moderation.SetQuota(c.Request.Context(), caller(c), target, req.DailyLimit, req.WeeklyLimit, req.MonthlyLimit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, q)
}

// RemoveQuota godoc
// @ID          removeQuota
// @Summary     Lift a user's playback limits
// @Tags        Moderation
// @Security    BearerAuth
// @Param       userId  path  string  true  "Target user"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /moderation/quotas/{userId} [delete]
func (h *Handlers) RemoveQuota(c *gin.Context) {
	target, valid := pathParam(c, "userId")
	if !valid {
		return
	}
	if err := h.svc.Moderation.RemoveQuota(c.Request.Context(), caller(c), target); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListQuotas godoc
// @ID          listQuotas
// @Summary     Every quota, rolled over to now
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.MediaQuota
// @Router      /moderation/quotas [get]
func (h *Handlers) ListQuotas(c *gin.Context) {
	qs, err := h.svc.Moderation.ListQuotas(c.Request.Context(), caller(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, qs)
}

// ModeratorActions godoc
// @ID          moderatorActions
// @Summary     Newest audit entries
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query  int  false  "Max entries"  minimum(1) maximum(500) default(100)
// @Success     200  {array}  domain.ModeratorAction
// @Router      /moderation/actions [get]
func (h *Handlers) ModeratorActions(c *gin.Context) {
	acts, err := h.svc.Moderation.Actions(c.Request.Context(), caller(c), limitParam(c, 100, 500))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, acts)
}

// MediaBanDays godoc
// @ID          mediaBanDays
// @Summary     Media-ban days one moderator issued against one user this month
// @Tags        Moderation
// @Produce     json
// @Security    BearerAuth
// @Param       moderator_id  query  string  true  "Moderator"
// @Param       user_id       query  string  true  "Target user"
// @Success     200  {object}  handlers.MediaBanDaysResponse
// @Router      /moderation/media-ban-days [get]
func (h *Handlers) MediaBanDays(c *gin.Context) {
	modID, userID := c.Query("moderator_id"), c.Query("user_id")
	if modID == "" || userID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "moderator_id and user_id are required")
		return
	}
	days, err := h.svc.Moderation.MediaBanDaysThisMonth(c.Request.Context(), caller(c), modID, userID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MediaBanDaysResponse{ModeratorID: modID, UserID: userID, Days: days})
}
