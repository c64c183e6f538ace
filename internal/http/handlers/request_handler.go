// Media request endpoints:
//   - POST   /requests                        (file; honours Idempotency-Key)
//   - GET    /requests/similar?title=         (open requests with similar titles)
//   - GET    /requests                        (admin; weak ETag)
//   - GET    /requests/mine
//   - GET    /requests/{id}, DELETE /requests/{id}
//   - PATCH  /requests/{id}/status            (admin)
//   - POST   /requests/{id}/snooze, /requests/{id}/unsnooze   (admin)
//   - POST   /deletion-requests               (honours Idempotency-Key)
//   - GET    /deletion-requests, /deletion-requests/mine
//   - POST   /deletion-requests/{id}/resolve  (admin)
//   - POST   /request-bans, GET /request-bans, DELETE /request-bans/{id}   (admin)
//   - PUT    /scheduled-deletions/{itemId}, DELETE ..., GET /scheduled-deletions (admin)
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/domain"
	"github.com/tbourn/media-ratings-backend/internal/http/middleware"
	"github.com/tbourn/media-ratings-backend/internal/services"
)

// CreateRequestRequest is the payload of POST /requests.
type CreateRequestRequest struct {
	Title string `json:"title" validate:"required,max=300" example:"Arrival"`
	Type  string `json:"type" validate:"omitempty,max=32" example:"movie"`
	Notes string `json:"notes" validate:"max=2000"`
}

// StatusRequest is the payload of PATCH /requests/{id}/status. SnoozeHours
// is required for the snoozed status.
type StatusRequest struct {
	Status          string `json:"status" validate:"required,oneof=pending processing snoozed rejected done" example:"done"`
	MediaLink       string `json:"media_link" validate:"omitempty,max=2000"`
	RejectionReason string `json:"rejection_reason" validate:"max=500"`
	SnoozeHours     int    `json:"snooze_hours" validate:"gte=0"`
}

// SnoozeBody is the payload of POST /requests/{id}/snooze.
type SnoozeBody struct {
	Hours int `json:"hours" validate:"required,gt=0" example:"72"`
}

// DeletionRequestRequest is the payload of POST /deletion-requests.
type DeletionRequestRequest struct {
	MediaRequestID string `json:"media_request_id" validate:"required,uuid"`
	ItemID         string `json:"item_id"`
	Reason         string `json:"reason" validate:"max=500"`
}

// ResolveDeletionBody is the payload of POST /deletion-requests/{id}/resolve.
type ResolveDeletionBody struct {
	Status          string `json:"status" validate:"required,oneof=approved rejected" example:"approved"`
	RejectionReason string `json:"rejection_reason" validate:"max=500"`
}

// UserBanRequest is the payload of POST /request-bans. Zero DurationHours
// bans until lifted.
type UserBanRequest struct {
	UserID        string `json:"user_id" validate:"required"`
	BanType       string `json:"ban_type" validate:"required,oneof=media_request deletion_request" example:"media_request"`
	Reason        string `json:"reason" validate:"max=500"`
	DurationHours int    `json:"duration_hours" validate:"gte=0"`
}

// ScheduleRequest is the payload of PUT /scheduled-deletions/{itemId}.
type ScheduleRequest struct {
	Title    string    `json:"title"`
	DeleteAt time.Time `json:"delete_at" validate:"required" example:"2026-11-01T00:00:00Z"`
}

// CreateRequest godoc
// @ID          createMediaRequest
// @Summary     File a media request
// @Description Subject to request bans and the monthly limit. A repeated Idempotency-Key returns the original request.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Replay-safe key"
// @Param       body  body  handlers.CreateRequestRequest  true  "Request"
// @Success     201  {object}  domain.MediaRequest
// @Header      201  {string}  Location  "/requests/{id}"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Banned (with ban details)"
// @Failure     429  {object}  handlers.ErrorResponse  "Monthly limit reached"
// @Router      /requests [post]
func (h *Handlers) CreateRequest(c *gin.Context) {
	ctx := c.Request.Context()
	if rec, replay := middleware.Replayed(c); replay {
		if r, err := h.svc.Requests.Get(ctx, caller(c), rec.ResourceID); err == nil {
			c.Header("Location", "/requests/"+r.ID)
			ok(c, rec.Status, r)
			return
		}
	}
	var req CreateRequestRequest
	if !bind(c, &req) {
		return
	}
	r, err := h.svc.Requests.Create(ctx, services.NewRequestInput{
		UserID:   caller(c),
		Username: middleware.UserName(c),
		Title:    req.Title,
		Type:     req.Type,
		Notes:    req.Notes,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetIdempotentResource(c, r.ID)
	c.Header("Location", "/requests/"+r.ID)
	ok(c, http.StatusCreated, r)
}

// SimilarRequests godoc
// @ID          similarRequests
// @Summary     Open requests with a similar title
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       title  query  string  true   "Title to compare"
// @Param       limit  query  int     false  "Max results"  minimum(1) maximum(20) default(5)
// @Success     200  {array}  domain.MediaRequest
// @Router      /requests/similar [get]
func (h *Handlers) SimilarRequests(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title is required")
		return
	}
	ok(c, http.StatusOK, h.svc.Requests.Similar(c.Request.Context(), title, limitParam(c, 5, 20)))
}

// ListRequests godoc
// @ID          listMediaRequests
// @Summary     Every media request
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       status         query   string  false  "Filter by status"  Enums(pending, processing, snoozed, rejected, done)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {array}   domain.MediaRequest
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	status := domain.RequestStatus(c.Query("status"))
	if h.stats != nil && h.svc.Moderation.IsAdmin(caller(c)) {
		count, rev := h.stats.MediaRequestStats()
		if notModified(c, fmt.Sprintf(`W/"requests:%d:%d:%s"`, count, rev, status)) {
			return
		}
	}
	rs, err := h.svc.Requests.ListAll(c.Request.Context(), caller(c), status)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rs)
}

// MyRequests godoc
// @ID          myMediaRequests
// @Summary     The caller's media requests, newest first
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.MediaRequest
// @Router      /requests/mine [get]
func (h *Handlers) MyRequests(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Requests.ListMine(c.Request.Context(), caller(c)))
}

// GetRequest godoc
// @ID          getMediaRequest
// @Summary     One media request (owner or admin)
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Request ID"
// @Success     200  {object}  domain.MediaRequest
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /requests/{id} [get]
func (h *Handlers) GetRequest(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	r, err := h.svc.Requests.Get(c.Request.Context(), caller(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteRequest godoc
// @ID          deleteMediaRequest
// @Summary     Remove a media request (owner or admin)
// @Tags        Requests
// @Security    BearerAuth
// @Param       id  path  string  true  "Request ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /requests/{id} [delete]
func (h *Handlers) DeleteRequest(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Requests.Delete(c.Request.Context(), caller(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// UpdateRequestStatus godoc
// @ID          updateMediaRequestStatus
// @Summary     Move a request to a new status
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Request ID"
// @Param       body  body  handlers.StatusRequest  true  "Status"
// @Success     200  {object}  domain.MediaRequest
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /requests/{id}/status [patch]
func (h *Handlers) UpdateRequestStatus(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	var req StatusRequest
	if !bind(c, &req) {
		return
	}
	r, err := h.svc.Requests.UpdateStatus(c.Request.Context(), caller(c), id, services.StatusInput{
		Status:          domain.RequestStatus(req.Status),
		MediaLink:       req.MediaLink,
		RejectionReason: req.RejectionReason,
		SnoozeFor:       time.Duration(req.SnoozeHours) * time.Hour,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// SnoozeRequest godoc
// @ID          snoozeMediaRequest
// @Summary     Park a request for a number of hours
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Request ID"
// @Param       body  body  handlers.SnoozeBody  true  "Snooze"
// @Success     200  {object}  domain.MediaRequest
// @Router      /requests/{id}/snooze [post]
func (h *Handlers) SnoozeRequest(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	var req SnoozeBody
	if !bind(c, &req) {
		return
	}
	r, err := h.svc.Requests.Snooze(c.Request.Context(), caller(c), id, time.Duration(req.Hours)*time.Hour)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// UnsnoozeRequest godoc
// @ID          unsnoozeMediaRequest
// @Summary     Return a snoozed request to pending
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Request ID"
// @Success     200  {object}  domain.MediaRequest
// @Router      /requests/{id}/unsnooze [post]
func (h *Handlers) UnsnoozeRequest(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	r, err := h.svc.Requests.Unsnooze(c.Request.Context(), caller(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// CreateDeletionRequest godoc
// @ID          createDeletionRequest
// @Summary     Ask for the item behind one of the caller's requests to be removed
// @Tags        DeletionRequests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Replay-safe key"
// @Param       body  body  handlers.DeletionRequestRequest  true  "Deletion request"
// @Success     201  {object}  domain.DeletionRequest
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Already pending"
// @Router      /deletion-requests [post]
func (h *Handlers) CreateDeletionRequest(c *gin.Context) {
	ctx := c.Request.Context()
	if rec, replay := middleware.Replayed(c); replay {
		for _, d := range h.svc.Requests.ListMyDeletions(ctx, caller(c)) {
			if d.ID == rec.ResourceID {
				ok(c, rec.Status, d)
				return
			}
		}
	}
	var req DeletionRequestRequest
	if !bind(c, &req) {
		return
	}
	d, err := h.svc.Requests.RequestDeletion(ctx, services.DeletionInput{
		UserID:         caller(c),
		Username:       middleware.UserName(c),
		MediaRequestID: req.MediaRequestID,
		ItemID:         req.ItemID,
		Reason:         req.Reason,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetIdempotentResource(c, d.ID)
	ok(c, http.StatusCreated, d)
}

// ListDeletionRequests godoc
// @ID          listDeletionRequests
// @Summary     Every deletion request
// @Tags        DeletionRequests
// @Produce     json
// @Security    BearerAuth
// @Param       status  query  string  false  "Filter"  Enums(pending, approved, rejected)
// @Success     200  {array}  domain.DeletionRequest
// @Router      /deletion-requests [get]
func (h *Handlers) ListDeletionRequests(c *gin.Context) {
	ds, err := h.svc.Requests.ListDeletions(c.Request.Context(), caller(c), domain.DeletionStatus(c.Query("status")))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ds)
}

// MyDeletionRequests godoc
// @ID          myDeletionRequests
// @Summary     The caller's deletion requests
// @Tags        DeletionRequests
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.DeletionRequest
// @Router      /deletion-requests/mine [get]
func (h *Handlers) MyDeletionRequests(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Requests.ListMyDeletions(c.Request.Context(), caller(c)))
}

// ResolveDeletionRequest godoc
// @ID          resolveDeletionRequest
// @Summary     Approve or reject a pending deletion request
// @Description Approval deletes the library item when a host is configured.
// @Tags        DeletionRequests
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Deletion request ID"
// @Param       body  body  handlers.ResolveDeletionBody  true  "Decision"
// @Success     200  {object}  domain.DeletionRequest
// @Failure     400  {object}  handlers.ErrorResponse  "Not pending"
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /deletion-requests/{id}/resolve [post]
func (h *Handlers) ResolveDeletionRequest(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	var req ResolveDeletionBody
	if !bind(c, &req) {
		return
	}
	d, err := h.svc.Requests.ResolveDeletion(c.Request.Context(), caller(c), middleware.UserName(c), id,
		domain.DeletionStatus(req.Status), req.RejectionReason)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// BanRequester godoc
// @ID          banRequester
// @Summary     Revoke a user's request privilege
// @Tags        RequestBans
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.UserBanRequest  true  "Ban"
// @Success     201  {object}  domain.UserBan
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /request-bans [post]
func (h *Handlers) BanRequester(c *gin.Context) {
	var req UserBanRequest
	if !bind(c, &req) {
		return
	}
	b, err := h.svc.Requests.BanUser(c.Request.Context(), caller(c), services.UserBanInput{
		TargetID: req.UserID,
		Type:     domain.UserBanType(req.BanType),
		Reason:   req.Reason,
		Duration: time.Duration(req.DurationHours) * time.Hour,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

// ListRequestBans godoc
// @ID          listRequestBans
// @Summary     Request bans, optionally of one user
// @Tags        RequestBans
// @Produce     json
// @Security    BearerAuth
// @Param       user_id  query  string  false  "Filter by user"
// @Success     200  {array}  domain.UserBan
// @Router      /request-bans [get]
func (h *Handlers) ListRequestBans(c *gin.Context) {
	bs, err := h.svc.Requests.ListUserBans(c.Request.Context(), caller(c), c.Query("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, bs)
}

// LiftRequestBan godoc
// @ID          liftRequestBan
// @Summary     Lift a request ban
// @Tags        RequestBans
// @Security    BearerAuth
// @Param       id  path  string  true  "Ban ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /request-bans/{id} [delete]
func (h *Handlers) LiftRequestBan(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Requests.LiftUserBan(c.Request.Context(), caller(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ScheduleDeletion godoc
// @ID          scheduleDeletion
// @Summary     Schedule a library item for deletion
// @Tags        ScheduledDeletions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       itemId  path  string  true  "Library item ID"
// @Param       body    body  handlers.ScheduleRequest  true  "When"
// @Success     200  {object}  domain.ScheduledDeletion
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Item not in library"
// @Router      /scheduled-deletions/{itemId} [put]
func (h *Handlers) ScheduleDeletion(c *gin.Context) {
	itemID, valid := pathParam(c, "itemId")
	if !valid {
		return
	}
	var req ScheduleRequest
	if !bind(c, &req) {
		return
	}
	sd, err := h.svc.Requests.Schedule(c.Request.Context(), caller(c), itemID, req.Title, req.DeleteAt)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sd)
}

// CancelScheduledDeletion godoc
// @ID          cancelScheduledDeletion
// @Summary     Cancel a scheduled deletion
// @Tags        ScheduledDeletions
// @Security    BearerAuth
// @Param       itemId  path  string  true  "Library item ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /scheduled-deletions/{itemId} [delete]
func (h *Handlers) CancelScheduledDeletion(c *gin.Context) {
	itemID, valid := pathParam(c, "itemId")
	if !valid {
		return
	}
	if err := h.svc.Requests.CancelSchedule(c.Request.Context(), caller(c), itemID); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListScheduledDeletions godoc
// @ID          listScheduledDeletions
// @Summary     Every scheduled deletion
// @Tags        ScheduledDeletions
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.ScheduledDeletion
// @Router      /scheduled-deletions [get]
func (h *Handlers) ListScheduledDeletions(c *gin.Context) {
	sds, err := h.svc.Requests.ListScheduled(c.Request.Context(), caller(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sds)
}
