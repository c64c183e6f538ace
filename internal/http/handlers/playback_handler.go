// Playback gate endpoints, consulted by the host before playback starts:
//   - GET  /playback/status      (ban and quota without counting)
//   - POST /playback/authorize   (would playback be allowed)
//   - POST /playback/start       (authorize and count one use)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PlaybackDecision is the answer of the authorize and start endpoints.
type PlaybackDecision struct {
	Allowed bool `json:"allowed"`
}

// PlaybackStatus godoc
// @ID          playbackStatus
// @Summary     The caller's media ban and quota
// @Tags        Playback
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.PlaybackStatus
// @Router      /playback/status [get]
func (h *Handlers) PlaybackStatus(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Playback.Status(c.Request.Context(), caller(c)))
}

// AuthorizePlayback godoc
// @ID          authorizePlayback
// @Summary     Check whether playback may start
// @Tags        Playback
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.PlaybackDecision
// @Failure     403  {object}  handlers.ErrorResponse  "Media ban or exhausted quota"
// @Router      /playback/authorize [post]
func (h *Handlers) AuthorizePlayback(c *gin.Context) {
	if err := h.svc.Playback.Authorize(c.Request.Context(), caller(c)); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, PlaybackDecision{Allowed: true})
}

// StartPlayback godoc
// @ID          startPlayback
// @Summary     Authorize and count one use against the quota
// @Tags        Playback
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.PlaybackDecision
// @Failure     403  {object}  handlers.ErrorResponse  "Media ban or exhausted quota"
// @Router      /playback/start [post]
func (h *Handlers) StartPlayback(c *gin.Context) {
	if err := h.svc.Playback.Start(c.Request.Context(), caller(c)); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, PlaybackDecision{Allowed: true})
}
