// New-media notification endpoints:
//   - GET  /notifications?since=   (poll, oldest first)
//   - POST /notifications/test     (admin)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Notifications godoc
// @ID          listNotifications
// @Summary     New-media notifications after a point in time
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       since  query  string  false  "RFC 3339 lower bound"
// @Success     200  {array}  domain.NewMediaNotification
// @Router      /notifications [get]
func (h *Handlers) Notifications(c *gin.Context) {
	since, valid := sinceParam(c)
	if !valid {
		return
	}
	ok(c, http.StatusOK, h.svc.Notifications.Since(c.Request.Context(), since))
}

// TestNotification godoc
// @ID          testNotification
// @Summary     Record a notification for a random library item
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     201  {object}  domain.NewMediaNotification
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse  "No host library configured"
// @Router      /notifications/test [post]
func (h *Handlers) TestNotification(c *gin.Context) {
	n, err := h.svc.Notifications.SendTest(c.Request.Context(), caller(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, n)
}
