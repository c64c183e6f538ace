// Backup endpoints (admin):
//   - POST   /backups               (archive every collection file)
//   - GET    /backups
//   - DELETE /backups/{id}
//   - POST   /backups/{id}/restore
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/media-ratings-backend/internal/utils"
)

// BackupRequest is the optional payload of POST /backups.
type BackupRequest struct {
	Label string `json:"label" validate:"max=255" example:"before upgrade"`
}

// RestoreResponse lists the collection files that were restored.
type RestoreResponse struct {
	BackupID string   `json:"backup_id"`
	Files    []string `json:"files"`
}

// CreateBackup godoc
// @ID          createBackup
// @Summary     Archive every collection file
// @Tags        Backups
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.BackupRequest  false  "Label"
// @Success     201  {object}  domain.Backup
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /backups [post]
func (h *Handlers) CreateBackup(c *gin.Context) {
	var req BackupRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	b, err := h.svc.Backups.Create(c.Request.Context(), caller(c), req.Label)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

// ListBackups godoc
// @ID          listBackups
// @Summary     Backups, newest first
// @Tags        Backups
// @Produce     json
// @Security    BearerAuth
// @Param       page       query  int  false  "1-based page; omit for all"
// @Param       page_size  query  int  false  "Page size (default 20, max 100)"
// @Success     200  {array}  domain.Backup
// @Header      200  {integer}  X-Total-Pages  "Number of pages when paginated"
// @Router      /backups [get]
func (h *Handlers) ListBackups(c *gin.Context) {
	bs, err := h.svc.Backups.List(c.Request.Context(), caller(c))
	if err != nil {
		failErr(c, err)
		return
	}
	if c.Query("page") != "" {
		size := utils.Clamp(utils.AtoiDefault(c.Query("page_size"), 20), 1, 100)
		var pages int
		bs, pages = utils.Page(bs, utils.AtoiDefault(c.Query("page"), 1), size)
		c.Header("X-Total-Pages", strconv.Itoa(pages))
	}
	ok(c, http.StatusOK, bs)
}

// DeleteBackup godoc
// @ID          deleteBackup
// @Summary     Remove a backup
// @Tags        Backups
// @Security    BearerAuth
// @Param       id  path  string  true  "Backup ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /backups/{id} [delete]
func (h *Handlers) DeleteBackup(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Backups.Delete(c.Request.Context(), caller(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// RestoreBackup godoc
// @ID          restoreBackup
// @Summary     Overwrite the live collections with a backup
// @Tags        Backups
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Backup ID"
// @Success     200  {object}  handlers.RestoreResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /backups/{id}/restore [post]
func (h *Handlers) RestoreBackup(c *gin.Context) {
	id, valid := entityID(c, "id")
	if !valid {
		return
	}
	files, err := h.svc.Backups.Restore(c.Request.Context(), caller(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RestoreResponse{BackupID: id, Files: files})
}
