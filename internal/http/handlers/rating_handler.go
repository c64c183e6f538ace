// Rating endpoints:
//   - PUT    /ratings/{itemId}        (rate)
//   - GET    /ratings/{itemId}        (stats with the caller's rating)
//   - DELETE /ratings/{itemId}        (remove the caller's rating)
//   - GET    /ratings/{itemId}/all    (every rating of an item)
//   - GET    /me/ratings              (the caller's ratings)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RateRequest is the payload of PUT /ratings/{itemId}. The configured range
// is enforced by the service.
type RateRequest struct {
	Rating int `json:"rating" validate:"required" example:"8"`
}

// Rate godoc
// @ID          rateItem
// @Summary     Rate a library item
// @Description Creates or replaces the caller's rating of the item.
// @Tags        Ratings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       itemId  path  string  true  "Library item ID"
// @Param       body    body  handlers.RateRequest  true  "Rating"
// @Success     200  {object}  domain.UserRating
// @Failure     400  {object}  handlers.ErrorResponse  "Out of range"
// @Failure     403  {object}  handlers.ErrorResponse  "Feature disabled"
// @Router      /ratings/{itemId} [put]
func (h *Handlers) Rate(c *gin.Context) {
	itemID, valid := pathParam(c, "itemId")
	if !valid {
		return
	}
	var req RateRequest
	if !bind(c, &req) {
		return
	}
	r, err := h.svc.Ratings.Rate(c.Request.Context(), caller(c), itemID, req.Rating)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// RatingStats godoc
// @ID          ratingStats
// @Summary     Rating statistics of an item
// @Description Average (2 decimals), count and 1..10 histogram, plus the caller's own rating when present.
// @Tags        Ratings
// @Produce     json
// @Security    BearerAuth
// @Param       itemId  path  string  true  "Library item ID"
// @Success     200  {object}  domain.RatingStats
// @Router      /ratings/{itemId} [get]
func (h *Handlers) RatingStats(c *gin.Context) {
	itemID, valid := pathParam(c, "itemId")
	if !valid {
		return
	}
	ok(c, http.StatusOK, h.svc.Ratings.Stats(c.Request.Context(), itemID, caller(c)))
}

// DeleteRating godoc
// @ID          deleteRating
// @Summary     Remove the caller's rating
// @Tags        Ratings
// @Security    BearerAuth
// @Param       itemId  path  string  true  "Library item ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /ratings/{itemId} [delete]
func (h *Handlers) DeleteRating(c *gin.Context) {
	itemID, valid := pathParam(c, "itemId")
	if !valid {
		return
	}
	if !h.svc.Ratings.Delete(c.Request.Context(), caller(c), itemID) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no rating for this item")
		return
	}
	noContent(c)
}

// ItemRatings godoc
// @ID          itemRatings
// @Summary     Every rating of an item
// @Tags        Ratings
// @Produce     json
// @Security    BearerAuth
// @Param       itemId  path  string  true  "Library item ID"
// @Success     200  {array}  domain.UserRating
// @Router      /ratings/{itemId}/all [get]
func (h *Handlers) ItemRatings(c *gin.Context) {
	itemID, valid := pathParam(c, "itemId")
	if !valid {
		return
	}
	ok(c, http.StatusOK, h.svc.Ratings.ItemRatings(c.Request.Context(), itemID))
}

// MyRatings godoc
// @ID          myRatings
// @Summary     The caller's ratings
// @Tags        Ratings
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.UserRating
// @Router      /me/ratings [get]
func (h *Handlers) MyRatings(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Ratings.UserRatings(c.Request.Context(), caller(c)))
}
