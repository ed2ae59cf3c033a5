package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
)

var errMissingBusinessID = errors.New("httpapi: business_id query parameter is required")

type reasonResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Label     string `json:"label"`
	SortOrder int    `json:"sort_order"`
}

// listReasons returns the active reason catalog, localized via the
// language query parameter (default English).
func (a *API) listReasons(c *gin.Context) {
	language := c.DefaultQuery("language", "en")

	reasons, err := a.engine.ListReasons(c.Request.Context(), true)
	if err != nil {
		a.fail(c, err)
		return
	}

	out := make([]reasonResponse, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, reasonResponse{
			ID:        r.ID.String(),
			Key:       r.Key,
			Label:     r.Label(language),
			SortOrder: r.SortOrder,
		})
	}
	ok(c, http.StatusOK, out)
}

func (a *API) listFailedDeliveries(c *gin.Context) {
	businessID := c.Query("business_id")
	if businessID == "" {
		badRequest(c, errMissingBusinessID)
		return
	}

	opts := failure.ListOpts{
		Status:         failure.Status(c.Query("status")),
		ResolutionType: failure.ResolutionType(c.Query("resolution_type")),
		Limit:          intQuery(c, "limit"),
		Offset:         intQuery(c, "offset"),
	}

	records, err := a.engine.ListFailedDeliveries(c.Request.Context(), businessID, opts, callerIdentity(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	ok(c, http.StatusOK, records)
}

func (a *API) getFailedDelivery(c *gin.Context) {
	orderID, err := id.ParseOrderID(c.Param("orderId"))
	if err != nil {
		badRequest(c, err)
		return
	}

	record, err := a.engine.GetFailedDelivery(c.Request.Context(), orderID, callerIdentity(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	ok(c, http.StatusOK, record)
}

type markFailedRequest struct {
	ReasonID string `json:"reason_id" binding:"required"`
	Notes    string `json:"notes"`
}

func (a *API) markFailed(c *gin.Context) {
	orderID, err := id.ParseOrderID(c.Param("orderId"))
	if err != nil {
		badRequest(c, err)
		return
	}

	var req markFailedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	reasonID, err := id.ParseReasonID(req.ReasonID)
	if err != nil {
		badRequest(c, err)
		return
	}

	record, err := a.engine.MarkFailed(c.Request.Context(), orderID, reasonID, req.Notes)
	if err != nil {
		a.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, record)
}

type resolveRequest struct {
	Type             string `json:"type" binding:"required"`
	Outcome          string `json:"outcome" binding:"required"`
	RestoreInventory bool   `json:"restore_inventory"`
}

func (a *API) resolveFailedDelivery(c *gin.Context) {
	orderID, err := id.ParseOrderID(c.Param("orderId"))
	if err != nil {
		badRequest(c, err)
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	caller := callerIdentity(c)
	res := failure.Resolution{
		Type:             failure.ResolutionType(req.Type),
		Outcome:          req.Outcome,
		RestoreInventory: req.RestoreInventory,
		ResolvedBy:       caller.Ref,
	}

	stl, err := a.engine.Resolve(c.Request.Context(), orderID, res, caller)
	if err != nil {
		a.fail(c, err)
		return
	}
	ok(c, http.StatusOK, stl)
}
