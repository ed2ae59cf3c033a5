package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/types"
)

type orderLineRequest struct {
	ItemID         string `json:"item_id"`
	Name           string `json:"name" binding:"required"`
	Quantity       int64  `json:"quantity" binding:"required,gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" binding:"required,gt=0"`
}

type createOrderRequest struct {
	BusinessID        string             `json:"business_id" binding:"required"`
	ClientID          string             `json:"client_id" binding:"required"`
	Currency          string             `json:"currency" binding:"required"`
	SubtotalCents     int64              `json:"subtotal_cents" binding:"required,gt=0"`
	DeliveryFeeCents  int64              `json:"delivery_fee_cents"`
	VerifiedAgentOnly bool               `json:"verified_agent_only"`
	Lines             []orderLineRequest `json:"lines" binding:"required,min=1,dive"`
	Metadata          map[string]string  `json:"metadata"`
}

func (a *API) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// Currency codes are lowercase internally; accept any case on the wire.
	currency := strings.ToLower(req.Currency)

	lines := make([]order.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		line := order.Line{
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: types.Money{Amount: l.UnitPriceCents, Currency: currency},
			Amount:    types.Money{Amount: l.UnitPriceCents * l.Quantity, Currency: currency},
		}
		if l.ItemID != "" {
			itemID, err := id.ParseItemID(l.ItemID)
			if err != nil {
				badRequest(c, err)
				return
			}
			line.ItemID = itemID
		}
		lines = append(lines, line)
	}

	o := &order.Order{
		BusinessID:        req.BusinessID,
		ClientID:          req.ClientID,
		Currency:          currency,
		Subtotal:          types.Money{Amount: req.SubtotalCents, Currency: currency},
		DeliveryFee:       types.Money{Amount: req.DeliveryFeeCents, Currency: currency},
		Total:             types.Money{Amount: req.SubtotalCents + req.DeliveryFeeCents, Currency: currency},
		VerifiedAgentOnly: req.VerifiedAgentOnly,
		Lines:             lines,
		Metadata:          req.Metadata,
	}

	if err := a.engine.CreateOrder(c.Request.Context(), o); err != nil {
		a.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, o)
}

func (a *API) getOrder(c *gin.Context) {
	orderID, err := id.ParseOrderID(c.Param("orderId"))
	if err != nil {
		badRequest(c, err)
		return
	}

	o, err := a.engine.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		a.fail(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

func (a *API) listOrders(c *gin.Context) {
	businessID := c.Query("business_id")
	if businessID == "" {
		badRequest(c, errMissingBusinessID)
		return
	}

	opts := order.ListOpts{
		Status:  order.Status(c.Query("status")),
		AgentID: c.Query("agent_id"),
		Limit:   intQuery(c, "limit"),
		Offset:  intQuery(c, "offset"),
	}

	orders, err := a.engine.ListOrders(c.Request.Context(), businessID, opts)
	if err != nil {
		a.fail(c, err)
		return
	}
	ok(c, http.StatusOK, orders)
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

func (a *API) transitionOrder(c *gin.Context) {
	orderID, err := id.ParseOrderID(c.Param("orderId"))
	if err != nil {
		badRequest(c, err)
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := a.engine.Transition(c.Request.Context(), orderID, order.Status(req.Status)); err != nil {
		a.fail(c, err)
		return
	}
	okMessage(c, http.StatusOK, "order transitioned to "+req.Status)
}

func (a *API) claimOrder(c *gin.Context) {
	orderID, err := id.ParseOrderID(c.Param("orderId"))
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := a.engine.Claim(c.Request.Context(), orderID, callerIdentity(c)); err != nil {
		a.fail(c, err)
		return
	}
	okMessage(c, http.StatusOK, "order claimed")
}

func (a *API) cancelOrder(c *gin.Context) {
	orderID, err := id.ParseOrderID(c.Param("orderId"))
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := a.engine.Cancel(c.Request.Context(), orderID); err != nil {
		a.fail(c, err)
		return
	}
	okMessage(c, http.StatusOK, "order cancelled")
}

// intQuery parses an integer query parameter, returning 0 when absent or
// malformed.
func intQuery(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
