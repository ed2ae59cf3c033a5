// Package httpapi exposes the Dispatch engine over a thin REST facade.
//
// Authentication is the host application's concern: handlers read the
// caller identity from trusted headers (X-Caller-Ref, X-Caller-Role,
// X-Caller-Verified, X-Caller-Admin) that an upstream gateway is expected
// to have validated.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	dispatch "github.com/xraph/dispatch"
	"github.com/xraph/dispatch/account"
)

// Trusted identity headers.
const (
	HeaderCallerRef      = "X-Caller-Ref"
	HeaderCallerRole     = "X-Caller-Role"
	HeaderCallerVerified = "X-Caller-Verified"
	HeaderCallerAdmin    = "X-Caller-Admin"
)

// API wires Dispatch engine operations to gin handlers.
type API struct {
	engine *dispatch.Dispatch
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for the API.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New creates an API around the given engine.
func New(engine *dispatch.Dispatch, opts ...Option) *API {
	a := &API{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register mounts all routes on the given router.
func (a *API) Register(r gin.IRouter) {
	r.GET("/failed-deliveries/reasons", a.listReasons)
	r.GET("/failed-deliveries", a.listFailedDeliveries)
	r.GET("/failed-deliveries/:orderId", a.getFailedDelivery)
	r.POST("/failed-deliveries/:orderId/resolve", a.resolveFailedDelivery)

	r.POST("/orders", a.createOrder)
	r.GET("/orders", a.listOrders)
	r.GET("/orders/:orderId", a.getOrder)
	r.POST("/orders/:orderId/transition", a.transitionOrder)
	r.POST("/orders/:orderId/claim", a.claimOrder)
	r.POST("/orders/:orderId/cancel", a.cancelOrder)
	r.POST("/orders/:orderId/fail", a.markFailed)

	r.GET("/notifications", a.listNotifications)
}

// callerIdentity builds the engine Identity from trusted headers.
func callerIdentity(c *gin.Context) dispatch.Identity {
	return dispatch.Identity{
		Ref:      c.GetHeader(HeaderCallerRef),
		Role:     account.OwnerType(c.GetHeader(HeaderCallerRole)),
		Verified: c.GetHeader(HeaderCallerVerified) == "true",
		Admin:    c.GetHeader(HeaderCallerAdmin) == "true",
	}
}

// ok writes the success envelope with a data payload.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// okMessage writes the success envelope with a human-readable message.
func okMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": true, "message": message})
}

// fail maps an engine error to the error envelope and HTTP status.
func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// badRequest writes a 400 error envelope for malformed request bodies.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

// statusFor maps sentinel errors to HTTP status codes.
func statusFor(err error) int {
	var ve dispatch.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, dispatch.ErrInvalidInput),
		errors.Is(err, dispatch.ErrInvalidResolution),
		errors.Is(err, dispatch.ErrReasonInactive):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, dispatch.ErrForbidden),
		errors.Is(err, dispatch.ErrAgentNotVerified):
		return http.StatusForbidden
	case dispatch.IsNotFound(err):
		return http.StatusNotFound
	case dispatch.IsConflict(err),
		errors.Is(err, dispatch.ErrNotClaimable),
		errors.Is(err, dispatch.ErrOrderNotClaimed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
