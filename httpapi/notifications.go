package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/dispatch/notify"
)

// listNotifications returns a recipient's flushed notifications. The
// start and end query parameters take RFC 3339 timestamps.
func (a *API) listNotifications(c *gin.Context) {
	recipient := c.Query("recipient")

	opts := notify.QueryOpts{
		Kind:   notify.Kind(c.Query("kind")),
		Limit:  intQuery(c, "limit"),
		Offset: intQuery(c, "offset"),
	}
	if v := c.Query("start"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, err)
			return
		}
		opts.Start = ts
	}
	if v := c.Query("end"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, err)
			return
		}
		opts.End = ts
	}

	events, err := a.engine.ListNotifications(c.Request.Context(), recipient, opts)
	if err != nil {
		a.fail(c, err)
		return
	}
	ok(c, http.StatusOK, events)
}
