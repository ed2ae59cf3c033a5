package notify

import (
	"time"

	"github.com/xraph/dispatch/id"
)

type Kind string

const (
	KindOrderConfirmed     Kind = "order_confirmed"
	KindOrderClaimed       Kind = "order_claimed"
	KindOrderCancelled     Kind = "order_cancelled"
	KindOrderDelivered     Kind = "order_delivered"
	KindDeliveryFailed     Kind = "delivery_failed"
	KindSettlementResolved Kind = "settlement_resolved"
)

// Notification is a fire-and-forget event destined for an owner. The
// engine buffers these and flushes them in batches; delivery to end
// devices is out of scope and handled by plugins.
type Notification struct {
	ID        id.NotificationID `json:"id"`
	Kind      Kind              `json:"kind"`
	OrderID   id.OrderID        `json:"order_id"`
	Recipient string            `json:"recipient"` // owner ref
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
