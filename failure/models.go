package failure

import (
	"time"

	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

type ResolutionType string

const (
	// ResolutionAgentFault: the agent lost or damaged the goods. Full
	// client refund; the commission hold returns to the business.
	ResolutionAgentFault ResolutionType = "agent_fault"
	// ResolutionClientFault: the client refused or was unreachable.
	// Refund minus a penalty split between agent and business.
	ResolutionClientFault ResolutionType = "client_fault"
	// ResolutionItemFault: wrong or defective goods. Full client refund;
	// the business absorbs the loss, optionally restocking inventory.
	ResolutionItemFault ResolutionType = "item_fault"
)

// Valid reports whether t is a known resolution type. Unknown values are
// rejected at the boundary, never defaulted.
func (t ResolutionType) Valid() bool {
	return t == ResolutionAgentFault || t == ResolutionClientFault || t == ResolutionItemFault
}

// Resolution is the operator's decision for a failed delivery.
type Resolution struct {
	Type             ResolutionType `json:"type"`
	Outcome          string         `json:"outcome"` // narrative, required
	RestoreInventory bool           `json:"restore_inventory,omitempty"` // item_fault only
	ResolvedBy       string         `json:"resolved_by"`
}

// FailedDelivery records one failed delivery for an order. At most one
// pending record exists per order; resolution completes it exactly once.
type FailedDelivery struct {
	types.Entity
	ID             id.FailedDeliveryID `json:"id"`
	OrderID        id.OrderID          `json:"order_id"`
	BusinessID     string              `json:"business_id"`
	AgentID        string              `json:"agent_id"`
	ReasonID       id.ReasonID         `json:"reason_id"`
	ReasonKey      string              `json:"reason_key"`
	Notes          string              `json:"notes,omitempty"`
	Status         Status              `json:"status"`
	ResolutionType ResolutionType      `json:"resolution_type,omitempty"`
	Outcome        string              `json:"outcome,omitempty"`
	ResolvedBy     string              `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
}

// Pending reports whether the record still awaits resolution.
func (f *FailedDelivery) Pending() bool { return f.Status == StatusPending }

// Reason is a catalog entry describing why a delivery failed. The catalog
// is read-only to the engine; operators seed it at store setup.
type Reason struct {
	types.Entity
	ID        id.ReasonID `json:"id"`
	Key       string      `json:"key"`
	LabelEN   string      `json:"label_en"`
	LabelFR   string      `json:"label_fr"`
	Active    bool        `json:"active"`
	SortOrder int         `json:"sort_order"`
}

// Label returns the localized label for the given language tag, falling
// back to English.
func (r *Reason) Label(language string) string {
	if language == "fr" && r.LabelFR != "" {
		return r.LabelFR
	}
	return r.LabelEN
}
