// Package id defines TypeID-based identity types for all Dispatch entities.
//
// Every entity in Dispatch uses a single ID struct with a prefix that
// identifies the entity type. IDs are K-sortable (UUIDv7-based), globally
// unique, and URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all Dispatch entity types.
const (
	PrefixOrder          Prefix = "ord"  // Delivery order
	PrefixAccount        Prefix = "acct" // Ledger account
	PrefixHold           Prefix = "hold" // Funds hold
	PrefixEntry          Prefix = "txn"  // Ledger entry
	PrefixFailedDelivery Prefix = "fdl"  // Failed delivery record
	PrefixReason         Prefix = "rsn"  // Failure reason
	PrefixItem           Prefix = "itm"  // Inventory item
	PrefixNotification   Prefix = "ntf"  // Notification event
)

// ID is the primary identifier type for all Dispatch entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "ord_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// MustParseWithPrefix is like ParseWithPrefix but panics on error.
func MustParseWithPrefix(s string, expected Prefix) ID {
	parsed, err := ParseWithPrefix(s, expected)
	if err != nil {
		panic(fmt.Sprintf("id: must parse with prefix %q: %v", expected, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases for call-site readability
// ──────────────────────────────────────────────────

// OrderID is a type-safe identifier for orders (prefix: "ord").
type OrderID = ID

// AccountID is a type-safe identifier for ledger accounts (prefix: "acct").
type AccountID = ID

// HoldID is a type-safe identifier for funds holds (prefix: "hold").
type HoldID = ID

// EntryID is a type-safe identifier for ledger entries (prefix: "txn").
type EntryID = ID

// FailedDeliveryID is a type-safe identifier for failed delivery records (prefix: "fdl").
type FailedDeliveryID = ID

// ReasonID is a type-safe identifier for failure reasons (prefix: "rsn").
type ReasonID = ID

// ItemID is a type-safe identifier for inventory items (prefix: "itm").
type ItemID = ID

// NotificationID is a type-safe identifier for notification events (prefix: "ntf").
type NotificationID = ID

// AnyID is a type alias that accepts any valid prefix.
type AnyID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewOrderID generates a new unique order ID.
func NewOrderID() ID { return New(PrefixOrder) }

// NewAccountID generates a new unique account ID.
func NewAccountID() ID { return New(PrefixAccount) }

// NewHoldID generates a new unique hold ID.
func NewHoldID() ID { return New(PrefixHold) }

// NewEntryID generates a new unique ledger entry ID.
func NewEntryID() ID { return New(PrefixEntry) }

// NewFailedDeliveryID generates a new unique failed delivery ID.
func NewFailedDeliveryID() ID { return New(PrefixFailedDelivery) }

// NewReasonID generates a new unique failure reason ID.
func NewReasonID() ID { return New(PrefixReason) }

// NewItemID generates a new unique inventory item ID.
func NewItemID() ID { return New(PrefixItem) }

// NewNotificationID generates a new unique notification ID.
func NewNotificationID() ID { return New(PrefixNotification) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseOrderID parses a string and validates the "ord" prefix.
func ParseOrderID(s string) (ID, error) { return ParseWithPrefix(s, PrefixOrder) }

// ParseAccountID parses a string and validates the "acct" prefix.
func ParseAccountID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAccount) }

// ParseHoldID parses a string and validates the "hold" prefix.
func ParseHoldID(s string) (ID, error) { return ParseWithPrefix(s, PrefixHold) }

// ParseEntryID parses a string and validates the "txn" prefix.
func ParseEntryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEntry) }

// ParseFailedDeliveryID parses a string and validates the "fdl" prefix.
func ParseFailedDeliveryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixFailedDelivery) }

// ParseReasonID parses a string and validates the "rsn" prefix.
func ParseReasonID(s string) (ID, error) { return ParseWithPrefix(s, PrefixReason) }

// ParseItemID parses a string and validates the "itm" prefix.
func ParseItemID(s string) (ID, error) { return ParseWithPrefix(s, PrefixItem) }

// ParseNotificationID parses a string and validates the "ntf" prefix.
func ParseNotificationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixNotification) }

// ParseAny parses a string into an ID without type checking the prefix.
func ParseAny(s string) (ID, error) { return Parse(s) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
