package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/dispatch/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"OrderID", id.NewOrderID, "ord_"},
		{"AccountID", id.NewAccountID, "acct_"},
		{"HoldID", id.NewHoldID, "hold_"},
		{"EntryID", id.NewEntryID, "txn_"},
		{"FailedDeliveryID", id.NewFailedDeliveryID, "fdl_"},
		{"ReasonID", id.NewReasonID, "rsn_"},
		{"ItemID", id.NewItemID, "itm_"},
		{"NotificationID", id.NewNotificationID, "ntf_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixOrder)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixOrder {
		t.Errorf("expected prefix %q, got %q", id.PrefixOrder, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"OrderID", id.NewOrderID, id.ParseOrderID},
		{"AccountID", id.NewAccountID, id.ParseAccountID},
		{"HoldID", id.NewHoldID, id.ParseHoldID},
		{"EntryID", id.NewEntryID, id.ParseEntryID},
		{"FailedDeliveryID", id.NewFailedDeliveryID, id.ParseFailedDeliveryID},
		{"ReasonID", id.NewReasonID, id.ParseReasonID},
		{"ItemID", id.NewItemID, id.ParseItemID},
		{"NotificationID", id.NewNotificationID, id.ParseNotificationID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseOrderID rejects acct_", id.NewAccountID().String(), id.ParseOrderID},
		{"ParseAccountID rejects hold_", id.NewHoldID().String(), id.ParseAccountID},
		{"ParseHoldID rejects txn_", id.NewEntryID().String(), id.ParseHoldID},
		{"ParseEntryID rejects fdl_", id.NewFailedDeliveryID().String(), id.ParseEntryID},
		{"ParseFailedDeliveryID rejects rsn_", id.NewReasonID().String(), id.ParseFailedDeliveryID},
		{"ParseReasonID rejects itm_", id.NewItemID().String(), id.ParseReasonID},
		{"ParseItemID rejects ntf_", id.NewNotificationID().String(), id.ParseItemID},
		{"ParseNotificationID rejects ord_", id.NewOrderID().String(), id.ParseNotificationID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseAny(t *testing.T) {
	ids := []id.ID{
		id.NewOrderID(),
		id.NewAccountID(),
		id.NewHoldID(),
		id.NewEntryID(),
		id.NewFailedDeliveryID(),
		id.NewReasonID(),
		id.NewItemID(),
		id.NewNotificationID(),
	}

	for _, i := range ids {
		t.Run(i.String(), func(t *testing.T) {
			parsed, err := id.ParseAny(i.String())
			if err != nil {
				t.Fatalf("ParseAny(%q) failed: %v", i.String(), err)
			}
			if parsed.String() != i.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), i.String())
			}
		})
	}
}

func TestParseWithPrefix(t *testing.T) {
	i := id.NewOrderID()
	parsed, err := id.ParseWithPrefix(i.String(), id.PrefixOrder)
	if err != nil {
		t.Fatalf("ParseWithPrefix failed: %v", err)
	}
	if parsed.String() != i.String() {
		t.Errorf("mismatch: %q != %q", parsed.String(), i.String())
	}

	_, err = id.ParseWithPrefix(i.String(), id.PrefixAccount)
	if err == nil {
		t.Error("expected error for wrong prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewOrderID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	// Nil round-trip.
	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewAccountID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	// Nil round-trip.
	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewOrderID()
	b := id.NewOrderID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewOrderID() calls returned the same ID: %q", a.String())
	}
}
