package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/inventory"
	"github.com/xraph/dispatch/notify"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/types"
)

// ==================== Order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:dispatch_orders"`

	ID                string            `grove:"id,pk"               bson:"_id"`
	BusinessID        string            `grove:"business_id"         bson:"business_id"`
	ClientID          string            `grove:"client_id"           bson:"client_id"`
	AgentID           string            `grove:"agent_id"            bson:"agent_id"`
	Status            string            `grove:"status"              bson:"status"`
	Currency          string            `grove:"currency"            bson:"currency"`
	SubtotalCents     int64             `grove:"subtotal_cents"      bson:"subtotal_cents"`
	DeliveryFeeCents  int64             `grove:"delivery_fee_cents"  bson:"delivery_fee_cents"`
	TotalCents        int64             `grove:"total_cents"         bson:"total_cents"`
	VerifiedAgentOnly bool              `grove:"verified_agent_only" bson:"verified_agent_only"`
	Lines             []lineModel       `grove:"lines"               bson:"lines"`
	DeliveredAt       *time.Time        `grove:"delivered_at"        bson:"delivered_at,omitempty"`
	CancelledAt       *time.Time        `grove:"cancelled_at"        bson:"cancelled_at,omitempty"`
	FailedAt          *time.Time        `grove:"failed_at"           bson:"failed_at,omitempty"`
	Metadata          map[string]string `grove:"metadata"            bson:"metadata,omitempty"`
	CreatedAt         time.Time         `grove:"created_at"          bson:"created_at"`
	UpdatedAt         time.Time         `grove:"updated_at"          bson:"updated_at"`
}

type lineModel struct {
	ItemID         string `bson:"item_id"`
	Name           string `bson:"name"`
	Quantity       int64  `bson:"quantity"`
	UnitPriceCents int64  `bson:"unit_price_cents"`
	AmountCents    int64  `bson:"amount_cents"`
}

func toOrderModel(o *order.Order) *orderModel {
	lines := make([]lineModel, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = lineModel{
			ItemID:         l.ItemID.String(),
			Name:           l.Name,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPrice.Amount,
			AmountCents:    l.Amount.Amount,
		}
	}

	return &orderModel{
		ID:                o.ID.String(),
		BusinessID:        o.BusinessID,
		ClientID:          o.ClientID,
		AgentID:           o.AgentID,
		Status:            string(o.Status),
		Currency:          o.Currency,
		SubtotalCents:     o.Subtotal.Amount,
		DeliveryFeeCents:  o.DeliveryFee.Amount,
		TotalCents:        o.Total.Amount,
		VerifiedAgentOnly: o.VerifiedAgentOnly,
		Lines:             lines,
		DeliveredAt:       o.DeliveredAt,
		CancelledAt:       o.CancelledAt,
		FailedAt:          o.FailedAt,
		Metadata:          o.Metadata,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func fromOrderModel(m *orderModel) (*order.Order, error) {
	orderID, err := id.ParseOrderID(m.ID)
	if err != nil {
		return nil, err
	}

	lines := make([]order.Line, len(m.Lines))
	for i, l := range m.Lines {
		itemID, lErr := id.ParseItemID(l.ItemID)
		if lErr != nil {
			return nil, lErr
		}
		lines[i] = order.Line{
			ItemID:    itemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: types.Money{Amount: l.UnitPriceCents, Currency: m.Currency},
			Amount:    types.Money{Amount: l.AmountCents, Currency: m.Currency},
		}
	}

	return &order.Order{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                orderID,
		BusinessID:        m.BusinessID,
		ClientID:          m.ClientID,
		AgentID:           m.AgentID,
		Status:            order.Status(m.Status),
		Currency:          m.Currency,
		Subtotal:          types.Money{Amount: m.SubtotalCents, Currency: m.Currency},
		DeliveryFee:       types.Money{Amount: m.DeliveryFeeCents, Currency: m.Currency},
		Total:             types.Money{Amount: m.TotalCents, Currency: m.Currency},
		VerifiedAgentOnly: m.VerifiedAgentOnly,
		Lines:             lines,
		DeliveredAt:       m.DeliveredAt,
		CancelledAt:       m.CancelledAt,
		FailedAt:          m.FailedAt,
		Metadata:          m.Metadata,
	}, nil
}

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:dispatch_accounts"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	OwnerType      string    `grove:"owner_type"      bson:"owner_type"`
	OwnerRef       string    `grove:"owner_ref"       bson:"owner_ref"`
	Currency       string    `grove:"currency"        bson:"currency"`
	AvailableCents int64     `grove:"available_cents" bson:"available_cents"`
	HeldCents      int64     `grove:"held_cents"      bson:"held_cents"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"      bson:"updated_at"`
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        accountID,
		OwnerType: account.OwnerType(m.OwnerType),
		OwnerRef:  m.OwnerRef,
		Currency:  m.Currency,
		Available: types.Money{Amount: m.AvailableCents, Currency: m.Currency},
		Held:      types.Money{Amount: m.HeldCents, Currency: m.Currency},
	}, nil
}

type holdModel struct {
	grove.BaseModel `grove:"table:dispatch_holds"`

	ID          string     `grove:"id,pk"        bson:"_id"`
	AccountID   string     `grove:"account_id"   bson:"account_id"`
	OrderID     string     `grove:"order_id"     bson:"order_id"`
	Purpose     string     `grove:"purpose"      bson:"purpose"`
	AmountCents int64      `grove:"amount_cents" bson:"amount_cents"`
	Currency    string     `grove:"currency"     bson:"currency"`
	Status      string     `grove:"status"       bson:"status"`
	ClosedAt    *time.Time `grove:"closed_at"    bson:"closed_at,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"   bson:"updated_at"`
}

func toHoldModel(h *account.Hold) *holdModel {
	return &holdModel{
		ID:          h.ID.String(),
		AccountID:   h.AccountID.String(),
		OrderID:     h.OrderID.String(),
		Purpose:     string(h.Purpose),
		AmountCents: h.Amount.Amount,
		Currency:    h.Amount.Currency,
		Status:      string(h.Status),
		ClosedAt:    h.ClosedAt,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
}

func fromHoldModel(m *holdModel) (*account.Hold, error) {
	holdID, err := id.ParseHoldID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	orderID, err := id.ParseOrderID(m.OrderID)
	if err != nil {
		return nil, err
	}

	return &account.Hold{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        holdID,
		AccountID: accountID,
		OrderID:   orderID,
		Purpose:   account.HoldPurpose(m.Purpose),
		Amount:    types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Status:    account.HoldStatus(m.Status),
		ClosedAt:  m.ClosedAt,
	}, nil
}

type entryModel struct {
	grove.BaseModel `grove:"table:dispatch_entries"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	AccountID      string    `grove:"account_id"      bson:"account_id"`
	OrderID        string    `grove:"order_id"        bson:"order_id"`
	AvailableCents int64     `grove:"available_cents" bson:"available_cents"`
	HeldCents      int64     `grove:"held_cents"      bson:"held_cents"`
	Currency       string    `grove:"currency"        bson:"currency"`
	Reason         string    `grove:"reason"          bson:"reason"`
	Timestamp      time.Time `grove:"timestamp"       bson:"timestamp"`
}

func toEntryModel(e *account.Entry) *entryModel {
	orderID := ""
	if !e.OrderID.IsNil() {
		orderID = e.OrderID.String()
	}
	return &entryModel{
		ID:             e.ID.String(),
		AccountID:      e.AccountID.String(),
		OrderID:        orderID,
		AvailableCents: e.Available.Amount,
		HeldCents:      e.Held.Amount,
		Currency:       e.Available.Currency,
		Reason:         string(e.Reason),
		Timestamp:      e.Timestamp,
	}
}

func fromEntryModel(m *entryModel) (*account.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}
	var orderID id.OrderID
	if m.OrderID != "" {
		orderID, err = id.ParseOrderID(m.OrderID)
		if err != nil {
			return nil, err
		}
	}

	return &account.Entry{
		ID:        entryID,
		AccountID: accountID,
		OrderID:   orderID,
		Available: types.Money{Amount: m.AvailableCents, Currency: m.Currency},
		Held:      types.Money{Amount: m.HeldCents, Currency: m.Currency},
		Reason:    account.EntryReason(m.Reason),
		Timestamp: m.Timestamp,
	}, nil
}

// ==================== Failed delivery models ====================

type failedDeliveryModel struct {
	grove.BaseModel `grove:"table:dispatch_failed_deliveries"`

	ID             string     `grove:"id,pk"           bson:"_id"`
	OrderID        string     `grove:"order_id"        bson:"order_id"`
	BusinessID     string     `grove:"business_id"     bson:"business_id"`
	AgentID        string     `grove:"agent_id"        bson:"agent_id"`
	ReasonID       string     `grove:"reason_id"       bson:"reason_id"`
	ReasonKey      string     `grove:"reason_key"      bson:"reason_key"`
	Notes          string     `grove:"notes"           bson:"notes"`
	Status         string     `grove:"status"          bson:"status"`
	ResolutionType string     `grove:"resolution_type" bson:"resolution_type"`
	Outcome        string     `grove:"outcome"         bson:"outcome"`
	ResolvedBy     string     `grove:"resolved_by"     bson:"resolved_by"`
	ResolvedAt     *time.Time `grove:"resolved_at"     bson:"resolved_at,omitempty"`
	CreatedAt      time.Time  `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"      bson:"updated_at"`
}

func toFailedDeliveryModel(f *failure.FailedDelivery) *failedDeliveryModel {
	return &failedDeliveryModel{
		ID:             f.ID.String(),
		OrderID:        f.OrderID.String(),
		BusinessID:     f.BusinessID,
		AgentID:        f.AgentID,
		ReasonID:       f.ReasonID.String(),
		ReasonKey:      f.ReasonKey,
		Notes:          f.Notes,
		Status:         string(f.Status),
		ResolutionType: string(f.ResolutionType),
		Outcome:        f.Outcome,
		ResolvedBy:     f.ResolvedBy,
		ResolvedAt:     f.ResolvedAt,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func fromFailedDeliveryModel(m *failedDeliveryModel) (*failure.FailedDelivery, error) {
	failureID, err := id.ParseFailedDeliveryID(m.ID)
	if err != nil {
		return nil, err
	}
	orderID, err := id.ParseOrderID(m.OrderID)
	if err != nil {
		return nil, err
	}
	reasonID, err := id.ParseReasonID(m.ReasonID)
	if err != nil {
		return nil, err
	}

	return &failure.FailedDelivery{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             failureID,
		OrderID:        orderID,
		BusinessID:     m.BusinessID,
		AgentID:        m.AgentID,
		ReasonID:       reasonID,
		ReasonKey:      m.ReasonKey,
		Notes:          m.Notes,
		Status:         failure.Status(m.Status),
		ResolutionType: failure.ResolutionType(m.ResolutionType),
		Outcome:        m.Outcome,
		ResolvedBy:     m.ResolvedBy,
		ResolvedAt:     m.ResolvedAt,
	}, nil
}

type reasonModel struct {
	grove.BaseModel `grove:"table:dispatch_failure_reasons"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Key       string    `grove:"key"        bson:"key"`
	LabelEN   string    `grove:"label_en"   bson:"label_en"`
	LabelFR   string    `grove:"label_fr"   bson:"label_fr"`
	Active    bool      `grove:"active"     bson:"active"`
	SortOrder int       `grove:"sort_order" bson:"sort_order"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toReasonModel(r *failure.Reason) *reasonModel {
	return &reasonModel{
		ID:        r.ID.String(),
		Key:       r.Key,
		LabelEN:   r.LabelEN,
		LabelFR:   r.LabelFR,
		Active:    r.Active,
		SortOrder: r.SortOrder,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromReasonModel(m *reasonModel) (*failure.Reason, error) {
	reasonID, err := id.ParseReasonID(m.ID)
	if err != nil {
		return nil, err
	}

	return &failure.Reason{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        reasonID,
		Key:       m.Key,
		LabelEN:   m.LabelEN,
		LabelFR:   m.LabelFR,
		Active:    m.Active,
		SortOrder: m.SortOrder,
	}, nil
}

// ==================== Inventory models ====================

type itemModel struct {
	grove.BaseModel `grove:"table:dispatch_items"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	BusinessID string    `grove:"business_id" bson:"business_id"`
	Name       string    `grove:"name"        bson:"name"`
	SKU        string    `grove:"sku"         bson:"sku"`
	Available  int64     `grove:"available"   bson:"available"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toItemModel(item *inventory.Item) *itemModel {
	return &itemModel{
		ID:         item.ID.String(),
		BusinessID: item.BusinessID,
		Name:       item.Name,
		SKU:        item.SKU,
		Available:  item.Available,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

func fromItemModel(m *itemModel) (*inventory.Item, error) {
	itemID, err := id.ParseItemID(m.ID)
	if err != nil {
		return nil, err
	}

	return &inventory.Item{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         itemID,
		BusinessID: m.BusinessID,
		Name:       m.Name,
		SKU:        m.SKU,
		Available:  m.Available,
	}, nil
}

// ==================== Notification models ====================

type notificationModel struct {
	grove.BaseModel `grove:"table:dispatch_notifications"`

	ID        string            `grove:"id,pk"     bson:"_id"`
	Kind      string            `grove:"kind"      bson:"kind"`
	OrderID   string            `grove:"order_id"  bson:"order_id"`
	Recipient string            `grove:"recipient" bson:"recipient"`
	Message   string            `grove:"message"   bson:"message"`
	Timestamp time.Time         `grove:"timestamp" bson:"timestamp"`
	Metadata  map[string]string `grove:"metadata"  bson:"metadata,omitempty"`
}

func toNotificationModel(n *notify.Notification) *notificationModel {
	return &notificationModel{
		ID:        n.ID.String(),
		Kind:      string(n.Kind),
		OrderID:   n.OrderID.String(),
		Recipient: n.Recipient,
		Message:   n.Message,
		Timestamp: n.Timestamp,
		Metadata:  n.Metadata,
	}
}

func fromNotificationModel(m *notificationModel) (*notify.Notification, error) {
	notificationID, err := id.ParseNotificationID(m.ID)
	if err != nil {
		return nil, err
	}
	orderID, err := id.ParseOrderID(m.OrderID)
	if err != nil {
		return nil, err
	}

	return &notify.Notification{
		ID:        notificationID,
		Kind:      notify.Kind(m.Kind),
		OrderID:   orderID,
		Recipient: m.Recipient,
		Message:   m.Message,
		Timestamp: m.Timestamp,
		Metadata:  m.Metadata,
	}, nil
}
