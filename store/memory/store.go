package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/dispatch"
	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/inventory"
	"github.com/xraph/dispatch/notify"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/types"
)

type Store struct {
	mu sync.RWMutex

	// Order storage
	orders map[string]*order.Order

	// Account storage
	accounts map[string]*account.Account
	holds    map[string]*account.Hold
	entries  []*account.Entry

	// Failed delivery storage
	failures map[string]*failure.FailedDelivery
	reasons  map[string]*failure.Reason

	// Inventory storage
	items map[string]*inventory.Item

	// Notification storage
	notifications []*notify.Notification
}

func New() *Store {
	return &Store{
		orders:        make(map[string]*order.Order),
		accounts:      make(map[string]*account.Account),
		holds:         make(map[string]*account.Hold),
		entries:       make([]*account.Entry, 0),
		failures:      make(map[string]*failure.FailedDelivery),
		reasons:       make(map[string]*failure.Reason),
		items:         make(map[string]*inventory.Item),
		notifications: make([]*notify.Notification, 0),
	}
}

// Order Store implementation
func (s *Store) CreateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID.String()]; exists {
		return dispatch.ErrAlreadyExists
	}
	cp := *o
	s.orders[o.ID.String()] = &cp
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID id.OrderID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.orders[orderID.String()]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, dispatch.ErrOrderNotFound
}

func (s *Store) ListOrders(_ context.Context, businessID string, opts order.ListOpts) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*order.Order, 0)
	for _, o := range s.orders {
		if o.BusinessID != businessID {
			continue
		}
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		if opts.AgentID != "" && o.AgentID != opts.AgentID {
			continue
		}
		cp := *o
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID.String()]; !exists {
		return dispatch.ErrOrderNotFound
	}
	cp := *o
	s.orders[o.ID.String()] = &cp
	return nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID id.OrderID, from, to order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.orders[orderID.String()]
	if !exists {
		return dispatch.ErrOrderNotFound
	}
	if o.Status != from {
		return dispatch.ErrInvalidTransition
	}
	o.Status = to
	o.Touch()
	return nil
}

func (s *Store) ClaimOrder(_ context.Context, orderID id.OrderID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.orders[orderID.String()]
	if !exists {
		return dispatch.ErrOrderNotFound
	}
	if o.Status != order.StatusReadyForPickup {
		return dispatch.ErrNotClaimable
	}
	if o.AgentID != "" {
		return dispatch.ErrOrderClaimed
	}
	o.AgentID = agentID
	o.Touch()
	return nil
}

func (s *Store) ReleaseOrderClaim(_ context.Context, orderID id.OrderID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.orders[orderID.String()]
	if !exists {
		return dispatch.ErrOrderNotFound
	}
	if o.AgentID != agentID {
		return dispatch.ErrOrderNotClaimed
	}
	o.AgentID = ""
	o.Touch()
	return nil
}

// Account Store implementation
func (s *Store) GetOrCreateAccount(_ context.Context, ownerType account.OwnerType, ownerRef, currency string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.OwnerType == ownerType && a.OwnerRef == ownerRef && a.Currency == currency {
			cp := *a
			return &cp, nil
		}
	}

	a := &account.Account{
		Entity:    types.NewEntity(),
		ID:        id.NewAccountID(),
		OwnerType: ownerType,
		OwnerRef:  ownerRef,
		Currency:  currency,
		Available: types.Zero(currency),
		Held:      types.Zero(currency),
	}
	s.accounts[a.ID.String()] = a
	cp := *a
	return &cp, nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, dispatch.ErrAccountNotFound
}

func (s *Store) Credit(_ context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason account.EntryReason) (*account.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return nil, dispatch.ErrAccountNotFound
	}
	a.Available = a.Available.Add(amount)
	a.Touch()
	return s.appendEntry(a.ID, orderID, amount, types.Zero(a.Currency), reason), nil
}

func (s *Store) Debit(_ context.Context, accountID id.AccountID, amount types.Money, orderID id.OrderID, reason account.EntryReason) (*account.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return nil, dispatch.ErrAccountNotFound
	}
	if a.Available.LessThan(amount) {
		return nil, dispatch.ErrInsufficientFunds
	}
	a.Available = a.Available.Subtract(amount)
	a.Touch()
	return s.appendEntry(a.ID, orderID, amount.Negate(), types.Zero(a.Currency), reason), nil
}

func (s *Store) PlaceHold(_ context.Context, accountID id.AccountID, orderID id.OrderID, purpose account.HoldPurpose, amount types.Money) (*account.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return nil, dispatch.ErrAccountNotFound
	}
	if a.Available.LessThan(amount) {
		return nil, dispatch.ErrInsufficientFunds
	}

	a.Available = a.Available.Subtract(amount)
	a.Held = a.Held.Add(amount)
	a.Touch()

	h := &account.Hold{
		Entity:    types.NewEntity(),
		ID:        id.NewHoldID(),
		AccountID: accountID,
		OrderID:   orderID,
		Purpose:   purpose,
		Amount:    amount,
		Status:    account.HoldActive,
	}
	s.holds[h.ID.String()] = h
	s.appendEntry(a.ID, orderID, amount.Negate(), amount, account.ReasonHoldPlaced)

	cp := *h
	return &cp, nil
}

func (s *Store) ReleaseHold(_ context.Context, holdID id.HoldID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseHoldLocked(holdID)
}

func (s *Store) releaseHoldLocked(holdID id.HoldID) error {
	h, ok := s.holds[holdID.String()]
	if !ok {
		return dispatch.ErrHoldNotFound
	}
	if !h.Active() {
		return dispatch.ErrHoldNotActive
	}
	a, ok := s.accounts[h.AccountID.String()]
	if !ok {
		return dispatch.ErrAccountNotFound
	}

	a.Held = a.Held.Subtract(h.Amount)
	a.Available = a.Available.Add(h.Amount)
	a.Touch()
	s.closeHoldLocked(h, account.HoldReleased)
	s.appendEntry(a.ID, h.OrderID, h.Amount, h.Amount.Negate(), account.ReasonHoldReleased)
	return nil
}

func (s *Store) CaptureHold(_ context.Context, holdID id.HoldID, destID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holds[holdID.String()]
	if !ok {
		return dispatch.ErrHoldNotFound
	}
	if !h.Active() {
		return dispatch.ErrHoldNotActive
	}
	src, ok := s.accounts[h.AccountID.String()]
	if !ok {
		return dispatch.ErrAccountNotFound
	}
	dst, ok := s.accounts[destID.String()]
	if !ok {
		return dispatch.ErrAccountNotFound
	}

	src.Held = src.Held.Subtract(h.Amount)
	src.Touch()
	dst.Available = dst.Available.Add(h.Amount)
	dst.Touch()
	s.closeHoldLocked(h, account.HoldCaptured)
	s.appendEntry(src.ID, h.OrderID, types.Zero(src.Currency), h.Amount.Negate(), account.ReasonHoldCaptured)
	s.appendEntry(dst.ID, h.OrderID, h.Amount, types.Zero(dst.Currency), account.ReasonHoldCaptured)
	return nil
}

func (s *Store) GetHold(_ context.Context, holdID id.HoldID) (*account.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h, ok := s.holds[holdID.String()]; ok {
		cp := *h
		return &cp, nil
	}
	return nil, dispatch.ErrHoldNotFound
}

func (s *Store) ListHolds(_ context.Context, orderID id.OrderID) ([]*account.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Hold, 0)
	for _, h := range s.holds {
		if h.OrderID == orderID {
			cp := *h
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ListEntries(_ context.Context, accountID id.AccountID, opts account.EntryOpts) ([]*account.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Entry, 0)
	for _, e := range s.entries {
		if e.AccountID != accountID {
			continue
		}
		if !opts.OrderID.IsNil() && e.OrderID != opts.OrderID {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	// Newest first
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Failed delivery Store implementation
func (s *Store) CreateFailedDelivery(_ context.Context, f *failure.FailedDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.failures {
		if existing.OrderID == f.OrderID && existing.Pending() {
			return dispatch.ErrFailurePending
		}
	}
	cp := *f
	s.failures[f.ID.String()] = &cp
	return nil
}

func (s *Store) GetFailedDelivery(_ context.Context, failureID id.FailedDeliveryID) (*failure.FailedDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.failures[failureID.String()]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, dispatch.ErrFailureNotFound
}

func (s *Store) GetFailedDeliveryByOrder(_ context.Context, orderID id.OrderID) (*failure.FailedDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.failures {
		if f.OrderID == orderID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, dispatch.ErrFailureNotFound
}

func (s *Store) ListFailedDeliveries(_ context.Context, businessID string, opts failure.ListOpts) ([]*failure.FailedDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*failure.FailedDelivery, 0)
	for _, f := range s.failures {
		if f.BusinessID != businessID {
			continue
		}
		if opts.Status != "" && f.Status != opts.Status {
			continue
		}
		if opts.ResolutionType != "" && f.ResolutionType != opts.ResolutionType {
			continue
		}
		cp := *f
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetReason(_ context.Context, reasonID id.ReasonID) (*failure.Reason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.reasons[reasonID.String()]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, dispatch.ErrReasonNotFound
}

func (s *Store) ListReasons(_ context.Context, activeOnly bool) ([]*failure.Reason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*failure.Reason, 0)
	for _, r := range s.reasons {
		if activeOnly && !r.Active {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SortOrder < result[j].SortOrder
	})
	return result, nil
}

func (s *Store) SeedReasons(_ context.Context, reasons []*failure.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range reasons {
		var existing *failure.Reason
		for _, candidate := range s.reasons {
			if candidate.Key == r.Key {
				existing = candidate
				break
			}
		}
		if existing != nil {
			existing.LabelEN = r.LabelEN
			existing.LabelFR = r.LabelFR
			existing.Active = r.Active
			existing.SortOrder = r.SortOrder
			existing.Touch()
			continue
		}
		cp := *r
		if cp.ID.IsNil() {
			cp.ID = id.NewReasonID()
		}
		s.reasons[cp.ID.String()] = &cp
	}
	return nil
}

// ApplySettlement validates every effect against current state before
// mutating anything, so a failure leaves the store untouched. The whole
// settlement runs under one write lock.
func (s *Store) ApplySettlement(_ context.Context, plan *settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Commit gate
	var rec *failure.FailedDelivery
	var o *order.Order
	if !plan.FailureID.IsNil() {
		rec = s.failures[plan.FailureID.String()]
		if rec == nil {
			return dispatch.ErrFailureNotFound
		}
		if !rec.Pending() {
			return dispatch.ErrAlreadyResolved
		}
	} else {
		o = s.orders[plan.OrderID.String()]
		if o == nil {
			return dispatch.ErrOrderNotFound
		}
		if o.Status != order.StatusDelivered {
			return dispatch.ErrInvalidTransition
		}
	}

	// Validate hold ops
	for _, op := range plan.HoldOps {
		h, ok := s.holds[op.HoldID.String()]
		if !ok {
			return dispatch.ErrHoldNotFound
		}
		if !h.Active() {
			return dispatch.ErrHoldNotActive
		}
	}

	// Validate transfers against staged balances
	staged := make(map[string]*account.Account)
	for _, t := range plan.Transfers {
		key := t.AccountID.String()
		a, ok := staged[key]
		if !ok {
			live, exists := s.accounts[key]
			if !exists {
				return dispatch.ErrAccountNotFound
			}
			cp := *live
			a = &cp
			staged[key] = a
		}
		a.Available = a.Available.Add(t.Available)
		a.Held = a.Held.Add(t.Held)
		if a.Available.IsNegative() || a.Held.IsNegative() {
			return dispatch.ErrInsufficientFunds
		}
	}

	// Validate restocks
	for _, r := range plan.Restocks {
		if _, ok := s.items[r.ItemID.String()]; !ok {
			return dispatch.ErrItemNotFound
		}
	}

	// Apply
	for _, op := range plan.HoldOps {
		s.closeHoldLocked(s.holds[op.HoldID.String()], op.Close)
	}
	for key, a := range staged {
		live := s.accounts[key]
		live.Available = a.Available
		live.Held = a.Held
		live.Touch()
	}
	for _, t := range plan.Transfers {
		s.appendEntry(t.AccountID, plan.OrderID, t.Available, t.Held, t.Reason)
	}
	for _, r := range plan.Restocks {
		item := s.items[r.ItemID.String()]
		item.Available += r.Quantity
		item.Touch()
	}

	if rec != nil {
		rec.Status = failure.StatusCompleted
		rec.ResolutionType = plan.Resolution
		rec.Outcome = plan.Outcome
		rec.ResolvedBy = plan.ResolvedBy
		resolvedAt := plan.ResolvedAt
		rec.ResolvedAt = &resolvedAt
		rec.Touch()
	} else {
		o.Status = order.StatusCompleted
		o.Touch()
	}
	return nil
}

// Inventory Store implementation
func (s *Store) CreateItem(_ context.Context, item *inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID.String()]; exists {
		return dispatch.ErrAlreadyExists
	}
	cp := *item
	s.items[item.ID.String()] = &cp
	return nil
}

func (s *Store) GetItem(_ context.Context, itemID id.ItemID) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, ok := s.items[itemID.String()]; ok {
		cp := *item
		return &cp, nil
	}
	return nil, dispatch.ErrItemNotFound
}

func (s *Store) ListItems(_ context.Context, businessID string, opts inventory.ListOpts) ([]*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*inventory.Item, 0)
	for _, item := range s.items {
		if item.BusinessID == businessID {
			cp := *item
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateItem(_ context.Context, item *inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID.String()]; !exists {
		return dispatch.ErrItemNotFound
	}
	cp := *item
	s.items[item.ID.String()] = &cp
	return nil
}

func (s *Store) IncrementAvailable(_ context.Context, itemID id.ItemID, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID.String()]
	if !ok {
		return dispatch.ErrItemNotFound
	}
	if item.Available+qty < 0 {
		return dispatch.ErrInvalidInput
	}
	item.Available += qty
	item.Touch()
	return nil
}

// Notification Store implementation
func (s *Store) IngestBatch(_ context.Context, events []*notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		cp := *e
		s.notifications = append(s.notifications, &cp)
	}
	return nil
}

func (s *Store) QueryNotifications(_ context.Context, recipient string, opts notify.QueryOpts) ([]*notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*notify.Notification, 0)
	for _, n := range s.notifications {
		if n.Recipient != recipient {
			continue
		}
		if opts.Kind != "" && n.Kind != opts.Kind {
			continue
		}
		if !opts.Start.IsZero() && n.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && n.Timestamp.After(opts.End) {
			continue
		}
		cp := *n
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) PurgeNotifications(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	kept := make([]*notify.Notification, 0)
	for _, n := range s.notifications {
		if n.Timestamp.Before(before) {
			count++
		} else {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	return count, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions
func (s *Store) appendEntry(accountID id.AccountID, orderID id.OrderID, available, held types.Money, reason account.EntryReason) *account.Entry {
	e := &account.Entry{
		ID:        id.NewEntryID(),
		AccountID: accountID,
		OrderID:   orderID,
		Available: available,
		Held:      held,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	s.entries = append(s.entries, e)
	cp := *e
	return &cp
}

func (s *Store) closeHoldLocked(h *account.Hold, status account.HoldStatus) {
	now := time.Now().UTC()
	h.Status = status
	h.ClosedAt = &now
	h.Touch()
}

func paginate[T any](in []T, offset, limit int) []T {
	start := offset
	if start > len(in) {
		start = len(in)
	}
	end := start + limit
	if limit == 0 || end > len(in) {
		end = len(in)
	}
	return in[start:end]
}
