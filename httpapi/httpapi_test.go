package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	dispatch "github.com/xraph/dispatch"
	"github.com/xraph/dispatch/account"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/order"
	"github.com/xraph/dispatch/store/memory"
	"github.com/xraph/dispatch/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*gin.Engine, *dispatch.Dispatch, *memory.Store) {
	t.Helper()

	s := memory.New()
	if err := s.SeedReasons(context.Background(), failure.DefaultReasons()); err != nil {
		t.Fatalf("SeedReasons: %v", err)
	}

	eng := dispatch.New(s)
	r := gin.New()
	New(eng).Register(r)
	return r, eng, s
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}
	return envelope
}

func adminHeaders() map[string]string {
	return map[string]string{
		HeaderCallerRef:   "ops_1",
		HeaderCallerAdmin: "true",
	}
}

func agentHeaders(ref string, verified bool) map[string]string {
	return map[string]string{
		HeaderCallerRef:      ref,
		HeaderCallerRole:     string(account.OwnerAgent),
		HeaderCallerVerified: fmt.Sprintf("%t", verified),
	}
}

func createOrderPayload() map[string]any {
	return map[string]any{
		"business_id":        "biz_1",
		"client_id":          "client_1",
		"currency":           "XAF",
		"subtotal_cents":     10000,
		"delivery_fee_cents": 1500,
		"lines": []map[string]any{
			{"name": "grilled fish", "quantity": 2, "unit_price_cents": 5000},
		},
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/orders", createOrderPayload(), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: got %d, want 201 (body %s)", w.Code, w.Body.String())
	}

	var created struct {
		Success bool        `json:"success"`
		Data    order.Order `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if !created.Success {
		t.Fatal("create order: success=false")
	}
	if created.Data.Status != order.StatusPending {
		t.Fatalf("new order status = %q, want pending", created.Data.Status)
	}
	if created.Data.Total.Amount != 11500 {
		t.Fatalf("total = %d, want 11500", created.Data.Total.Amount)
	}

	w = doJSON(t, r, http.MethodGet, "/orders/"+created.Data.ID.String(), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get order: got %d, want 200", w.Code)
	}
}

func TestCreateOrderNormalizesCurrency(t *testing.T) {
	r, _, _ := newTestServer(t)

	// Uppercase on the wire must come back as the internal lowercase code
	// and must not trip money arithmetic on the ledger path.
	payload := createOrderPayload()
	payload["currency"] = "XAF"
	w := doJSON(t, r, http.MethodPost, "/orders", payload, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: got %d (body %s)", w.Code, w.Body.String())
	}

	var created struct {
		Data order.Order `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Data.Currency != "xaf" {
		t.Fatalf("currency = %q, want xaf", created.Data.Currency)
	}
	if created.Data.Total.Currency != "xaf" || created.Data.Lines[0].UnitPrice.Currency != "xaf" {
		t.Fatalf("amount currencies = %q/%q, want xaf", created.Data.Total.Currency, created.Data.Lines[0].UnitPrice.Currency)
	}

	// Confirmation escrows the payment; a mixed-case leak would blow up here.
	w = doJSON(t, r, http.MethodPost, "/orders/"+created.Data.ID.String()+"/transition",
		map[string]any{"status": string(order.StatusConfirmed)}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: got %d (body %s)", w.Code, w.Body.String())
	}
}

func TestCreateOrderRejectsBadBody(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/orders", map[string]any{"client_id": "client_1"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}

	envelope := decodeEnvelope(t, w)
	if string(envelope["success"]) != "false" {
		t.Fatalf("success = %s, want false", envelope["success"])
	}
}

func TestGetOrderNotFound(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodGet, "/orders/ord_01h455vb4pex5vsknk084sn02q", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404 (body %s)", w.Code, w.Body.String())
	}
}

func TestGetOrderMalformedID(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodGet, "/orders/not-an-id", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

// driveToReady creates an order over HTTP and walks it to ready_for_pickup.
func driveToReady(t *testing.T, r *gin.Engine) string {
	t.Helper()

	w := doJSON(t, r, http.MethodPost, "/orders", createOrderPayload(), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: got %d (body %s)", w.Code, w.Body.String())
	}
	var created struct {
		Data order.Order `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	orderID := created.Data.ID.String()

	for _, status := range []order.Status{order.StatusConfirmed, order.StatusPreparing, order.StatusReadyForPickup} {
		w = doJSON(t, r, http.MethodPost, "/orders/"+orderID+"/transition",
			map[string]any{"status": string(status)}, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("transition to %s: got %d (body %s)", status, w.Code, w.Body.String())
		}
	}
	return orderID
}

func fundBusiness(t *testing.T, s *memory.Store, cents int64) {
	t.Helper()
	ctx := context.Background()

	a, err := s.GetOrCreateAccount(ctx, account.OwnerBusiness, "biz_1", "xaf")
	if err != nil {
		t.Fatalf("GetOrCreateAccount: %v", err)
	}
	if _, err := s.Credit(ctx, a.ID, types.Money{Amount: cents, Currency: "xaf"}, id.OrderID{}, account.ReasonDeposit); err != nil {
		t.Fatalf("Credit: %v", err)
	}
}

func TestClaimOrder(t *testing.T) {
	r, _, s := newTestServer(t)
	fundBusiness(t, s, 50000)

	orderID := driveToReady(t, r)

	w := doJSON(t, r, http.MethodPost, "/orders/"+orderID+"/claim", nil, agentHeaders("agent_7", true))
	if w.Code != http.StatusOK {
		t.Fatalf("claim: got %d (body %s)", w.Code, w.Body.String())
	}

	// A second agent claiming the same order loses with a conflict.
	w = doJSON(t, r, http.MethodPost, "/orders/"+orderID+"/claim", nil, agentHeaders("agent_8", true))
	if w.Code != http.StatusConflict {
		t.Fatalf("second claim: got %d, want 409 (body %s)", w.Code, w.Body.String())
	}
}

func TestClaimRequiresAgentRef(t *testing.T) {
	r, _, s := newTestServer(t)
	fundBusiness(t, s, 50000)

	orderID := driveToReady(t, r)

	w := doJSON(t, r, http.MethodPost, "/orders/"+orderID+"/claim", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400 (body %s)", w.Code, w.Body.String())
	}
}

func TestClaimNotReadyIsConflict(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/orders", createOrderPayload(), nil)
	var created struct {
		Data order.Order `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, "/orders/"+created.Data.ID.String()+"/claim", nil, agentHeaders("agent_7", true))
	if w.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409 (body %s)", w.Code, w.Body.String())
	}
}

func TestCancelOrder(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/orders", createOrderPayload(), nil)
	var created struct {
		Data order.Order `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, "/orders/"+created.Data.ID.String()+"/cancel", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: got %d (body %s)", w.Code, w.Body.String())
	}

	// Cancelling again is an illegal transition.
	w = doJSON(t, r, http.MethodPost, "/orders/"+created.Data.ID.String()+"/cancel", nil, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second cancel: got %d, want 409 (body %s)", w.Code, w.Body.String())
	}
}

func TestListReasonsLocalized(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodGet, "/failed-deliveries/reasons?language=fr", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d (body %s)", w.Code, w.Body.String())
	}

	var resp struct {
		Data []reasonResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) == 0 {
		t.Fatal("no reasons returned")
	}

	labels := make(map[string]string, len(resp.Data))
	for _, re := range resp.Data {
		labels[re.Key] = re.Label
	}
	if got := labels["client_unreachable"]; got != "Client injoignable" {
		t.Fatalf("client_unreachable label = %q, want French", got)
	}
}

// failDelivery drives an order into a pending failed delivery and returns
// the order ID.
func failDelivery(t *testing.T, r *gin.Engine, s *memory.Store) string {
	t.Helper()

	fundBusiness(t, s, 50000)
	orderID := driveToReady(t, r)

	w := doJSON(t, r, http.MethodPost, "/orders/"+orderID+"/claim", nil, agentHeaders("agent_7", true))
	if w.Code != http.StatusOK {
		t.Fatalf("claim: got %d (body %s)", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/orders/"+orderID+"/transition",
		map[string]any{"status": string(order.StatusPickedUp)}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transition to picked_up: got %d (body %s)", w.Code, w.Body.String())
	}

	// Look up a reason over the API the way a client app would.
	w = doJSON(t, r, http.MethodGet, "/failed-deliveries/reasons", nil, nil)
	var reasons struct {
		Data []reasonResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reasons); err != nil {
		t.Fatalf("decode reasons: %v", err)
	}
	var reasonID string
	for _, re := range reasons.Data {
		if re.Key == "lost_in_transit" {
			reasonID = re.ID
		}
	}
	if reasonID == "" {
		t.Fatal("lost_in_transit reason not seeded")
	}

	w = doJSON(t, r, http.MethodPost, "/orders/"+orderID+"/fail",
		map[string]any{"reason_id": reasonID, "notes": "package missing at handoff"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("mark failed: got %d (body %s)", w.Code, w.Body.String())
	}
	return orderID
}

func TestFailedDeliveryFlow(t *testing.T) {
	r, _, s := newTestServer(t)

	orderID := failDelivery(t, r, s)

	// Business scoping: the owning business sees the record, strangers do not.
	bizHeaders := map[string]string{
		HeaderCallerRef:  "biz_1",
		HeaderCallerRole: string(account.OwnerBusiness),
	}
	w := doJSON(t, r, http.MethodGet, "/failed-deliveries/"+orderID, nil, bizHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("get failed delivery: got %d (body %s)", w.Code, w.Body.String())
	}

	var rec struct {
		Data failure.FailedDelivery `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Data.Status != failure.StatusPending {
		t.Fatalf("record status = %q, want pending", rec.Data.Status)
	}
	if rec.Data.ReasonKey != "lost_in_transit" {
		t.Fatalf("reason key = %q, want lost_in_transit", rec.Data.ReasonKey)
	}

	w = doJSON(t, r, http.MethodGet, "/failed-deliveries/"+orderID, nil, map[string]string{
		HeaderCallerRef:  "biz_2",
		HeaderCallerRole: string(account.OwnerBusiness),
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("stranger access: got %d, want 403", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/failed-deliveries?business_id=biz_1&status=pending", nil, bizHeaders)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed deliveries: got %d (body %s)", w.Code, w.Body.String())
	}
}

func TestResolveFailedDelivery(t *testing.T) {
	r, _, s := newTestServer(t)

	orderID := failDelivery(t, r, s)

	w := doJSON(t, r, http.MethodPost, "/failed-deliveries/"+orderID+"/resolve",
		map[string]any{"type": "agent_fault", "outcome": "agent lost the package, full refund"},
		adminHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: got %d (body %s)", w.Code, w.Body.String())
	}

	// Exactly-once: a second resolve is a conflict.
	w = doJSON(t, r, http.MethodPost, "/failed-deliveries/"+orderID+"/resolve",
		map[string]any{"type": "agent_fault", "outcome": "retry"},
		adminHeaders())
	if w.Code != http.StatusConflict {
		t.Fatalf("second resolve: got %d, want 409 (body %s)", w.Code, w.Body.String())
	}
}

func TestResolveRejectsUnknownType(t *testing.T) {
	r, _, s := newTestServer(t)

	orderID := failDelivery(t, r, s)

	w := doJSON(t, r, http.MethodPost, "/failed-deliveries/"+orderID+"/resolve",
		map[string]any{"type": "nobody_fault", "outcome": "shrug"},
		adminHeaders())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400 (body %s)", w.Code, w.Body.String())
	}
}
