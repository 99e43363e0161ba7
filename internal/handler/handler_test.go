package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/assistant"
	"github.com/mmeshcher/gamestore/internal/middleware"
	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/service"
)

const (
	buyerID   = "123456789012345678"
	otherID   = "223456789012345678"
	adminUser = "900000000000000001"
)

type stubPayments struct {
	payment    *model.Payment
	payments   []model.Payment
	err        error
	lastPromo  string
	lastActor  string
	lastReason string
}

func (s *stubPayments) CreatePayment(_ context.Context, buyer, _, _, promoCode string) (*model.Payment, error) {
	s.lastActor, s.lastPromo = buyer, promoCode
	return s.payment, s.err
}

func (s *stubPayments) CheckStatus(context.Context, string) (*model.Payment, error) {
	return s.payment, s.err
}

func (s *stubPayments) Cancel(_ context.Context, _, requesterID string) (*model.Payment, error) {
	s.lastActor = requesterID
	return s.payment, s.err
}

func (s *stubPayments) ConfirmFromGateway(_ context.Context, _ string, res model.GatewayResult) (*model.Payment, error) {
	s.lastReason = res.Reason
	return s.payment, s.err
}

func (s *stubPayments) Approve(_ context.Context, _, admin string) (*model.Payment, error) {
	s.lastActor = admin
	return s.payment, s.err
}

func (s *stubPayments) Reject(_ context.Context, _, reason, admin string) (*model.Payment, error) {
	s.lastActor, s.lastReason = admin, reason
	return s.payment, s.err
}

func (s *stubPayments) ListPendingApprovals(context.Context) ([]model.Payment, error) {
	return s.payments, s.err
}

func (s *stubPayments) ListUserPayments(context.Context, string, int) ([]model.Payment, error) {
	return s.payments, s.err
}

type stubCatalog struct {
	product  *model.Product
	products []model.Product
	err      error
	filter   model.ProductFilter
}

func (s *stubCatalog) Create(context.Context, string, service.ProductInput) (*model.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) Update(context.Context, string, string, service.ProductInput) (*model.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) SetAvailability(context.Context, string, string, bool) (*model.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) Get(context.Context, string) (*model.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) View(context.Context, string, string) (*model.Product, error) {
	return s.product, s.err
}

func (s *stubCatalog) Search(_ context.Context, f model.ProductFilter) ([]model.Product, error) {
	s.filter = f
	return s.products, s.err
}

type stubPromotions struct {
	promos   []model.Promotion
	quote    *model.PriceQuote
	err      error
	lastCode string
}

func (s *stubPromotions) Create(context.Context, string, service.PromotionInput) (*model.Promotion, error) {
	return &model.Promotion{}, s.err
}

func (s *stubPromotions) Update(context.Context, string, string, service.PromotionInput) (*model.Promotion, error) {
	return &model.Promotion{}, s.err
}

func (s *stubPromotions) End(context.Context, string, string) (*model.Promotion, error) {
	return &model.Promotion{}, s.err
}

func (s *stubPromotions) ActivePromotions(context.Context) ([]model.Promotion, error) {
	return s.promos, s.err
}

func (s *stubPromotions) ResolvePriceWithCode(_ context.Context, _ string, _ decimal.Decimal, _, code string) (*model.PriceQuote, error) {
	s.lastCode = code
	return s.quote, s.err
}

type stubLoyalty struct {
	snapshot *model.LoyaltySnapshot
	err      error
	lastMeta model.PointMetadata
}

func (s *stubLoyalty) AddPoints(_ context.Context, _ string, _ int64, _ string, meta model.PointMetadata) (*model.LoyaltySnapshot, error) {
	s.lastMeta = meta
	return s.snapshot, s.err
}

func (s *stubLoyalty) UsePoints(_ context.Context, _ string, _ int64, _ string, meta model.PointMetadata) (*model.LoyaltySnapshot, error) {
	s.lastMeta = meta
	return s.snapshot, s.err
}

func (s *stubLoyalty) GetBalance(context.Context, string) (*model.LoyaltySnapshot, error) {
	return s.snapshot, s.err
}

type stubUsers struct {
	activity []model.Activity
	recorded []model.Activity
	touchErr error
}

func (s *stubUsers) Touch(_ context.Context, id, name string) (*model.User, error) {
	return &model.User{ID: id, DisplayName: name}, s.touchErr
}

func (s *stubUsers) SetPreferences(_ context.Context, id string, prefs model.Preferences) (*model.User, error) {
	return &model.User{ID: id, Preferences: prefs}, nil
}

func (s *stubUsers) Block(_ context.Context, id, reason, _ string) (*model.User, error) {
	return &model.User{ID: id, Blocked: true, BlockReason: reason}, nil
}

func (s *stubUsers) Unblock(_ context.Context, id, _ string) (*model.User, error) {
	return &model.User{ID: id}, nil
}

func (s *stubUsers) RecordActivity(_ context.Context, a model.Activity) {
	s.recorded = append(s.recorded, a)
}

func (s *stubUsers) Activity(context.Context, string, int) ([]model.Activity, error) {
	return s.activity, nil
}

type stubAdvisor struct{}

func (stubAdvisor) Ask(question string) assistant.Reply {
	return assistant.Reply{Text: "answer to " + question, Matched: true}
}

func (stubAdvisor) Recommend(context.Context, string, int) ([]assistant.Recommendation, error) {
	return nil, nil
}

type stubAudit struct{}

func (stubAudit) List(context.Context, model.AuditFilter) ([]model.AuditEntry, error) {
	return nil, nil
}

type testServer struct {
	payments   *stubPayments
	catalog    *stubCatalog
	promotions *stubPromotions
	loyalty    *stubLoyalty
	users      *stubUsers
	auth       *middleware.AuthMiddleware
	router     http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		payments:   &stubPayments{},
		catalog:    &stubCatalog{},
		promotions: &stubPromotions{},
		loyalty:    &stubLoyalty{},
		users:      &stubUsers{},
		auth:       middleware.NewAuthMiddleware("test-secret", []string{adminUser}),
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("gamestore_up 1\n"))
	})

	h := NewHandler(Services{
		Payments:   ts.payments,
		Catalog:    ts.catalog,
		Promotions: ts.promotions,
		Loyalty:    ts.loyalty,
		Users:      ts.users,
		Advisor:    stubAdvisor{},
		Audit:      stubAudit{},
	}, zap.NewNop(), ts.auth, metrics)
	ts.router = h.SetupRouter()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := ts.auth.IssueToken(userID, "tester", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec.Result()
}

func decodeBody(t *testing.T, res *http.Response, dst any) {
	t.Helper()
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func samplePayment(buyer string) *model.Payment {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Payment{
		ID:          "pay-1",
		BuyerID:     buyer,
		ProductID:   "prod-1",
		ProductName: "Conta Diamante",
		Amount:      decimal.RequireFromString("53.91"),
		Method:      model.PaymentMethodPix,
		Status:      model.PaymentStatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(30 * time.Minute),
		Pix:         model.PixDetails{TxID: "TX", Code: "000201", QRCode: "data:image/png;base64,AA"},
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodGet, "/api/payments", "", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestRouter_AdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.payment = samplePayment(buyerID)

	res := ts.do(t, http.MethodPost, "/api/admin/payments/pay-1/approve", buyerID, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	res = ts.do(t, http.MethodPost, "/api/admin/payments/pay-1/approve", adminUser, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ts.payments.lastActor != adminUser {
		t.Fatalf("approve actor = %q, want %q", ts.payments.lastActor, adminUser)
	}
}

func TestRouter_Metrics(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodGet, "/metrics", "", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestCheckout(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.payment = samplePayment(buyerID)

	res := ts.do(t, http.MethodPost, "/api/checkout", buyerID, checkoutRequest{ProductID: "prod-1", PromoCode: "SUMMER"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var got paymentResponse
	decodeBody(t, res, &got)
	if got.ID != "pay-1" || got.Status != "PENDING" {
		t.Fatalf("unexpected payment %+v", got)
	}
	if !got.Amount.Equal(decimal.RequireFromString("53.91")) {
		t.Fatalf("amount = %s, want 53.91", got.Amount)
	}
	if got.Pix.Code == "" {
		t.Fatalf("pix code is empty")
	}
	if ts.payments.lastPromo != "SUMMER" || ts.payments.lastActor != buyerID {
		t.Fatalf("service called with promo %q actor %q", ts.payments.lastPromo, ts.payments.lastActor)
	}
}

func TestCheckout_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{name: "missing product", body: checkoutRequest{}},
		{name: "bad promo code", body: checkoutRequest{ProductID: "prod-1", PromoCode: "no spaces"}},
		{name: "not json", body: "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			res := ts.do(t, http.MethodPost, "/api/checkout", buyerID, tt.body)

			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
			}
			var got errorResponse
			decodeBody(t, res, &got)
			if got.Error != string(apperr.KindValidation) {
				t.Fatalf("error = %q, want %q", got.Error, apperr.KindValidation)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: apperr.New(apperr.KindNotFound, "product not found"), status: http.StatusNotFound},
		{err: apperr.New(apperr.KindForbidden, "user is blocked"), status: http.StatusForbidden},
		{err: apperr.New(apperr.KindInvalidState, "not available"), status: http.StatusConflict},
		{err: apperr.New(apperr.KindAlreadySold, "sold"), status: http.StatusConflict},
		{err: apperr.New(apperr.KindValidation, "bad"), status: http.StatusBadRequest},
		{err: &apperr.InsufficientBalanceError{Current: 1, Requested: 5}, status: http.StatusPaymentRequired},
		{err: apperr.Unavailable(context.DeadlineExceeded), status: http.StatusServiceUnavailable},
		{err: context.Canceled, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(apperr.KindOf(tt.err)), func(t *testing.T) {
			ts := newTestServer(t)
			ts.payments.err = tt.err

			res := ts.do(t, http.MethodPost, "/api/checkout", buyerID, checkoutRequest{ProductID: "prod-1"})
			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}

			var got errorResponse
			decodeBody(t, res, &got)
			if got.Error != string(apperr.KindOf(tt.err)) {
				t.Fatalf("error = %q, want %q", got.Error, apperr.KindOf(tt.err))
			}
			if got.Message != apperr.Message(tt.err) {
				t.Fatalf("message = %q, want %q", got.Message, apperr.Message(tt.err))
			}
		})
	}
}

func TestGetPayment_Ownership(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.payment = samplePayment(buyerID)

	res := ts.do(t, http.MethodGet, "/api/payments/pay-1", otherID, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("stranger status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}

	for _, id := range []string{buyerID, adminUser} {
		res = ts.do(t, http.MethodGet, "/api/payments/pay-1", id, nil)
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", id, res.StatusCode, http.StatusOK)
		}
	}
}

func TestListPayments_NoContent(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodGet, "/api/payments", buyerID, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestGetProduct_HidesCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.product = &model.Product{
		ID:        "prod-1",
		Name:      "Conta Diamante",
		Price:     decimal.RequireFromString("59.90"),
		Details:   map[string]string{"rank": "diamond", "login": "user", "password": "secret"},
		Available: true,
	}

	res := ts.do(t, http.MethodGet, "/api/products/prod-1", buyerID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got productResponse
	decodeBody(t, res, &got)
	if got.Details["rank"] != "diamond" {
		t.Fatalf("public detail missing: %v", got.Details)
	}
	if _, ok := got.Details["password"]; ok {
		t.Fatalf("credentials leaked: %v", got.Details)
	}
}

func TestListProducts_Filter(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.products = []model.Product{{ID: "prod-1", Available: true}}

	res := ts.do(t, http.MethodGet, "/api/products?type=valorant&min_price=10&max_price=99.90&q=diamante", buyerID, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	f := ts.catalog.filter
	if f.Type != "valorant" || f.Query != "diamante" {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.Available == nil || !*f.Available {
		t.Fatalf("available filter should default to true")
	}
	if f.MaxPrice == nil || !f.MaxPrice.Equal(decimal.RequireFromString("99.90")) {
		t.Fatalf("max price = %v, want 99.90", f.MaxPrice)
	}

	res = ts.do(t, http.MethodGet, "/api/products?min_price=abc", buyerID, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestGetPrice_PassesCode(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.product = &model.Product{ID: "prod-1", Type: "valorant", Price: decimal.RequireFromString("59.90")}
	ts.promotions.quote = &model.PriceQuote{
		HasDiscount:        true,
		OriginalPrice:      decimal.RequireFromString("59.90"),
		DiscountedPrice:    decimal.RequireFromString("53.91"),
		DiscountPercentage: 10,
	}

	res := ts.do(t, http.MethodGet, "/api/products/prod-1/price?code=VIP10", buyerID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got model.PriceQuote
	decodeBody(t, res, &got)
	if !got.DiscountedPrice.Equal(decimal.RequireFromString("53.91")) {
		t.Fatalf("discounted price = %s, want 53.91", got.DiscountedPrice)
	}
	if ts.promotions.lastCode != "VIP10" {
		t.Fatalf("code = %q, want VIP10", ts.promotions.lastCode)
	}
}

func TestListPromotions_HidesCodePromotions(t *testing.T) {
	ts := newTestServer(t)
	ts.promotions.promos = []model.Promotion{
		{ID: "public", Discount: 10},
		{ID: "secret", Discount: 30, Code: "VIP30"},
	}

	res := ts.do(t, http.MethodGet, "/api/promotions", buyerID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got []model.Promotion
	decodeBody(t, res, &got)
	if len(got) != 1 || got[0].ID != "public" {
		t.Fatalf("unexpected promotions %+v", got)
	}
}

func TestRedeemPoints(t *testing.T) {
	ts := newTestServer(t)
	ts.loyalty.snapshot = &model.LoyaltySnapshot{UserID: buyerID, Balance: 40, Tier: 1}

	res := ts.do(t, http.MethodPost, "/api/loyalty/redeem", buyerID, pointsRequest{Points: 10})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got loyaltyResponse
	decodeBody(t, res, &got)
	if got.Balance != 40 {
		t.Fatalf("balance = %d, want 40", got.Balance)
	}
	if len(ts.users.recorded) != 1 || ts.users.recorded[0].Type != model.ActivityPointsRedeemed {
		t.Fatalf("redeem activity not recorded: %+v", ts.users.recorded)
	}
	if ts.users.recorded[0].Details["points"] != "10" {
		t.Fatalf("points detail = %q, want 10", ts.users.recorded[0].Details["points"])
	}
}

func TestRedeemPoints_InsufficientBalance(t *testing.T) {
	ts := newTestServer(t)
	ts.loyalty.err = &apperr.InsufficientBalanceError{Current: 5, Requested: 10}

	res := ts.do(t, http.MethodPost, "/api/loyalty/redeem", buyerID, pointsRequest{Points: 10})
	res.Body.Close()
	if res.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusPaymentRequired)
	}
	if len(ts.users.recorded) != 0 {
		t.Fatalf("activity recorded for failed redeem")
	}
}

func TestGrantPoints(t *testing.T) {
	ts := newTestServer(t)
	ts.loyalty.snapshot = &model.LoyaltySnapshot{UserID: buyerID, Balance: 100, Tier: 1}

	res := ts.do(t, http.MethodPost, "/api/admin/loyalty/not-a-snowflake/grant", adminUser, pointsRequest{Points: 100})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	res = ts.do(t, http.MethodPost, "/api/admin/loyalty/"+buyerID+"/grant", adminUser, pointsRequest{Points: 100})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ts.loyalty.lastMeta.AdminID != adminUser {
		t.Fatalf("admin id = %q, want %q", ts.loyalty.lastMeta.AdminID, adminUser)
	}
}

func TestRejectPayment_OptionalBody(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.payment = samplePayment(buyerID)

	res := ts.do(t, http.MethodPost, "/api/admin/payments/pay-1/reject", adminUser, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res = ts.do(t, http.MethodPost, "/api/admin/payments/pay-1/reject", adminUser, rejectRequest{Reason: "comprovante ilegível"})
	res.Body.Close()
	if ts.payments.lastReason != "comprovante ilegível" {
		t.Fatalf("reason = %q", ts.payments.lastReason)
	}
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodPost, "/api/assistant/ask", buyerID, askRequest{Question: "como pagar?"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got assistant.Reply
	decodeBody(t, res, &got)
	if got.Text != "answer to como pagar?" {
		t.Fatalf("text = %q", got.Text)
	}

	res = ts.do(t, http.MethodPost, "/api/assistant/ask", buyerID, askRequest{Question: "  "})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}
