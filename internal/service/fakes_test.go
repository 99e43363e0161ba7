package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/cache"
	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/pix"
	"github.com/mmeshcher/gamestore/internal/repository"
)

// memStore хранит данные в памяти с теми же условными обновлениями, что и PostgresRepository.
type memStore struct {
	mu sync.Mutex

	products   map[string]*model.Product
	payments   map[string]*model.Payment
	promotions map[string]*model.Promotion
	accounts   map[string]*model.LoyaltyAccount
	audit      []model.AuditEntry
	users      map[string]*model.User
	activity   map[string][]model.Activity

	markSoldErr    error
	saveAccountErr error
	appendAuditErr error
	getPaymentErr  error
	createPayErr   error
}

func newMemStore() *memStore {
	return &memStore{
		products:   make(map[string]*model.Product),
		payments:   make(map[string]*model.Payment),
		promotions: make(map[string]*model.Promotion),
		accounts:   make(map[string]*model.LoyaltyAccount),
		users:      make(map[string]*model.User),
		activity:   make(map[string][]model.Activity),
	}
}

func (s *memStore) CreateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p.Clone()
	return nil
}

func (s *memStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *memStore) GetProductByExternalID(_ context.Context, externalID string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ExternalID == externalID {
			return p.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) UpdateProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := p.Clone()
	next.Sold, next.BuyerID, next.SoldAt, next.Views = cur.Sold, cur.BuyerID, cur.SoldAt, cur.Views
	next.Available = p.Available && !cur.Sold
	s.products[p.ID] = next
	return nil
}

func (s *memStore) IncrementProductViews(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.Views++
	}
	return nil
}

func (s *memStore) MarkProductSold(_ context.Context, id, buyerID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markSoldErr != nil {
		return false, s.markSoldErr
	}
	p, ok := s.products[id]
	if !ok || p.Sold || !p.Available {
		return false, nil
	}
	p.Sold, p.Available, p.BuyerID = true, false, buyerID
	p.SoldAt = &at
	return true, nil
}

func (s *memStore) RevertProductSale(_ context.Context, id, buyerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok || !p.Sold || p.BuyerID != buyerID {
		return false, nil
	}
	p.Sold, p.Available, p.BuyerID, p.SoldAt = false, true, "", nil
	return true, nil
}

func (s *memStore) FindProducts(_ context.Context, f model.ProductFilter) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Product
	for _, p := range s.products {
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		if f.Available != nil && p.Available != *f.Available {
			continue
		}
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
				continue
			}
		}
		res = append(res, *p.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (s *memStore) CreatePayment(_ context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createPayErr != nil {
		return s.createPayErr
	}
	s.payments[p.ID] = p.Clone()
	return nil
}

func (s *memStore) GetPayment(_ context.Context, id string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getPaymentErr != nil {
		return nil, s.getPaymentErr
	}
	p, ok := s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *memStore) TransitionPayment(_ context.Context, next *model.Payment, from []model.PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.payments[next.ID]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if cur.Status == st {
			s.payments[next.ID] = next.Clone()
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) FindPayments(_ context.Context, f model.PaymentFilter) ([]model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Payment
	for _, p := range s.payments {
		if f.BuyerID != "" && p.BuyerID != f.BuyerID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, p.Status) {
			continue
		}
		if f.ExpiresAfter != nil && !p.ExpiresAt.After(*f.ExpiresAfter) {
			continue
		}
		if f.ExpiresBefore != nil && !p.ExpiresAt.Before(*f.ExpiresBefore) {
			continue
		}
		res = append(res, *p.Clone())
	}
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func hasStatus(list []model.PaymentStatus, st model.PaymentStatus) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

func (s *memStore) CreatePromotion(_ context.Context, p *model.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.promotions[p.ID] = &cp
	return nil
}

func (s *memStore) GetPromotion(_ context.Context, id string) (*model.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdatePromotion(_ context.Context, p *model.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.promotions[p.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *p
	s.promotions[p.ID] = &cp
	return nil
}

func (s *memStore) ListActivePromotions(_ context.Context, now time.Time) ([]model.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Promotion
	for _, p := range s.promotions {
		if p.IsRunning(now) {
			res = append(res, *p)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].EndsAt.Equal(res[j].EndsAt) {
			return res[i].EndsAt.Before(res[j].EndsAt)
		}
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *memStore) EndPromotion(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[id]
	if !ok || !p.Active {
		return false, nil
	}
	p.Active, p.EndsAt, p.UpdatedAt = false, at, at
	return true, nil
}

func (s *memStore) IncrementPromotionUsage(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[id]
	if !ok || p.Exhausted() {
		return false, nil
	}
	p.UsageCount++
	return true, nil
}

func (s *memStore) GetAccount(_ context.Context, userID string) (*model.LoyaltyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *memStore) SaveAccount(_ context.Context, a *model.LoyaltyAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveAccountErr != nil {
		return s.saveAccountErr
	}
	cur, ok := s.accounts[a.UserID]
	switch {
	case a.Version == 0 && ok:
		return repository.ErrVersionConflict
	case a.Version != 0 && (!ok || cur.Version != a.Version):
		return repository.ErrVersionConflict
	}
	stored := a.Clone()
	stored.Version = a.Version + 1
	s.accounts[a.UserID] = stored
	a.Version++
	return nil
}

func (s *memStore) ListAccountsWithExpiredPoints(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []string
	for id, a := range s.accounts {
		for _, t := range a.Transactions {
			if t.Status == model.PointStatusActive && t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
				res = append(res, id)
				break
			}
		}
	}
	sort.Strings(res)
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *memStore) AppendAudit(_ context.Context, e *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendAuditErr != nil {
		return s.appendAuditErr
	}
	s.audit = append(s.audit, *e)
	return nil
}

func (s *memStore) ListAudit(_ context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.AuditEntry
	for _, e := range s.audit {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

func (s *memStore) DeleteExpiredAudit(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.audit[:0]
	var n int64
	for _, e := range s.audit {
		if !e.ExpiresAt.After(now) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return n, nil
}

func (s *memStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) UpsertUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memStore) AppendActivity(_ context.Context, a *model.Activity, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.activity[a.UserID], *a)
	if len(list) > keep {
		list = list[len(list)-keep:]
	}
	s.activity[a.UserID] = list
	return nil
}

func (s *memStore) ListActivity(_ context.Context, userID string, limit int) ([]model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.activity[userID]
	res := make([]model.Activity, 0, len(list))
	for i := len(list) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, list[i])
	}
	return res, nil
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]string, 0, len(s.audit))
	for _, e := range s.audit {
		res = append(res, e.Action)
	}
	return res
}

func (s *memStore) product(id string) *model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Clone()
}

func (s *memStore) payment(id string) *model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id].Clone()
}

// fakeClock задаёт управляемые часы для проверки сроков.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) PublishPayment(_ context.Context, event string, _ *model.Payment) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type testEnv struct {
	store    *memStore
	clock    *fakeClock
	notifier *recordingNotifier
	audit    *AuditLog
	users    *UserDirectory
	catalog  *Catalog
	promos   *PromotionEngine
	loyalty  *LoyaltyLedger
	payments *PaymentLifecycle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	store := newMemStore()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	memCache := cache.NewMemory()
	notifier := &recordingNotifier{}

	audit := NewAuditLog(store, AuditConfig{}, logger, nil)
	audit.now = clock.Now

	users := NewUserDirectory(store, audit, logger)
	users.now = clock.Now

	catalog := NewCatalog(store, memCache, audit, users, CatalogConfig{CacheTTL: time.Minute}, logger)
	catalog.now = clock.Now

	promos := NewPromotionEngine(store, memCache, audit, PromotionConfig{MinDiscount: 1, MaxDiscount: 90, CacheTTL: time.Minute}, logger)
	promos.now = clock.Now

	loyalty := NewLoyaltyLedger(store, audit, nil, LoyaltyConfig{
		ExpirationDays: 365,
		ConversionRate: decimal.RequireFromString("0.01"),
	}, logger)
	loyalty.now = clock.Now

	payments := NewPaymentLifecycle(PaymentDeps{
		Payments:   store,
		Catalog:    catalog,
		Promotions: promos,
		Loyalty:    loyalty,
		Users:      users,
		Audit:      audit,
		Notifier:   notifier,
		Logger:     logger,
	}, PaymentConfig{
		TTL:      1800 * time.Second,
		Merchant: pix.Merchant{Key: "store@example.com", Name: "GAME STORE", City: "SAO PAULO"},
	})
	payments.now = clock.Now

	return &testEnv{
		store:    store,
		clock:    clock,
		notifier: notifier,
		audit:    audit,
		users:    users,
		catalog:  catalog,
		promos:   promos,
		loyalty:  loyalty,
		payments: payments,
	}
}

func (e *testEnv) addProduct(t *testing.T, price string, productType string) *model.Product {
	t.Helper()
	p, err := e.catalog.Create(context.Background(), "admin", ProductInput{
		Name:    "Account " + price,
		Type:    productType,
		Price:   decimal.RequireFromString(price),
		Details: map[string]string{"rank": "Gold", "login": "acc_login", "password": "acc_pass"},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}
