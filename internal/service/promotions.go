package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/model"
)

const activePromotionsKey = "promotions:active"

var hundred = decimal.NewFromInt(100)

// PromotionConfig задаёт допустимый диапазон скидки и время жизни кэша.
type PromotionConfig struct {
	MinDiscount int
	MaxDiscount int
	CacheTTL    time.Duration
}

// PromotionInput содержит поля акции, задаваемые администратором.
// Нулевой StartsAt означает «сейчас».
type PromotionInput struct {
	Title         string
	Description   string
	Type          string
	Discount      int
	StartsAt      time.Time
	DurationHours int
	ProductIDs    []string
	Categories    []string
	UsageLimit    int
	Code          string
}

// PromotionEngine управляет акциями и рассчитывает цену со скидкой.
type PromotionEngine struct {
	store  PromotionStore
	cache  Cache
	audit  *AuditLog
	cfg    PromotionConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewPromotionEngine создаёт движок акций.
func NewPromotionEngine(store PromotionStore, cache Cache, audit *AuditLog, cfg PromotionConfig, logger *zap.Logger) *PromotionEngine {
	return &PromotionEngine{
		store:  store,
		cache:  cache,
		audit:  audit,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (e *PromotionEngine) validate(in PromotionInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.New(apperr.KindValidation, "promotion title is required")
	}
	if in.Discount < e.cfg.MinDiscount || in.Discount > e.cfg.MaxDiscount {
		return apperr.Newf(apperr.KindValidation, "discount must be between %d%% and %d%%", e.cfg.MinDiscount, e.cfg.MaxDiscount)
	}
	if in.DurationHours <= 0 {
		return apperr.New(apperr.KindValidation, "duration must be positive")
	}
	if in.UsageLimit < 0 {
		return apperr.New(apperr.KindValidation, "usage limit must not be negative")
	}
	return nil
}

func (e *PromotionEngine) apply(p *model.Promotion, in PromotionInput) {
	start := in.StartsAt
	if start.IsZero() {
		start = e.now()
	}
	p.Title = strings.TrimSpace(in.Title)
	p.Description = in.Description
	p.Type = in.Type
	p.Discount = in.Discount
	p.StartsAt = start
	p.EndsAt = start.Add(time.Duration(in.DurationHours) * time.Hour)
	p.ProductIDs = in.ProductIDs
	p.Categories = lowerAll(in.Categories)
	p.UsageLimit = in.UsageLimit
	p.Code = strings.ToUpper(strings.TrimSpace(in.Code))
}

// Create добавляет акцию.
func (e *PromotionEngine) Create(ctx context.Context, adminID string, in PromotionInput) (*model.Promotion, error) {
	if err := e.validate(in); err != nil {
		return nil, err
	}

	now := e.now()
	p := &model.Promotion{
		ID:        newID(),
		Active:    true,
		CreatedBy: adminID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.apply(p, in)

	if err := e.store.CreatePromotion(ctx, p); err != nil {
		return nil, storeFailure(e.logger, "create promotion", err)
	}
	e.invalidate(ctx)

	e.audit.Record(ctx, model.AuditEntry{
		Action:   model.ActionPromotionCreated,
		Category: model.AuditCategoryPromotion,
		ActorID:  adminID,
		TargetID: p.ID,
		Details:  map[string]string{"title": p.Title, "discount": strconv.Itoa(p.Discount)},
	})
	return p, nil
}

// Update изменяет действующую акцию. Окончание пересчитывается от начала.
func (e *PromotionEngine) Update(ctx context.Context, adminID, id string, in PromotionInput) (*model.Promotion, error) {
	if err := e.validate(in); err != nil {
		return nil, err
	}

	p, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, apperr.New(apperr.KindInvalidState, "promotion has already ended")
	}

	e.apply(p, in)
	p.UpdatedAt = e.now()

	if err := e.store.UpdatePromotion(ctx, p); err != nil {
		if isNotFound(err) {
			return nil, apperr.Newf(apperr.KindNotFound, "promotion %s not found", id)
		}
		return nil, storeFailure(e.logger, "update promotion", err)
	}
	e.invalidate(ctx)

	e.audit.Record(ctx, model.AuditEntry{
		Action:   model.ActionPromotionUpdated,
		Category: model.AuditCategoryPromotion,
		ActorID:  adminID,
		TargetID: p.ID,
		Details:  map[string]string{"discount": strconv.Itoa(p.Discount)},
	})
	return p, nil
}

// End досрочно завершает акцию.
func (e *PromotionEngine) End(ctx context.Context, adminID, id string) (*model.Promotion, error) {
	p, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, apperr.New(apperr.KindAlreadyInactive, "promotion is already inactive")
	}

	now := e.now()
	ended, err := e.store.EndPromotion(ctx, id, now)
	if err != nil {
		return nil, storeFailure(e.logger, "end promotion", err)
	}
	if !ended {
		return nil, apperr.New(apperr.KindAlreadyInactive, "promotion is already inactive")
	}
	e.invalidate(ctx)

	p.Active = false
	p.EndsAt = now
	p.UpdatedAt = now

	e.audit.Record(ctx, model.AuditEntry{
		Action:   model.ActionPromotionEnded,
		Category: model.AuditCategoryPromotion,
		ActorID:  adminID,
		TargetID: id,
	})
	return p, nil
}

// Get возвращает акцию по идентификатору.
func (e *PromotionEngine) Get(ctx context.Context, id string) (*model.Promotion, error) {
	p, err := e.store.GetPromotion(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Newf(apperr.KindNotFound, "promotion %s not found", id)
		}
		return nil, storeFailure(e.logger, "get promotion", err)
	}
	return p, nil
}

// ActivePromotions возвращает действующие акции, первыми идут ближайшие к завершению.
func (e *PromotionEngine) ActivePromotions(ctx context.Context) ([]model.Promotion, error) {
	now := e.now()

	var cached []model.Promotion
	if cacheGet(ctx, e.cache, e.logger, activePromotionsKey, &cached) {
		return runningAt(cached, now), nil
	}

	promos, err := e.store.ListActivePromotions(ctx, now)
	if err != nil {
		return nil, storeFailure(e.logger, "list active promotions", err)
	}
	cacheSet(ctx, e.cache, e.logger, activePromotionsKey, promos, e.cfg.CacheTTL)
	return promos, nil
}

// ResolvePrice рассчитывает цену товара с лучшей применимой акцией без промокода.
func (e *PromotionEngine) ResolvePrice(ctx context.Context, productID string, base decimal.Decimal, productType string) (*model.PriceQuote, error) {
	return e.ResolvePriceWithCode(ctx, productID, base, productType, "")
}

// ResolvePriceWithCode рассчитывает цену с учётом промокода. Акции с кодом
// применяются только при совпадении кода, акции без кода применяются всегда.
func (e *PromotionEngine) ResolvePriceWithCode(ctx context.Context, productID string, base decimal.Decimal, productType, code string) (*model.PriceQuote, error) {
	promos, err := e.ActivePromotions(ctx)
	if err != nil {
		return nil, err
	}

	best := BestPromotion(promos, productID, productType, code)
	if best == nil {
		return &model.PriceQuote{OriginalPrice: base, DiscountedPrice: base}, nil
	}
	return &model.PriceQuote{
		HasDiscount:        true,
		OriginalPrice:      base,
		DiscountedPrice:    ApplyDiscount(base, best.Discount),
		DiscountPercentage: best.Discount,
		Promotion:          best.Summary(),
	}, nil
}

// RecordUsage учитывает применение акции в оплаченном заказе.
func (e *PromotionEngine) RecordUsage(ctx context.Context, id string) error {
	ok, err := e.store.IncrementPromotionUsage(ctx, id)
	if err != nil {
		return storeFailure(e.logger, "record promotion usage", err)
	}
	if !ok {
		e.logger.Info("promotion usage limit reached", zap.String("promotion_id", id))
	}
	e.invalidate(ctx)
	return nil
}

func (e *PromotionEngine) invalidate(ctx context.Context) {
	cacheDelete(ctx, e.cache, e.logger, activePromotionsKey)
}

// ApplyDiscount возвращает base*(1-percent/100), округлённое до копеек половиной вверх.
func ApplyDiscount(base decimal.Decimal, percent int) decimal.Decimal {
	factor := hundred.Sub(decimal.NewFromInt(int64(percent)))
	return base.Mul(factor).Div(hundred).Round(2)
}

// BestPromotion выбирает акцию с наибольшей скидкой среди применимых.
// При равенстве побеждает первая в порядке promos.
func BestPromotion(promos []model.Promotion, productID, productType, code string) *model.Promotion {
	code = strings.ToUpper(strings.TrimSpace(code))
	productType = strings.ToLower(productType)

	var best *model.Promotion
	for i := range promos {
		p := &promos[i]
		if p.Exhausted() {
			continue
		}
		if p.Code != "" && p.Code != code {
			continue
		}
		if !appliesTo(p, productID, productType) {
			continue
		}
		if best == nil || p.Discount > best.Discount {
			best = p
		}
	}
	return best
}

func appliesTo(p *model.Promotion, productID, productType string) bool {
	if len(p.ProductIDs) > 0 {
		return contains(p.ProductIDs, productID)
	}
	if len(p.Categories) > 0 {
		return contains(p.Categories, productType)
	}
	return true
}

func runningAt(promos []model.Promotion, now time.Time) []model.Promotion {
	res := promos[:0]
	for _, p := range promos {
		if p.IsRunning(now) {
			res = append(res, p)
		}
	}
	return res
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func lowerAll(list []string) []string {
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
