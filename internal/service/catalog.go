package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/model"
)

// CatalogConfig задаёт параметры каталога.
type CatalogConfig struct {
	CacheTTL time.Duration
}

// ProductInput содержит поля товара, задаваемые администратором.
type ProductInput struct {
	Name        string
	Type        string
	Price       decimal.Decimal
	Description string
	Details     map[string]string
	Available   *bool
}

// ExternalListing описывает товар, полученный с маркетплейса.
type ExternalListing struct {
	ExternalID  string
	Name        string
	Type        string
	Price       decimal.Decimal
	Description string
	Details     map[string]string
	Available   bool
}

// Catalog управляет товарами магазина.
type Catalog struct {
	store  ProductStore
	cache  Cache
	audit  *AuditLog
	users  *UserDirectory
	cfg    CatalogConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewCatalog создаёт каталог товаров.
func NewCatalog(store ProductStore, cache Cache, audit *AuditLog, users *UserDirectory, cfg CatalogConfig, logger *zap.Logger) *Catalog {
	return &Catalog{
		store:  store,
		cache:  cache,
		audit:  audit,
		users:  users,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func productCacheKey(id string) string {
	return "product:" + id
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.New(apperr.KindValidation, "product name is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return apperr.New(apperr.KindValidation, "product type is required")
	}
	if in.Price.IsNegative() {
		return apperr.New(apperr.KindValidation, "price must not be negative")
	}
	return nil
}

// Create добавляет товар вручную.
func (c *Catalog) Create(ctx context.Context, adminID string, in ProductInput) (*model.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	now := c.now()
	p := &model.Product{
		ID:          newID(),
		Name:        strings.TrimSpace(in.Name),
		Type:        strings.ToLower(strings.TrimSpace(in.Type)),
		Price:       in.Price.Round(2),
		Description: in.Description,
		Details:     in.Details,
		Available:   true,
		Origin:      model.ProductOriginManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Available != nil {
		p.Available = *in.Available
	}

	if err := c.store.CreateProduct(ctx, p); err != nil {
		return nil, storeFailure(c.logger, "create product", err)
	}

	c.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionProductCreated,
		Category:  model.AuditCategoryProduct,
		ActorID:   adminID,
		ProductID: p.ID,
		Details:   map[string]string{"name": p.Name, "price": p.Price.StringFixed(2)},
	})
	return p, nil
}

// Update изменяет товар. Проданный товар редактировать нельзя.
func (c *Catalog) Update(ctx context.Context, adminID, id string, in ProductInput) (*model.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	p, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Sold {
		return nil, apperr.New(apperr.KindInvalidState, "sold products cannot be edited")
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Type = strings.ToLower(strings.TrimSpace(in.Type))
	p.Price = in.Price.Round(2)
	p.Description = in.Description
	if in.Details != nil {
		p.Details = in.Details
	}
	if in.Available != nil {
		p.Available = *in.Available
	}
	p.UpdatedAt = c.now()

	if err := c.store.UpdateProduct(ctx, p); err != nil {
		return nil, storeFailure(c.logger, "update product", err)
	}
	c.invalidate(ctx, id)

	c.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionProductUpdated,
		Category:  model.AuditCategoryProduct,
		ActorID:   adminID,
		ProductID: p.ID,
		Details:   map[string]string{"price": p.Price.StringFixed(2)},
	})
	return p, nil
}

// SetAvailability снимает товар с продажи или возвращает его. Проданный товар вернуть нельзя.
func (c *Catalog) SetAvailability(ctx context.Context, adminID, id string, available bool) (*model.Product, error) {
	p, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Sold && available {
		return nil, apperr.New(apperr.KindInvalidState, "sold products cannot be relisted")
	}
	if p.Available == available {
		return p, nil
	}

	p.Available = available
	p.UpdatedAt = c.now()
	if err := c.store.UpdateProduct(ctx, p); err != nil {
		return nil, storeFailure(c.logger, "update availability", err)
	}
	c.invalidate(ctx, id)

	c.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionProductAvailability,
		Category:  model.AuditCategoryProduct,
		ActorID:   adminID,
		ProductID: id,
		Details:   map[string]string{"available": boolString(available)},
	})
	return p, nil
}

// Get возвращает товар, используя кэш.
func (c *Catalog) Get(ctx context.Context, id string) (*model.Product, error) {
	var cached model.Product
	if cacheGet(ctx, c.cache, c.logger, productCacheKey(id), &cached) {
		return &cached, nil
	}

	p, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	cacheSet(ctx, c.cache, c.logger, productCacheKey(id), p, c.cfg.CacheTTL)
	return p, nil
}

// View возвращает товар и учитывает просмотр пользователем.
func (c *Catalog) View(ctx context.Context, id, userID string) (*model.Product, error) {
	p, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.store.IncrementProductViews(ctx, id); err != nil {
		c.logger.Warn("increment views failed", zap.String("product_id", id), zap.Error(err))
	} else {
		p.Views++
		c.invalidate(ctx, id)
	}

	if userID != "" && c.users != nil {
		c.users.RecordActivity(ctx, model.Activity{
			UserID:    userID,
			Type:      model.ActivityProductView,
			ProductID: id,
			Details:   map[string]string{"type": p.Type},
		})
	}
	return p, nil
}

// Search ищет товары по фильтру.
func (c *Catalog) Search(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 25
	}
	if f.Type != "" {
		f.Type = strings.ToLower(strings.TrimSpace(f.Type))
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, apperr.New(apperr.KindValidation, "min price is greater than max price")
	}

	products, err := c.store.FindProducts(ctx, f)
	if err != nil {
		return nil, storeFailure(c.logger, "search products", err)
	}
	return products, nil
}

// UpsertExternal создаёт или обновляет товар с маркетплейса. Проданные товары не трогаются.
func (c *Catalog) UpsertExternal(ctx context.Context, l ExternalListing) (bool, error) {
	if l.ExternalID == "" {
		return false, apperr.New(apperr.KindValidation, "external id is required")
	}
	in := ProductInput{Name: l.Name, Type: l.Type, Price: l.Price, Description: l.Description}
	if err := validateProductInput(in); err != nil {
		return false, err
	}

	now := c.now()
	existing, err := c.store.GetProductByExternalID(ctx, l.ExternalID)
	if err != nil && !isNotFound(err) {
		return false, storeFailure(c.logger, "get product by external id", err)
	}

	if existing == nil {
		p := &model.Product{
			ID:          newID(),
			Name:        strings.TrimSpace(l.Name),
			Type:        strings.ToLower(strings.TrimSpace(l.Type)),
			Price:       l.Price.Round(2),
			Description: l.Description,
			Details:     l.Details,
			Available:   l.Available,
			Origin:      model.ProductOriginMarketplace,
			ExternalID:  l.ExternalID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := c.store.CreateProduct(ctx, p); err != nil {
			return false, storeFailure(c.logger, "create synced product", err)
		}
		c.audit.Record(ctx, model.AuditEntry{
			Action:    model.ActionProductSynced,
			Category:  model.AuditCategoryProduct,
			ProductID: p.ID,
			Details:   map[string]string{"external_id": l.ExternalID, "operation": "created"},
		})
		return true, nil
	}

	if existing.Sold {
		return false, nil
	}

	existing.Name = strings.TrimSpace(l.Name)
	existing.Type = strings.ToLower(strings.TrimSpace(l.Type))
	existing.Price = l.Price.Round(2)
	existing.Description = l.Description
	if l.Details != nil {
		existing.Details = l.Details
	}
	existing.Available = l.Available
	existing.UpdatedAt = now
	if err := c.store.UpdateProduct(ctx, existing); err != nil {
		return false, storeFailure(c.logger, "update synced product", err)
	}
	c.invalidate(ctx, existing.ID)
	return false, nil
}

// load читает товар из хранилища в обход кэша.
func (c *Catalog) load(ctx context.Context, id string) (*model.Product, error) {
	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Newf(apperr.KindNotFound, "product %s not found", id)
		}
		return nil, storeFailure(c.logger, "get product", err)
	}
	return p, nil
}

// markSold атомарно помечает товар проданным.
func (c *Catalog) markSold(ctx context.Context, id, buyerID string, at time.Time) (bool, error) {
	ok, err := c.store.MarkProductSold(ctx, id, buyerID, at)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, id)
	return ok, nil
}

// revertSale возвращает товар в продажу при откате одобрения.
func (c *Catalog) revertSale(ctx context.Context, id, buyerID string) (bool, error) {
	ok, err := c.store.RevertProductSale(ctx, id, buyerID)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, id)
	return ok, nil
}

func (c *Catalog) invalidate(ctx context.Context, id string) {
	cacheDelete(ctx, c.cache, c.logger, productCacheKey(id))
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
