// Package service реализует бизнес-логику магазина: жизненный цикл платежей,
// акции, бонусную программу, каталог, профили пользователей и журнал аудита.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/repository"
)

// ProductStore описывает хранилище товаров.
type ProductStore interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetProductByExternalID(ctx context.Context, externalID string) (*model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	IncrementProductViews(ctx context.Context, id string) error
	MarkProductSold(ctx context.Context, id, buyerID string, at time.Time) (bool, error)
	RevertProductSale(ctx context.Context, id, buyerID string) (bool, error)
	FindProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error)
}

// PaymentStore описывает хранилище платежей.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	TransitionPayment(ctx context.Context, next *model.Payment, from []model.PaymentStatus) (bool, error)
	FindPayments(ctx context.Context, f model.PaymentFilter) ([]model.Payment, error)
}

// PromotionStore описывает хранилище акций.
type PromotionStore interface {
	CreatePromotion(ctx context.Context, p *model.Promotion) error
	GetPromotion(ctx context.Context, id string) (*model.Promotion, error)
	UpdatePromotion(ctx context.Context, p *model.Promotion) error
	ListActivePromotions(ctx context.Context, now time.Time) ([]model.Promotion, error)
	EndPromotion(ctx context.Context, id string, at time.Time) (bool, error)
	IncrementPromotionUsage(ctx context.Context, id string) (bool, error)
}

// LoyaltyStore описывает хранилище бонусных счетов.
type LoyaltyStore interface {
	GetAccount(ctx context.Context, userID string) (*model.LoyaltyAccount, error)
	SaveAccount(ctx context.Context, a *model.LoyaltyAccount) error
	ListAccountsWithExpiredPoints(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// AuditStore описывает хранилище журнала аудита.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *model.AuditEntry) error
	ListAudit(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error)
	DeleteExpiredAudit(ctx context.Context, now time.Time) (int64, error)
}

// UserStore описывает хранилище профилей и действий пользователей.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	UpsertUser(ctx context.Context, u *model.User) error
	AppendActivity(ctx context.Context, a *model.Activity, keep int) error
	ListActivity(ctx context.Context, userID string, limit int) ([]model.Activity, error)
}

// Cache описывает кэш. Отсутствие ключа не является ошибкой.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Notifier публикует события о платежах для слоя представления.
type Notifier interface {
	PublishPayment(ctx context.Context, event string, p *model.Payment) error
}

// CodeRenderer строит изображение платёжного кода.
type CodeRenderer interface {
	Render(payload string) (string, error)
}

func newID() string {
	return uuid.NewString()
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// cacheGet читает значение из кэша; сбои кэша логируются и считаются промахом.
func cacheGet(ctx context.Context, c Cache, logger *zap.Logger, key string, dst any) bool {
	if c == nil {
		return false
	}
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Warn("cache entry is corrupted", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func cacheSet(ctx context.Context, c Cache, logger *zap.Logger, key string, v any, ttl time.Duration) {
	if c == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func cacheDelete(ctx context.Context, c Cache, logger *zap.Logger, keys ...string) {
	if c == nil {
		return
	}
	if err := c.Delete(ctx, keys...); err != nil {
		logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func storeFailure(logger *zap.Logger, msg string, err error) error {
	logger.Error(msg, zap.Error(err))
	return apperr.Unavailable(err)
}
