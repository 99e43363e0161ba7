package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Promotion описывает ограниченное по времени правило скидки.
type Promotion struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Discount    int       `json:"discount"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Active      bool      `json:"active"`
	ProductIDs  []string  `json:"product_ids"`
	Categories  []string  `json:"categories"`
	UsageLimit  int       `json:"usage_limit"`
	UsageCount  int       `json:"usage_count"`
	Code        string    `json:"code,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsRunning сообщает, действует ли акция в момент now.
func (p *Promotion) IsRunning(now time.Time) bool {
	return p.Active && !now.Before(p.StartsAt) && now.Before(p.EndsAt)
}

// Exhausted сообщает, исчерпан ли лимит использований.
func (p *Promotion) Exhausted() bool {
	return p.UsageLimit > 0 && p.UsageCount >= p.UsageLimit
}

// PromotionSummary содержит краткое описание акции для витрины.
type PromotionSummary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Discount int       `json:"discount"`
	EndsAt   time.Time `json:"ends_at"`
}

// Summary возвращает краткое описание акции.
func (p *Promotion) Summary() *PromotionSummary {
	return &PromotionSummary{ID: p.ID, Title: p.Title, Discount: p.Discount, EndsAt: p.EndsAt}
}

// PriceQuote описывает итоговую цену товара с учётом лучшей применимой акции.
type PriceQuote struct {
	HasDiscount        bool              `json:"has_discount"`
	OriginalPrice      decimal.Decimal   `json:"original_price"`
	DiscountedPrice    decimal.Decimal   `json:"discounted_price"`
	DiscountPercentage int               `json:"discount_percentage"`
	Promotion          *PromotionSummary `json:"promotion,omitempty"`
}
