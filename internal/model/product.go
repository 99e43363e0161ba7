package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductOrigin указывает источник товара.
type ProductOrigin string

const (
	ProductOriginManual      ProductOrigin = "MANUAL"
	ProductOriginMarketplace ProductOrigin = "MARKETPLACE"
)

// Product описывает продаваемый игровой аккаунт.
type Product struct {
	ID          string
	Name        string
	Type        string
	Price       decimal.Decimal
	Description string
	Details     map[string]string
	Available   bool
	Sold        bool
	Views       int64
	BuyerID     string
	SoldAt      *time.Time
	Origin      ProductOrigin
	ExternalID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPurchasable сообщает, можно ли оформить покупку товара.
func (p *Product) IsPurchasable() bool {
	return p.Available && !p.Sold
}

// ProductFilter задаёт условия поиска товаров.
type ProductFilter struct {
	Type      string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Available *bool
	Query     string
	Limit     int
}

// Clone возвращает копию товара с независимой картой деталей.
func (p *Product) Clone() *Product {
	c := *p
	if p.Details != nil {
		c.Details = make(map[string]string, len(p.Details))
		for k, v := range p.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// CredentialKeys перечисляет ключи деталей товара, которые выдаются только покупателю.
var CredentialKeys = []string{"login", "email", "password", "recovery_email", "recovery_code"}

// IsCredentialKey сообщает, относится ли ключ деталей к учётным данным.
func IsCredentialKey(key string) bool {
	for _, k := range CredentialKeys {
		if k == key {
			return true
		}
	}
	return false
}

// PublicDetails возвращает детали товара без учётных данных.
func (p *Product) PublicDetails() map[string]string {
	out := make(map[string]string, len(p.Details))
	for k, v := range p.Details {
		if !IsCredentialKey(k) {
			out[k] = v
		}
	}
	return out
}
