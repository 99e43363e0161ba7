package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointStatus описывает состояние операции с баллами.
type PointStatus string

const (
	PointStatusActive  PointStatus = "ACTIVE"
	PointStatusUsed    PointStatus = "USED"
	PointStatusExpired PointStatus = "EXPIRED"
)

// Причины начисления и списания баллов.
const (
	PointReasonPurchase = "PURCHASE"
	PointReasonExpired  = "EXPIRED"
	PointReasonRedeem   = "REDEEM"
	PointReasonManual   = "MANUAL"
)

// PointTransaction описывает одну операцию по бонусному счёту.
type PointTransaction struct {
	ID        string
	Amount    int64
	Reason    string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Status    PointStatus
	ProductID string
	PaymentID string
	AdminID   string
}

// LoyaltyAccount описывает бонусный счёт пользователя.
type LoyaltyAccount struct {
	UserID        string
	DisplayName   string
	Balance       int64
	LifetimeTotal int64
	Tier          int
	Transactions  []PointTransaction
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone возвращает копию счёта с независимым списком операций.
func (a *LoyaltyAccount) Clone() *LoyaltyAccount {
	c := *a
	c.Transactions = append([]PointTransaction(nil), a.Transactions...)
	return &c
}

// PointMetadata связывает операцию с товаром, платежом или администратором.
type PointMetadata struct {
	DisplayName string
	ProductID   string
	PaymentID   string
	AdminID     string
}

// LoyaltySnapshot описывает состояние бонусного счёта на момент чтения.
type LoyaltySnapshot struct {
	UserID        string
	Balance       int64
	LifetimeTotal int64
	Tier          int
	Transactions  []PointTransaction
	MoneyValue    decimal.Decimal
}
