package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Preferences хранит пожелания пользователя для рекомендаций.
type Preferences struct {
	Categories []string         `json:"categories"`
	MaxPrice   *decimal.Decimal `json:"max_price,omitempty"`
}

// User описывает покупателя, известного боту.
type User struct {
	ID          string
	DisplayName string
	Preferences Preferences
	Blocked     bool
	BlockReason string
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// ActivityType описывает вид пользовательского действия.
type ActivityType string

const (
	ActivityProductView      ActivityType = "PRODUCT_VIEW"
	ActivityPaymentCreated   ActivityType = "PAYMENT_CREATED"
	ActivityProductPurchase  ActivityType = "PRODUCT_PURCHASE"
	ActivityPaymentRejected  ActivityType = "PAYMENT_REJECTED"
	ActivityPaymentCancelled ActivityType = "PAYMENT_CANCELLED"
	ActivityPointsRedeemed   ActivityType = "POINTS_REDEEMED"
)

// Activity описывает запись журнала действий пользователя.
type Activity struct {
	ID        string
	UserID    string
	Type      ActivityType
	ProductID string
	PaymentID string
	Details   map[string]string
	CreatedAt time.Time
}
