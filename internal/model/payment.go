// Package model содержит доменные сущности магазина игровых аккаунтов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние запроса на оплату.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusRejected   PaymentStatus = "REJECTED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
)

// IsTerminal сообщает, является ли статус конечным.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusRejected, PaymentStatusExpired, PaymentStatusCancelled:
		return true
	}
	return false
}

// OpenPaymentStatuses перечисляет статусы, из которых ещё возможен переход.
var OpenPaymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing}

// PaymentMethod описывает способ оплаты. Поддерживается только PIX.
type PaymentMethod string

const PaymentMethodPix PaymentMethod = "PIX"

// PixDetails содержит данные для оплаты через PIX.
type PixDetails struct {
	TxID   string `json:"txid"`
	Code   string `json:"code"`
	QRCode string `json:"qr_code"`
}

// ApprovalInfo хранит отметки о ручной обработке платежа.
type ApprovalInfo struct {
	AdminID         string     `json:"admin_id,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt       *time.Time `json:"expired_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

// DeliveryData содержит выданные покупателю данные аккаунта.
type DeliveryData struct {
	Credentials  map[string]string `json:"credentials"`
	DeliveryCode string            `json:"delivery_code"`
	DeliveredAt  time.Time         `json:"delivered_at"`
}

// PaymentMetadata хранит сведения о применённой скидке.
type PaymentMetadata struct {
	OriginalPrice      decimal.Decimal `json:"original_price"`
	DiscountPercentage int             `json:"discount_percentage"`
	PromotionID        string          `json:"promotion_id,omitempty"`
}

// Payment описывает одну попытку покупки.
type Payment struct {
	ID          string
	BuyerID     string
	BuyerName   string
	ProductID   string
	ProductName string
	Amount      decimal.Decimal
	Method      PaymentMethod
	Status      PaymentStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Pix         PixDetails
	Approval    ApprovalInfo
	Delivery    *DeliveryData
	Metadata    PaymentMetadata
}

// IsOverdue сообщает, истёк ли срок ожидающего оплаты платежа на момент now.
func (p *Payment) IsOverdue(now time.Time) bool {
	return p.Status == PaymentStatusPending && now.After(p.ExpiresAt)
}

// Clone возвращает глубокую копию платежа.
func (p *Payment) Clone() *Payment {
	c := *p
	c.Approval = p.Approval
	if p.Delivery != nil {
		d := *p.Delivery
		d.Credentials = make(map[string]string, len(p.Delivery.Credentials))
		for k, v := range p.Delivery.Credentials {
			d.Credentials[k] = v
		}
		c.Delivery = &d
	}
	return &c
}

// PaymentFilter задаёт условия выборки платежей.
type PaymentFilter struct {
	BuyerID       string
	Statuses      []PaymentStatus
	ExpiresAfter  *time.Time
	ExpiresBefore *time.Time
	Limit         int
}

// GatewayResult описывает ответ банка о поступлении перевода.
type GatewayResult struct {
	Success bool
	Reason  string
}
