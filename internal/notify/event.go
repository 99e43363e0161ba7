// Package notify публикует события о платежах для бота, который отправляет
// покупателям и администраторам сообщения в Discord.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmeshcher/gamestore/internal/model"
)

// События жизненного цикла платежа.
const (
	EventPaymentCreated   = "payment.created"
	EventPaymentCompleted = "payment.completed"
	EventPaymentRejected  = "payment.rejected"
	EventPaymentExpired   = "payment.expired"
	EventPaymentCancelled = "payment.cancelled"
)

// PaymentEvent описывает сообщение о смене статуса платежа.
type PaymentEvent struct {
	Event       string              `json:"event"`
	PaymentID   string              `json:"payment_id"`
	BuyerID     string              `json:"buyer_id"`
	BuyerName   string              `json:"buyer_name,omitempty"`
	ProductID   string              `json:"product_id"`
	ProductName string              `json:"product_name"`
	Amount      string              `json:"amount"`
	Status      model.PaymentStatus `json:"status"`
	PixCode     string              `json:"pix_code,omitempty"`
	QRCode      string              `json:"qr_code,omitempty"`
	ExpiresAt   time.Time           `json:"expires_at"`
	Reason      string              `json:"reason,omitempty"`
	Delivery    *model.DeliveryData `json:"delivery,omitempty"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// NewPaymentEvent собирает событие из платежа. Код оплаты передаётся только
// для нового платежа, данные аккаунта только для завершённого.
func NewPaymentEvent(event string, p *model.Payment, at time.Time) PaymentEvent {
	e := PaymentEvent{
		Event:       event,
		PaymentID:   p.ID,
		BuyerID:     p.BuyerID,
		BuyerName:   p.BuyerName,
		ProductID:   p.ProductID,
		ProductName: p.ProductName,
		Amount:      p.Amount.StringFixed(2),
		Status:      p.Status,
		ExpiresAt:   p.ExpiresAt,
		Reason:      p.Approval.RejectionReason,
		OccurredAt:  at,
	}
	switch event {
	case EventPaymentCreated:
		e.PixCode = p.Pix.Code
		e.QRCode = p.Pix.QRCode
	case EventPaymentCompleted:
		e.Delivery = p.Delivery
	}
	return e
}

// Encode сериализует событие в JSON.
func (e PaymentEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal payment event: %w", err)
	}
	return data, nil
}
