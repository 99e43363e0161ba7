package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamestore/internal/model"
)

type paymentResponse struct {
	ID          string                `json:"id"`
	BuyerID     string                `json:"buyer_id"`
	BuyerName   string                `json:"buyer_name,omitempty"`
	ProductID   string                `json:"product_id"`
	ProductName string                `json:"product_name"`
	Amount      decimal.Decimal       `json:"amount"`
	Method      string                `json:"method"`
	Status      string                `json:"status"`
	CreatedAt   string                `json:"created_at"`
	ExpiresAt   string                `json:"expires_at"`
	Pix         model.PixDetails      `json:"pix"`
	Approval    model.ApprovalInfo    `json:"approval"`
	Delivery    *model.DeliveryData   `json:"delivery,omitempty"`
	Metadata    model.PaymentMetadata `json:"metadata"`
}

// newPaymentResponse формирует ответ; данные доставки включаются только при showDelivery.
func newPaymentResponse(p *model.Payment, showDelivery bool) paymentResponse {
	resp := paymentResponse{
		ID:          p.ID,
		BuyerID:     p.BuyerID,
		BuyerName:   p.BuyerName,
		ProductID:   p.ProductID,
		ProductName: p.ProductName,
		Amount:      p.Amount,
		Method:      string(p.Method),
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		ExpiresAt:   p.ExpiresAt.Format(time.RFC3339),
		Pix:         p.Pix,
		Approval:    p.Approval,
		Metadata:    p.Metadata,
	}
	if showDelivery {
		resp.Delivery = p.Delivery
	}
	return resp
}

func newPaymentList(payments []model.Payment, showDelivery bool) []paymentResponse {
	resp := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, newPaymentResponse(&payments[i], showDelivery))
	}
	return resp
}

type productResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Price       decimal.Decimal   `json:"price"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details"`
	Available   bool              `json:"available"`
	Sold        bool              `json:"sold"`
	Views       int64             `json:"views"`
	Origin      string            `json:"origin"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// newProductResponse скрывает учётные данные аккаунта, если full не задан.
func newProductResponse(p *model.Product, full bool) productResponse {
	details := p.PublicDetails()
	if full {
		details = p.Details
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Type:        p.Type,
		Price:       p.Price,
		Description: p.Description,
		Details:     details,
		Available:   p.Available,
		Sold:        p.Sold,
		Views:       p.Views,
		Origin:      string(p.Origin),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

type pointTransactionResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
}

type loyaltyResponse struct {
	UserID        string                     `json:"user_id"`
	Balance       int64                      `json:"balance"`
	LifetimeTotal int64                      `json:"lifetime_total"`
	Tier          int                        `json:"tier"`
	MoneyValue    decimal.Decimal            `json:"money_value"`
	Transactions  []pointTransactionResponse `json:"transactions"`
}

func newLoyaltyResponse(s *model.LoyaltySnapshot) loyaltyResponse {
	txs := make([]pointTransactionResponse, 0, len(s.Transactions))
	for _, t := range s.Transactions {
		item := pointTransactionResponse{
			ID:        t.ID,
			Amount:    t.Amount,
			Reason:    t.Reason,
			Status:    string(t.Status),
			CreatedAt: t.CreatedAt.Format(time.RFC3339),
			PaymentID: t.PaymentID,
			ProductID: t.ProductID,
		}
		if t.ExpiresAt != nil {
			item.ExpiresAt = t.ExpiresAt.Format(time.RFC3339)
		}
		txs = append(txs, item)
	}
	return loyaltyResponse{
		UserID:        s.UserID,
		Balance:       s.Balance,
		LifetimeTotal: s.LifetimeTotal,
		Tier:          s.Tier,
		MoneyValue:    s.MoneyValue,
		Transactions:  txs,
	}
}

type activityResponse struct {
	Type      string            `json:"type"`
	ProductID string            `json:"product_id,omitempty"`
	PaymentID string            `json:"payment_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type userResponse struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Preferences model.Preferences `json:"preferences"`
	Blocked     bool              `json:"blocked"`
	BlockReason string            `json:"block_reason,omitempty"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Preferences: u.Preferences,
		Blocked:     u.Blocked,
		BlockReason: u.BlockReason,
	}
}

type auditResponse struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	Category  string            `json:"category"`
	Severity  string            `json:"severity"`
	Status    string            `json:"status"`
	ActorID   string            `json:"actor_id,omitempty"`
	TargetID  string            `json:"target_id,omitempty"`
	ProductID string            `json:"product_id,omitempty"`
	PaymentID string            `json:"payment_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type recommendationResponse struct {
	Product productResponse `json:"product"`
	Score   float64         `json:"score"`
}
