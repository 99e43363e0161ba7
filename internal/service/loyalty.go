package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/metrics"
	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/repository"
)

const (
	saveAttempts      = 3
	expirySweepBatch  = 100
	defaultExpiryDays = 365
)

// LoyaltyConfig задаёт срок жизни баллов и их денежный эквивалент.
type LoyaltyConfig struct {
	ExpirationDays int
	ConversionRate decimal.Decimal
}

// LoyaltyLedger ведёт бонусные счета покупателей.
type LoyaltyLedger struct {
	store   LoyaltyStore
	audit   *AuditLog
	metrics *metrics.Metrics
	cfg     LoyaltyConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewLoyaltyLedger создаёт бонусную программу.
func NewLoyaltyLedger(store LoyaltyStore, audit *AuditLog, m *metrics.Metrics, cfg LoyaltyConfig, logger *zap.Logger) *LoyaltyLedger {
	if cfg.ExpirationDays <= 0 {
		cfg.ExpirationDays = defaultExpiryDays
	}
	return &LoyaltyLedger{
		store:   store,
		audit:   audit,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// TierFor возвращает уровень программы по сумме когда-либо начисленных баллов.
func TierFor(lifetime int64) int {
	switch {
	case lifetime >= 10000:
		return 5
	case lifetime >= 5000:
		return 4
	case lifetime >= 2000:
		return 3
	case lifetime >= 500:
		return 2
	default:
		return 1
	}
}

// MaterializeExpiry переводит просроченные на момент now начисления в EXPIRED
// и добавляет для каждого компенсирующее списание. Списывается не больше
// текущего баланса. Повторный вызов ничего не меняет. Возвращает сумму списания.
func MaterializeExpiry(acc *model.LoyaltyAccount, now time.Time, newID func() string) int64 {
	var (
		total        int64
		compensating []model.PointTransaction
	)
	for i := range acc.Transactions {
		t := &acc.Transactions[i]
		if t.Status != model.PointStatusActive || t.Amount <= 0 || t.ExpiresAt == nil || t.ExpiresAt.After(now) {
			continue
		}
		t.Status = model.PointStatusExpired

		amount := min(t.Amount, acc.Balance)
		if amount <= 0 {
			continue
		}
		acc.Balance -= amount
		total += amount
		compensating = append(compensating, model.PointTransaction{
			ID:        newID(),
			Amount:    -amount,
			Reason:    model.PointReasonExpired,
			CreatedAt: now,
			Status:    model.PointStatusUsed,
			ProductID: t.ProductID,
			PaymentID: t.PaymentID,
		})
	}
	acc.Transactions = append(acc.Transactions, compensating...)
	return total
}

// AddPoints начисляет баллы. Повторное начисление по тому же платежу игнорируется.
func (l *LoyaltyLedger) AddPoints(ctx context.Context, userID string, amount int64, reason string, meta model.PointMetadata) (*model.LoyaltySnapshot, error) {
	if amount <= 0 {
		return nil, apperr.New(apperr.KindValidation, "points amount must be positive")
	}

	var duplicate bool
	acc, err := l.mutate(ctx, userID, true, func(acc *model.LoyaltyAccount, now time.Time) (bool, error) {
		if meta.PaymentID != "" && hasEarnFor(acc, meta.PaymentID) {
			duplicate = true
			return false, nil
		}
		expires := now.AddDate(0, 0, l.cfg.ExpirationDays)
		acc.Transactions = append(acc.Transactions, model.PointTransaction{
			ID:        newID(),
			Amount:    amount,
			Reason:    reason,
			CreatedAt: now,
			ExpiresAt: &expires,
			Status:    model.PointStatusActive,
			ProductID: meta.ProductID,
			PaymentID: meta.PaymentID,
			AdminID:   meta.AdminID,
		})
		acc.Balance += amount
		acc.LifetimeTotal += amount
		acc.Tier = TierFor(acc.LifetimeTotal)
		if meta.DisplayName != "" {
			acc.DisplayName = meta.DisplayName
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		l.logger.Info("points already credited for payment",
			zap.String("user_id", userID), zap.String("payment_id", meta.PaymentID))
		return l.snapshot(acc), nil
	}

	l.metrics.LoyaltyPoints("add", amount)
	l.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionPointsAdded,
		Category:  model.AuditCategoryLoyalty,
		ActorID:   meta.AdminID,
		TargetID:  userID,
		ProductID: meta.ProductID,
		PaymentID: meta.PaymentID,
		Details: map[string]string{
			"amount":  strconv.FormatInt(amount, 10),
			"reason":  reason,
			"balance": strconv.FormatInt(acc.Balance, 10),
		},
	})
	return l.snapshot(acc), nil
}

// UsePoints списывает баллы. При нехватке возвращается *apperr.InsufficientBalanceError.
func (l *LoyaltyLedger) UsePoints(ctx context.Context, userID string, amount int64, reason string, meta model.PointMetadata) (*model.LoyaltySnapshot, error) {
	if amount <= 0 {
		return nil, apperr.New(apperr.KindValidation, "points amount must be positive")
	}

	acc, err := l.mutate(ctx, userID, false, func(acc *model.LoyaltyAccount, now time.Time) (bool, error) {
		if acc.Balance < amount {
			return false, &apperr.InsufficientBalanceError{Current: acc.Balance, Requested: amount}
		}
		acc.Transactions = append(acc.Transactions, model.PointTransaction{
			ID:        newID(),
			Amount:    -amount,
			Reason:    reason,
			CreatedAt: now,
			Status:    model.PointStatusUsed,
			ProductID: meta.ProductID,
			PaymentID: meta.PaymentID,
			AdminID:   meta.AdminID,
		})
		acc.Balance -= amount
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.LoyaltyPoints("use", amount)
	l.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionPointsUsed,
		Category:  model.AuditCategoryLoyalty,
		ActorID:   meta.AdminID,
		TargetID:  userID,
		ProductID: meta.ProductID,
		PaymentID: meta.PaymentID,
		Details: map[string]string{
			"amount":  strconv.FormatInt(amount, 10),
			"reason":  reason,
			"balance": strconv.FormatInt(acc.Balance, 10),
		},
	})
	return l.snapshot(acc), nil
}

// GetBalance возвращает состояние счёта, предварительно списав просроченные баллы.
// Для пользователя без счёта возвращается пустой снимок первого уровня.
func (l *LoyaltyLedger) GetBalance(ctx context.Context, userID string) (*model.LoyaltySnapshot, error) {
	acc, err := l.mutate(ctx, userID, false, func(*model.LoyaltyAccount, time.Time) (bool, error) {
		return false, nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNoAccount) {
			return &model.LoyaltySnapshot{UserID: userID, Tier: 1, MoneyValue: decimal.Zero}, nil
		}
		return nil, err
	}
	return l.snapshot(acc), nil
}

// SweepExpiredPoints списывает просроченные баллы на всех счетах, где они есть.
// Возвращает число обработанных счетов.
func (l *LoyaltyLedger) SweepExpiredPoints(ctx context.Context) (int, error) {
	ids, err := l.store.ListAccountsWithExpiredPoints(ctx, l.now(), expirySweepBatch)
	if err != nil {
		return 0, storeFailure(l.logger, "list accounts with expired points", err)
	}

	swept := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return swept, ctx.Err()
		}
		_, err := l.mutate(ctx, id, false, func(*model.LoyaltyAccount, time.Time) (bool, error) {
			return false, nil
		})
		if err != nil {
			l.logger.Warn("points expiry sweep failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		swept++
	}
	return swept, nil
}

// mutate читает счёт, списывает просроченные баллы, применяет fn и сохраняет
// результат с проверкой версии, повторяя попытку при конфликте.
func (l *LoyaltyLedger) mutate(ctx context.Context, userID string, create bool, fn func(*model.LoyaltyAccount, time.Time) (bool, error)) (*model.LoyaltyAccount, error) {
	for attempt := 1; ; attempt++ {
		now := l.now()

		acc, err := l.store.GetAccount(ctx, userID)
		if err != nil {
			if !isNotFound(err) {
				return nil, storeFailure(l.logger, "get loyalty account", err)
			}
			if !create {
				return nil, apperr.Newf(apperr.KindNoAccount, "user %s has no loyalty account", userID)
			}
			acc = &model.LoyaltyAccount{UserID: userID, Tier: 1, CreatedAt: now}
		}

		expired := MaterializeExpiry(acc, now, newID)
		changed, err := fn(acc, now)
		if err != nil {
			return nil, err
		}
		if !changed && expired == 0 {
			return acc, nil
		}

		acc.UpdatedAt = now
		err = l.store.SaveAccount(ctx, acc)
		if err == nil {
			if expired > 0 {
				l.recordExpiry(ctx, userID, expired)
			}
			return acc, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, storeFailure(l.logger, "save loyalty account", err)
		}
		if attempt >= saveAttempts {
			l.logger.Warn("loyalty account update kept conflicting", zap.String("user_id", userID))
			return nil, apperr.Unavailable(err)
		}
	}
}

func (l *LoyaltyLedger) recordExpiry(ctx context.Context, userID string, amount int64) {
	l.metrics.LoyaltyPoints("expire", amount)
	l.audit.Record(ctx, model.AuditEntry{
		Action:   model.ActionPointsExpired,
		Category: model.AuditCategoryLoyalty,
		TargetID: userID,
		Details:  map[string]string{"amount": strconv.FormatInt(amount, 10)},
	})
}

func (l *LoyaltyLedger) snapshot(acc *model.LoyaltyAccount) *model.LoyaltySnapshot {
	txns := append([]model.PointTransaction(nil), acc.Transactions...)
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
	return &model.LoyaltySnapshot{
		UserID:        acc.UserID,
		Balance:       acc.Balance,
		LifetimeTotal: acc.LifetimeTotal,
		Tier:          TierFor(acc.LifetimeTotal),
		Transactions:  txns,
		MoneyValue:    decimal.NewFromInt(acc.Balance).Mul(l.cfg.ConversionRate).Round(2),
	}
}

func hasEarnFor(acc *model.LoyaltyAccount, paymentID string) bool {
	for _, t := range acc.Transactions {
		if t.PaymentID == paymentID && t.Amount > 0 {
			return true
		}
	}
	return false
}
