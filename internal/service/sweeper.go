package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper периодически переводит просроченные платежи в EXPIRED, списывает
// просроченные баллы и чистит журнал аудита. Использует те же условные
// переходы, что и ленивая проверка при чтении.
type Sweeper struct {
	payments *PaymentLifecycle
	loyalty  *LoyaltyLedger
	audit    *AuditLog
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper создаёт фоновую очистку с периодом interval.
func NewSweeper(payments *PaymentLifecycle, loyalty *LoyaltyLedger, audit *AuditLog, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		payments: payments,
		loyalty:  loyalty,
		audit:    audit,
		interval: interval,
		logger:   logger,
	}
}

// Start запускает очистку в отдельной горутине до отмены ctx.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce выполняет один проход очистки.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if n, err := s.payments.SweepExpiredPayments(ctx); err != nil {
		s.logger.Warn("payment sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("payments expired", zap.Int("count", n))
	}

	if n, err := s.loyalty.SweepExpiredPoints(ctx); err != nil {
		s.logger.Warn("points sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("loyalty accounts swept", zap.Int("count", n))
	}

	if _, err := s.audit.PurgeExpired(ctx); err != nil {
		s.logger.Warn("audit purge failed", zap.Error(err))
	}
}
