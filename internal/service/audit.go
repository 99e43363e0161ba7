package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/metrics"
	"github.com/mmeshcher/gamestore/internal/model"
)

const defaultAuditRetention = 30 * 24 * time.Hour

// AuditConfig задаёт срок хранения записей по уровню важности.
type AuditConfig struct {
	Retention map[model.AuditSeverity]time.Duration
}

// AuditLog ведёт журнал аудита. Запись в журнал никогда не прерывает вызывающую операцию.
type AuditLog struct {
	store   AuditStore
	cfg     AuditConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewAuditLog создаёт журнал аудита поверх хранилища store.
func NewAuditLog(store AuditStore, cfg AuditConfig, logger *zap.Logger, m *metrics.Metrics) *AuditLog {
	return &AuditLog{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// RetentionFor возвращает срок хранения для уровня важности.
func (a *AuditLog) RetentionFor(s model.AuditSeverity) time.Duration {
	if d, ok := a.cfg.Retention[s]; ok && d > 0 {
		return d
	}
	return defaultAuditRetention
}

// Record сохраняет запись. При сбое хранилища возвращается минимальная запись
// без идентификатора, а ошибка только логируется.
func (a *AuditLog) Record(ctx context.Context, e model.AuditEntry) *model.AuditEntry {
	if e.Severity == "" {
		e.Severity = model.AuditSeverityInfo
	}
	if e.Status == "" {
		e.Status = model.AuditStatusSuccess
	}
	if e.Category == "" {
		e.Category = model.AuditCategorySystem
	}
	e.ID = newID()
	e.CreatedAt = a.now()
	e.ExpiresAt = e.CreatedAt.Add(a.RetentionFor(e.Severity))

	if a.store == nil {
		return &e
	}

	if err := a.store.AppendAudit(ctx, &e); err != nil {
		a.metrics.AuditFailure()
		a.logger.Warn("audit append failed",
			zap.String("action", e.Action),
			zap.String("payment_id", e.PaymentID),
			zap.Error(err),
		)
		return &model.AuditEntry{
			Action:    e.Action,
			Category:  e.Category,
			Severity:  e.Severity,
			Status:    e.Status,
			CreatedAt: e.CreatedAt,
			ExpiresAt: e.ExpiresAt,
		}
	}
	return &e
}

// List возвращает записи журнала по фильтру.
func (a *AuditLog) List(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	entries, err := a.store.ListAudit(ctx, f)
	if err != nil {
		return nil, storeFailure(a.logger, "list audit entries", err)
	}
	return entries, nil
}

// PurgeExpired удаляет записи с истёкшим сроком хранения.
func (a *AuditLog) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := a.store.DeleteExpiredAudit(ctx, a.now())
	if err != nil {
		return 0, apperr.Unavailable(err)
	}
	if n > 0 {
		a.logger.Info("expired audit entries purged", zap.Int64("count", n))
	}
	return n, nil
}
