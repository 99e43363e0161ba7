package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/gamestore/internal/model"
)

// AppendAudit добавляет запись в журнал аудита.
func (r *PostgresRepository) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	details, err := marshalJSON(e.Details)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, action, category, severity, status, created_at, actor_id, target_id,
			product_id, payment_id, details, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Action, string(e.Category), string(e.Severity), string(e.Status), e.CreatedAt, e.ActorID,
		e.TargetID, e.ProductID, e.PaymentID, details, e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAudit возвращает записи журнала, новые первыми.
func (r *PostgresRepository) ListAudit(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Since != nil {
		add("created_at >= $%d", *f.Since)
	}

	query := `SELECT id, action, category, severity, status, created_at, actor_id, target_id,
		product_id, payment_id, details, expires_at FROM audit_entries`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	defer rows.Close()

	var res []model.AuditEntry
	for rows.Next() {
		var (
			e                          model.AuditEntry
			category, severity, status string
			details                    []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &category, &severity, &status, &e.CreatedAt, &e.ActorID,
			&e.TargetID, &e.ProductID, &e.PaymentID, &details, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Category = model.AuditCategory(category)
		e.Severity = model.AuditSeverity(severity)
		e.Status = model.AuditStatus(status)
		if err := unmarshalJSON(details, &e.Details); err != nil {
			return nil, err
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteExpiredAudit удаляет записи с истёкшим сроком хранения.
func (r *PostgresRepository) DeleteExpiredAudit(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_entries WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
