package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/gamestore/internal/model"
)

const paymentColumns = `id, buyer_id, buyer_name, product_id, product_name, amount, method, status,
	created_at, expires_at, pix, approval, delivery, metadata`

// CreatePayment сохраняет новый платёж.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *model.Payment) error {
	pix, approval, delivery, metadata, err := encodePaymentDocs(p)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.BuyerID, p.BuyerName, p.ProductID, p.ProductName, toCents(p.Amount), string(p.Method),
		string(p.Status), p.CreatedAt, p.ExpiresAt, pix, approval, delivery, metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: payment %s", ErrDuplicate, p.ID)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetPayment возвращает платёж по идентификатору.
func (r *PostgresRepository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// TransitionPayment записывает новое состояние платежа, только если текущий
// статус входит в from. Сумма и срок действия не перезаписываются.
func (r *PostgresRepository) TransitionPayment(ctx context.Context, next *model.Payment, from []model.PaymentStatus) (bool, error) {
	_, approval, delivery, _, err := encodePaymentDocs(next)
	if err != nil {
		return false, err
	}

	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}

	var applied bool
	err = r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE payments
			 SET status = $2, approval = $3, delivery = $4
			 WHERE id = $1 AND status = ANY($5)`,
			next.ID, string(next.Status), approval, delivery, statuses,
		)
		if err != nil {
			return fmt.Errorf("transition payment: %w", err)
		}
		applied = tag.RowsAffected() == 1
		return nil
	})
	return applied, err
}

// FindPayments возвращает платежи по фильтру, новые первыми.
func (r *PostgresRepository) FindPayments(ctx context.Context, f model.PaymentFilter) ([]model.Payment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.BuyerID != "" {
		add("buyer_id = $%d", f.BuyerID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		add("status = ANY($%d)", statuses)
	}
	if f.ExpiresAfter != nil {
		add("expires_at > $%d", *f.ExpiresAfter)
	}
	if f.ExpiresBefore != nil {
		add("expires_at < $%d", *f.ExpiresBefore)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
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
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func encodePaymentDocs(p *model.Payment) (pix, approval, delivery, metadata []byte, err error) {
	if pix, err = marshalJSON(p.Pix); err != nil {
		return
	}
	if approval, err = marshalJSON(p.Approval); err != nil {
		return
	}
	if p.Delivery != nil {
		if delivery, err = marshalJSON(p.Delivery); err != nil {
			return
		}
	}
	metadata, err = marshalJSON(p.Metadata)
	return
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p              model.Payment
		amount         int64
		method, status string
	)
	var pix, approval, delivery, metadata []byte
	err := row.Scan(&p.ID, &p.BuyerID, &p.BuyerName, &p.ProductID, &p.ProductName, &amount, &method,
		&status, &p.CreatedAt, &p.ExpiresAt, &pix, &approval, &delivery, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Amount = fromCents(amount)
	p.Method = model.PaymentMethod(method)
	p.Status = model.PaymentStatus(status)

	if err := unmarshalJSON(pix, &p.Pix); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(approval, &p.Approval); err != nil {
		return nil, err
	}
	if len(delivery) > 0 {
		p.Delivery = &model.DeliveryData{}
		if err := unmarshalJSON(delivery, p.Delivery); err != nil {
			return nil, err
		}
	}
	if err := unmarshalJSON(metadata, &p.Metadata); err != nil {
		return nil, err
	}
	return &p, nil
}
