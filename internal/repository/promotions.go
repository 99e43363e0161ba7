package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/gamestore/internal/model"
)

const promotionColumns = `id, title, description, type, discount, starts_at, ends_at, active,
	product_ids, categories, usage_limit, usage_count, code, created_by, created_at, updated_at`

// CreatePromotion сохраняет новую акцию.
func (r *PostgresRepository) CreatePromotion(ctx context.Context, p *model.Promotion) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO promotions (`+promotionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.Title, p.Description, p.Type, p.Discount, p.StartsAt, p.EndsAt, p.Active,
		nonNil(p.ProductIDs), nonNil(p.Categories), p.UsageLimit, p.UsageCount, p.Code, p.CreatedBy,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: promotion %s", ErrDuplicate, p.ID)
		}
		return fmt.Errorf("insert promotion: %w", err)
	}
	return nil
}

// GetPromotion возвращает акцию по идентификатору.
func (r *PostgresRepository) GetPromotion(ctx context.Context, id string) (*model.Promotion, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id)
	return scanPromotion(row)
}

// UpdatePromotion сохраняет изменённые условия акции. Счётчик использований не трогается.
func (r *PostgresRepository) UpdatePromotion(ctx context.Context, p *model.Promotion) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE promotions
		 SET title = $2, description = $3, type = $4, discount = $5, starts_at = $6, ends_at = $7,
		     active = $8, product_ids = $9, categories = $10, usage_limit = $11, code = $12, updated_at = $13
		 WHERE id = $1`,
		p.ID, p.Title, p.Description, p.Type, p.Discount, p.StartsAt, p.EndsAt, p.Active,
		nonNil(p.ProductIDs), nonNil(p.Categories), p.UsageLimit, p.Code, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActivePromotions возвращает действующие на момент now акции, первыми идут ближайшие к завершению.
func (r *PostgresRepository) ListActivePromotions(ctx context.Context, now time.Time) ([]model.Promotion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+promotionColumns+`
		 FROM promotions
		 WHERE active AND starts_at <= $1 AND ends_at > $1
		 ORDER BY ends_at, created_at, id`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("select promotions: %w", err)
	}
	defer rows.Close()

	var res []model.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
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

// EndPromotion досрочно завершает активную акцию. Возвращает false, если акция уже неактивна.
func (r *PostgresRepository) EndPromotion(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE promotions SET active = FALSE, ends_at = $2, updated_at = $2 WHERE id = $1 AND active`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("end promotion: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementPromotionUsage учитывает одно использование акции, не превышая лимит.
func (r *PostgresRepository) IncrementPromotionUsage(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE promotions SET usage_count = usage_count + 1
		 WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("increment promotion usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanPromotion(row pgx.Row) (*model.Promotion, error) {
	var p model.Promotion
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Type, &p.Discount, &p.StartsAt, &p.EndsAt,
		&p.Active, &p.ProductIDs, &p.Categories, &p.UsageLimit, &p.UsageCount, &p.Code, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan promotion: %w", err)
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
