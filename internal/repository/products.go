package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/gamestore/internal/model"
)

const productColumns = `id, name, type, price, description, details, available, sold, views,
	buyer_id, sold_at, origin, COALESCE(external_id, ''), created_at, updated_at`

// CreateProduct сохраняет новый товар.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	details, err := marshalJSON(p.Details)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO products (id, name, type, price, description, details, available, sold, views,
			buyer_id, sold_at, origin, external_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Name, p.Type, toCents(p.Price), p.Description, details, p.Available, p.Sold, p.Views,
		p.BuyerID, p.SoldAt, string(p.Origin), nullable(p.ExternalID), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: product %s", ErrDuplicate, p.ID)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// GetProductByExternalID возвращает товар, импортированный с маркетплейса.
func (r *PostgresRepository) GetProductByExternalID(ctx context.Context, externalID string) (*model.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE external_id = $1`, externalID)
	return scanProduct(row)
}

// UpdateProduct сохраняет изменяемые поля товара. Поля продажи меняются только через MarkProductSold.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p *model.Product) error {
	details, err := marshalJSON(p.Details)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE products
		 SET name = $2, type = $3, price = $4, description = $5, details = $6,
		     available = $7 AND NOT sold, origin = $8, external_id = $9, updated_at = $10
		 WHERE id = $1`,
		p.ID, p.Name, p.Type, toCents(p.Price), p.Description, details,
		p.Available, string(p.Origin), nullable(p.ExternalID), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementProductViews увеличивает счётчик просмотров.
func (r *PostgresRepository) IncrementProductViews(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

// MarkProductSold помечает товар проданным, только если он ещё доступен.
// Возвращает false, если товар уже продан или снят с продажи.
func (r *PostgresRepository) MarkProductSold(ctx context.Context, id, buyerID string, at time.Time) (bool, error) {
	var applied bool
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE products
			 SET sold = TRUE, available = FALSE, buyer_id = $2, sold_at = $3, updated_at = $3
			 WHERE id = $1 AND sold = FALSE AND available = TRUE`,
			id, buyerID, at,
		)
		if err != nil {
			return fmt.Errorf("mark product sold: %w", err)
		}
		applied = tag.RowsAffected() == 1
		return nil
	})
	return applied, err
}

// RevertProductSale возвращает товар в продажу, если он продан указанному покупателю.
func (r *PostgresRepository) RevertProductSale(ctx context.Context, id, buyerID string) (bool, error) {
	var applied bool
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE products
			 SET sold = FALSE, available = TRUE, buyer_id = '', sold_at = NULL, updated_at = now()
			 WHERE id = $1 AND sold = TRUE AND buyer_id = $2`,
			id, buyerID,
		)
		if err != nil {
			return fmt.Errorf("revert product sale: %w", err)
		}
		applied = tag.RowsAffected() == 1
		return nil
	})
	return applied, err
}

// FindProducts ищет товары по фильтру.
func (r *PostgresRepository) FindProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.MinPrice != nil {
		add("price >= $%d", toCents(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		add("price <= $%d", toCents(*f.MaxPrice))
	}
	if f.Available != nil {
		add("available = $%d", *f.Available)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+q+"%")
	}

	query := `SELECT ` + productColumns + ` FROM products`
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
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
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

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p       model.Product
		price   int64
		details []byte
		origin  string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Type, &price, &p.Description, &details, &p.Available, &p.Sold,
		&p.Views, &p.BuyerID, &p.SoldAt, &origin, &p.ExternalID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}

	p.Price = fromCents(price)
	p.Origin = model.ProductOrigin(origin)
	if err := unmarshalJSON(details, &p.Details); err != nil {
		return nil, err
	}
	return &p, nil
}
