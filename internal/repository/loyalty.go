package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/gamestore/internal/model"
)

// GetAccount возвращает бонусный счёт вместе с историей операций.
func (r *PostgresRepository) GetAccount(ctx context.Context, userID string) (*model.LoyaltyAccount, error) {
	var a model.LoyaltyAccount
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, display_name, balance, lifetime_total, tier, version, created_at, updated_at
		 FROM loyalty_accounts WHERE user_id = $1`,
		userID,
	).Scan(&a.UserID, &a.DisplayName, &a.Balance, &a.LifetimeTotal, &a.Tier, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, amount, reason, created_at, expires_at, status, product_id, payment_id, admin_id
		 FROM loyalty_transactions
		 WHERE user_id = $1
		 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select point transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tx     model.PointTransaction
			status string
		)
		if err := rows.Scan(&tx.ID, &tx.Amount, &tx.Reason, &tx.CreatedAt, &tx.ExpiresAt, &status,
			&tx.ProductID, &tx.PaymentID, &tx.AdminID); err != nil {
			return nil, fmt.Errorf("scan point transaction: %w", err)
		}
		tx.Status = model.PointStatus(status)
		a.Transactions = append(a.Transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &a, nil
}

// SaveAccount сохраняет счёт с проверкой версии. Новый счёт передаётся с Version = 0.
// При успехе версия счёта увеличивается; при параллельном изменении возвращается ErrVersionConflict.
func (r *PostgresRepository) SaveAccount(ctx context.Context, a *model.LoyaltyAccount) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if a.Version == 0 {
		tag, err := tx.Exec(ctx,
			`INSERT INTO loyalty_accounts (user_id, display_name, balance, lifetime_total, tier, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
			 ON CONFLICT (user_id) DO NOTHING`,
			a.UserID, a.DisplayName, a.Balance, a.LifetimeTotal, a.Tier, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	} else {
		tag, err := tx.Exec(ctx,
			`UPDATE loyalty_accounts
			 SET display_name = $2, balance = $3, lifetime_total = $4, tier = $5, version = version + 1, updated_at = $6
			 WHERE user_id = $1 AND version = $7`,
			a.UserID, a.DisplayName, a.Balance, a.LifetimeTotal, a.Tier, a.UpdatedAt, a.Version,
		)
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}

	batch := &pgx.Batch{}
	for _, t := range a.Transactions {
		batch.Queue(
			`INSERT INTO loyalty_transactions (id, user_id, amount, reason, created_at, expires_at, status, product_id, payment_id, admin_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
			t.ID, a.UserID, t.Amount, t.Reason, t.CreatedAt, t.ExpiresAt, string(t.Status), t.ProductID, t.PaymentID, t.AdminID,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert point transactions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	a.Version++
	return nil
}

// ListAccountsWithExpiredPoints возвращает пользователей, у которых есть просроченные активные баллы.
func (r *PostgresRepository) ListAccountsWithExpiredPoints(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id
		 FROM loyalty_transactions
		 WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
		 LIMIT $3`,
		string(model.PointStatusActive), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select expired points: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		res = append(res, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
