package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/gamestore/internal/model"
)

// GetUser возвращает профиль пользователя.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	var (
		u     model.User
		prefs []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, display_name, preferences, blocked, block_reason, created_at, last_seen_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.DisplayName, &prefs, &u.Blocked, &u.BlockReason, &u.CreatedAt, &u.LastSeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := unmarshalJSON(prefs, &u.Preferences); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser создаёт или обновляет профиль пользователя.
func (r *PostgresRepository) UpsertUser(ctx context.Context, u *model.User) error {
	prefs, err := marshalJSON(u.Preferences)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (id, display_name, preferences, blocked, block_reason, created_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET display_name = EXCLUDED.display_name, preferences = EXCLUDED.preferences,
		     blocked = EXCLUDED.blocked, block_reason = EXCLUDED.block_reason, last_seen_at = EXCLUDED.last_seen_at`,
		u.ID, u.DisplayName, prefs, u.Blocked, u.BlockReason, u.CreatedAt, u.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// AppendActivity добавляет действие пользователя и оставляет только keep последних записей.
func (r *PostgresRepository) AppendActivity(ctx context.Context, a *model.Activity, keep int) error {
	details, err := marshalJSON(a.Details)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO user_activities (id, user_id, type, product_id, payment_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, string(a.Type), a.ProductID, a.PaymentID, details, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM user_activities
		 WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM user_activities WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		 )`,
		a.UserID, keep,
	)
	if err != nil {
		return fmt.Errorf("trim activities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListActivity возвращает последние действия пользователя, новые первыми.
func (r *PostgresRepository) ListActivity(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, product_id, payment_id, details, created_at
		 FROM user_activities
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select activities: %w", err)
	}
	defer rows.Close()

	var res []model.Activity
	for rows.Next() {
		var (
			a       model.Activity
			typ     string
			details []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &typ, &a.ProductID, &a.PaymentID, &details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Type = model.ActivityType(typ)
		if err := unmarshalJSON(details, &a.Details); err != nil {
			return nil, err
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
