package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/model"
)

// ActivityLimit задаёт, сколько последних действий хранится для пользователя.
const ActivityLimit = 100

// UserDirectory управляет профилями покупателей и журналом их действий.
type UserDirectory struct {
	store  UserStore
	audit  *AuditLog
	logger *zap.Logger
	now    func() time.Time
}

// NewUserDirectory создаёт справочник пользователей.
func NewUserDirectory(store UserStore, audit *AuditLog, logger *zap.Logger) *UserDirectory {
	return &UserDirectory{
		store:  store,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// Touch создаёт профиль при первом обращении и обновляет имя и время последнего визита.
func (d *UserDirectory) Touch(ctx context.Context, id, displayName string) (*model.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.New(apperr.KindValidation, "user id is required")
	}

	now := d.now()
	u, err := d.store.GetUser(ctx, id)
	if err != nil {
		if !isNotFound(err) {
			return nil, storeFailure(d.logger, "get user", err)
		}
		u = &model.User{ID: id, CreatedAt: now}
	}

	if displayName != "" {
		u.DisplayName = displayName
	}
	u.LastSeenAt = now

	if err := d.store.UpsertUser(ctx, u); err != nil {
		return nil, storeFailure(d.logger, "upsert user", err)
	}
	return u, nil
}

// Get возвращает профиль пользователя.
func (d *UserDirectory) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := d.store.GetUser(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Newf(apperr.KindNotFound, "user %s not found", id)
		}
		return nil, storeFailure(d.logger, "get user", err)
	}
	return u, nil
}

// SetPreferences сохраняет пожелания пользователя.
func (d *UserDirectory) SetPreferences(ctx context.Context, id string, prefs model.Preferences) (*model.User, error) {
	if prefs.MaxPrice != nil && prefs.MaxPrice.IsNegative() {
		return nil, apperr.New(apperr.KindValidation, "max price must not be negative")
	}

	u, err := d.Touch(ctx, id, "")
	if err != nil {
		return nil, err
	}

	u.Preferences = prefs
	if err := d.store.UpsertUser(ctx, u); err != nil {
		return nil, storeFailure(d.logger, "save preferences", err)
	}
	return u, nil
}

// IsBlocked сообщает, заблокирован ли пользователь. Неизвестный пользователь не заблокирован.
func (d *UserDirectory) IsBlocked(ctx context.Context, id string) (bool, error) {
	u, err := d.store.GetUser(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, storeFailure(d.logger, "get user", err)
	}
	return u.Blocked, nil
}

// Block запрещает пользователю оформлять покупки.
func (d *UserDirectory) Block(ctx context.Context, id, reason, adminID string) (*model.User, error) {
	return d.setBlocked(ctx, id, true, reason, adminID)
}

// Unblock снимает блокировку.
func (d *UserDirectory) Unblock(ctx context.Context, id, adminID string) (*model.User, error) {
	return d.setBlocked(ctx, id, false, "", adminID)
}

func (d *UserDirectory) setBlocked(ctx context.Context, id string, blocked bool, reason, adminID string) (*model.User, error) {
	u, err := d.Touch(ctx, id, "")
	if err != nil {
		return nil, err
	}

	u.Blocked = blocked
	u.BlockReason = reason
	if err := d.store.UpsertUser(ctx, u); err != nil {
		return nil, storeFailure(d.logger, "save block status", err)
	}

	action := model.ActionUserUnblocked
	severity := model.AuditSeverityInfo
	if blocked {
		action = model.ActionUserBlocked
		severity = model.AuditSeverityWarning
	}
	d.audit.Record(ctx, model.AuditEntry{
		Action:   action,
		Category: model.AuditCategoryUser,
		Severity: severity,
		ActorID:  adminID,
		TargetID: id,
		Details:  map[string]string{"reason": reason},
	})
	return u, nil
}

// RecordActivity добавляет действие в журнал пользователя. Сбой только логируется.
func (d *UserDirectory) RecordActivity(ctx context.Context, a model.Activity) {
	a.ID = newID()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = d.now()
	}
	if err := d.store.AppendActivity(ctx, &a, ActivityLimit); err != nil {
		d.logger.Warn("append activity failed",
			zap.String("user_id", a.UserID),
			zap.String("type", string(a.Type)),
			zap.Error(err),
		)
	}
}

// Activity возвращает последние действия пользователя.
func (d *UserDirectory) Activity(ctx context.Context, id string, limit int) ([]model.Activity, error) {
	if limit <= 0 || limit > ActivityLimit {
		limit = ActivityLimit
	}
	items, err := d.store.ListActivity(ctx, id, limit)
	if err != nil {
		return nil, storeFailure(d.logger, "list activity", err)
	}
	return items, nil
}
