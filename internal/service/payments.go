package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/metrics"
	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/notify"
	"github.com/mmeshcher/gamestore/internal/pix"
)

const (
	defaultPaymentTTL   = 30 * time.Minute
	paymentSweepBatch   = 500
	pendingListLimit    = 100
	reasonUnavailable   = "product unavailable"
	reasonAdminRejected = "rejected by administrator"
	reasonBankRejected  = "transfer was not confirmed by the bank"
)

// PaymentConfig задаёт срок жизни платежа и реквизиты получателя PIX.
type PaymentConfig struct {
	TTL      time.Duration
	Merchant pix.Merchant
}

// PaymentDeps собирает зависимости жизненного цикла платежа.
type PaymentDeps struct {
	Payments   PaymentStore
	Catalog    *Catalog
	Promotions *PromotionEngine
	Loyalty    *LoyaltyLedger
	Users      *UserDirectory
	Audit      *AuditLog
	Notifier   Notifier
	Renderer   CodeRenderer
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// PaymentLifecycle ведёт платёж от создания до одного из конечных статусов.
// Все переходы выполняются условным обновлением по текущему статусу, поэтому
// параллельные вызовы и фоновая очистка не могут применить переход дважды.
type PaymentLifecycle struct {
	store      PaymentStore
	catalog    *Catalog
	promotions *PromotionEngine
	loyalty    *LoyaltyLedger
	users      *UserDirectory
	audit      *AuditLog
	notifier   Notifier
	renderer   CodeRenderer
	metrics    *metrics.Metrics
	cfg        PaymentConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewPaymentLifecycle создаёт сервис платежей.
func NewPaymentLifecycle(deps PaymentDeps, cfg PaymentConfig) *PaymentLifecycle {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultPaymentTTL
	}
	return &PaymentLifecycle{
		store:      deps.Payments,
		catalog:    deps.Catalog,
		promotions: deps.Promotions,
		loyalty:    deps.Loyalty,
		users:      deps.Users,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		renderer:   deps.Renderer,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// CreatePayment оформляет покупку товара по цене с учётом лучшей акции.
func (s *PaymentLifecycle) CreatePayment(ctx context.Context, buyerID, buyerName, productID, promoCode string) (*model.Payment, error) {
	product, err := s.checkout(ctx, buyerID, productID)
	if err != nil {
		return nil, err
	}

	quote, err := s.promotions.ResolvePriceWithCode(ctx, product.ID, product.Price, product.Type, promoCode)
	if err != nil {
		return nil, err
	}

	meta := model.PaymentMetadata{OriginalPrice: quote.OriginalPrice, DiscountPercentage: quote.DiscountPercentage}
	if quote.Promotion != nil {
		meta.PromotionID = quote.Promotion.ID
	}
	return s.create(ctx, buyerID, buyerName, product, quote.DiscountedPrice, meta)
}

// CreatePaymentWithAmount оформляет покупку по заранее рассчитанной сумме.
func (s *PaymentLifecycle) CreatePaymentWithAmount(ctx context.Context, buyerID, buyerName, productID string, amount decimal.Decimal) (*model.Payment, error) {
	if amount.IsNegative() {
		return nil, apperr.New(apperr.KindValidation, "amount must not be negative")
	}

	product, err := s.checkout(ctx, buyerID, productID)
	if err != nil {
		return nil, err
	}

	meta := model.PaymentMetadata{OriginalPrice: product.Price}
	return s.create(ctx, buyerID, buyerName, product, amount.Round(2), meta)
}

func (s *PaymentLifecycle) checkout(ctx context.Context, buyerID, productID string) (*model.Product, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, apperr.New(apperr.KindValidation, "buyer id is required")
	}

	blocked, err := s.users.IsBlocked(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperr.New(apperr.KindForbidden, "you are not allowed to make purchases")
	}

	product, err := s.catalog.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsPurchasable() {
		return nil, apperr.New(apperr.KindInvalidState, "product is not available")
	}
	return product, nil
}

func (s *PaymentLifecycle) create(ctx context.Context, buyerID, buyerName string, product *model.Product, amount decimal.Decimal, meta model.PaymentMetadata) (*model.Payment, error) {
	now := s.now()
	txid := newTxID()

	p := &model.Payment{
		ID:          newID(),
		BuyerID:     buyerID,
		BuyerName:   buyerName,
		ProductID:   product.ID,
		ProductName: product.Name,
		Amount:      amount,
		Method:      model.PaymentMethodPix,
		Status:      model.PaymentStatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.TTL),
		Pix:         s.pixDetails(amount, txid),
		Metadata:    meta,
	}

	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, storeFailure(s.logger, "create payment", err)
	}

	s.metrics.PaymentTransition(string(p.Status))
	s.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionPaymentCreated,
		Category:  model.AuditCategoryPayment,
		ActorID:   buyerID,
		ProductID: product.ID,
		PaymentID: p.ID,
		Details: map[string]string{
			"amount":   p.Amount.StringFixed(2),
			"discount": strconv.Itoa(meta.DiscountPercentage),
		},
	})
	s.users.RecordActivity(ctx, model.Activity{
		UserID:    buyerID,
		Type:      model.ActivityPaymentCreated,
		ProductID: product.ID,
		PaymentID: p.ID,
		Details:   map[string]string{"type": product.Type, "amount": p.Amount.StringFixed(2)},
	})
	s.notify(ctx, notify.EventPaymentCreated, p)
	return p, nil
}

// pixDetails строит код «копировать и вставить» и QR-код. Сбои не мешают
// созданию платежа: вместо кода остаётся идентификатор транзакции, вместо QR ставится заглушка.
func (s *PaymentLifecycle) pixDetails(amount decimal.Decimal, txid string) model.PixDetails {
	d := model.PixDetails{TxID: txid, Code: txid, QRCode: pix.PlaceholderQR}

	code, err := pix.BuildPayload(s.cfg.Merchant, amount, txid)
	if err != nil {
		s.logger.Warn("pix code is unavailable", zap.String("txid", txid), zap.Error(err))
		return d
	}
	d.Code = code

	if s.renderer == nil {
		return d
	}
	qr, err := s.renderer.Render(code)
	if err != nil {
		s.logger.Warn("qr rendering failed", zap.String("txid", txid), zap.Error(err))
		return d
	}
	d.QRCode = qr
	return d
}

// CheckStatus возвращает платёж, переводя просроченный в EXPIRED.
func (s *PaymentLifecycle) CheckStatus(ctx context.Context, id string) (*model.Payment, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	p, _, err = s.expireIfOverdue(ctx, p)
	return p, err
}

// Cancel отменяет платёж по просьбе покупателя.
func (s *PaymentLifecycle) Cancel(ctx context.Context, id, requesterID string) (*model.Payment, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.BuyerID != requesterID {
		return nil, apperr.New(apperr.KindForbidden, "only the buyer can cancel this payment")
	}
	if p, _, err = s.expireIfOverdue(ctx, p); err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, invalidState(p)
	}

	now := s.now()
	next := p.Clone()
	next.Status = model.PaymentStatusCancelled
	next.Approval.CancelledAt = &now

	if err := s.transition(ctx, next, model.OpenPaymentStatuses...); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionPaymentCancelled,
		Category:  model.AuditCategoryPayment,
		ActorID:   requesterID,
		ProductID: next.ProductID,
		PaymentID: next.ID,
	})
	s.users.RecordActivity(ctx, model.Activity{
		UserID:    next.BuyerID,
		Type:      model.ActivityPaymentCancelled,
		ProductID: next.ProductID,
		PaymentID: next.ID,
	})
	s.notify(ctx, notify.EventPaymentCancelled, next)
	return next, nil
}

// ConfirmFromGateway фиксирует ответ банка по ожидающему платежу.
// Подтверждённый платёж ждёт одобрения администратора в статусе PROCESSING.
func (s *PaymentLifecycle) ConfirmFromGateway(ctx context.Context, id string, res model.GatewayResult) (*model.Payment, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _, err = s.expireIfOverdue(ctx, p); err != nil {
		return nil, err
	}
	if p.Status != model.PaymentStatusPending {
		return nil, invalidState(p)
	}

	now := s.now()
	next := p.Clone()
	action := model.ActionPaymentBankConfirmed
	severity := model.AuditSeverityInfo
	details := map[string]string{}
	if res.Success {
		next.Status = model.PaymentStatusProcessing
		next.Approval.ProcessedAt = &now
	} else {
		reason := res.Reason
		if reason == "" {
			reason = reasonBankRejected
		}
		next.Status = model.PaymentStatusRejected
		next.Approval.RejectedAt = &now
		next.Approval.RejectionReason = reason
		action = model.ActionPaymentBankRejected
		severity = model.AuditSeverityWarning
		details["reason"] = reason
	}

	if err := s.transition(ctx, next, model.PaymentStatusPending); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:    action,
		Category:  model.AuditCategoryPayment,
		Severity:  severity,
		ProductID: next.ProductID,
		PaymentID: next.ID,
		Details:   details,
	})
	if !res.Success {
		s.users.RecordActivity(ctx, model.Activity{
			UserID:    next.BuyerID,
			Type:      model.ActivityPaymentRejected,
			ProductID: next.ProductID,
			PaymentID: next.ID,
			Details:   details,
		})
		s.notify(ctx, notify.EventPaymentRejected, next)
	}
	return next, nil
}

// Approve одобряет оплату: выдаёт покупателю данные аккаунта, помечает товар
// проданным и начисляет баллы. Если товар продать нельзя, платёж отклоняется
// и возвращается ошибка вида AlreadySold. Если один из шагов не удался после
// перевода платежа в COMPLETED, выполненные шаги откатываются.
func (s *PaymentLifecycle) Approve(ctx context.Context, id, adminID string) (*model.Payment, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _, err = s.expireIfOverdue(ctx, p); err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, invalidState(p)
	}

	product, err := s.catalog.load(ctx, p.ProductID)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	if product == nil || !product.IsPurchasable() {
		return s.rejectUnavailable(ctx, p, adminID)
	}

	now := s.now()
	prev := p.Clone()
	next := p.Clone()
	next.Status = model.PaymentStatusCompleted
	next.Approval.AdminID = adminID
	next.Approval.CompletedAt = &now
	next.Delivery = &model.DeliveryData{
		Credentials:  deliveryCredentials(product),
		DeliveryCode: newDeliveryCode(),
		DeliveredAt:  now,
	}

	if err := s.transition(ctx, next, model.OpenPaymentStatuses...); err != nil {
		return nil, err
	}

	sold, err := s.catalog.markSold(ctx, product.ID, p.BuyerID, now)
	if err != nil {
		s.restore(ctx, prev, "mark sold failed")
		return nil, storeFailure(s.logger, "mark product sold", err)
	}
	if !sold {
		s.restore(ctx, prev, "product sold concurrently")
		_, rerr := s.rejectUnavailable(ctx, prev, adminID)
		return nil, rerr
	}

	points := next.Amount.Floor().IntPart()
	if points > 0 {
		_, err := s.loyalty.AddPoints(ctx, p.BuyerID, points, model.PointReasonPurchase, model.PointMetadata{
			DisplayName: p.BuyerName,
			ProductID:   p.ProductID,
			PaymentID:   p.ID,
		})
		if err != nil {
			s.rollbackSale(ctx, prev, adminID, err)
			return nil, err
		}
	}

	s.users.RecordActivity(ctx, model.Activity{
		UserID:    next.BuyerID,
		Type:      model.ActivityProductPurchase,
		ProductID: next.ProductID,
		PaymentID: next.ID,
		Details:   map[string]string{"type": product.Type, "amount": next.Amount.StringFixed(2)},
	})
	if next.Metadata.PromotionID != "" {
		if err := s.promotions.RecordUsage(ctx, next.Metadata.PromotionID); err != nil {
			s.logger.Warn("promotion usage not recorded",
				zap.String("promotion_id", next.Metadata.PromotionID), zap.Error(err))
		}
	}
	s.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionPaymentApproved,
		Category:  model.AuditCategoryPayment,
		ActorID:   adminID,
		TargetID:  next.BuyerID,
		ProductID: next.ProductID,
		PaymentID: next.ID,
		Details: map[string]string{
			"amount": next.Amount.StringFixed(2),
			"points": strconv.FormatInt(points, 10),
		},
	})
	s.notify(ctx, notify.EventPaymentCompleted, next)
	return next, nil
}

// Reject отклоняет платёж. Товар при этом остаётся в продаже.
func (s *PaymentLifecycle) Reject(ctx context.Context, id, reason, adminID string) (*model.Payment, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _, err = s.expireIfOverdue(ctx, p); err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, invalidState(p)
	}
	if strings.TrimSpace(reason) == "" {
		reason = reasonAdminRejected
	}

	return s.reject(ctx, p, reason, adminID)
}

// ListPendingApprovals возвращает непросроченные платежи, ожидающие решения, новые первыми.
func (s *PaymentLifecycle) ListPendingApprovals(ctx context.Context) ([]model.Payment, error) {
	now := s.now()
	payments, err := s.store.FindPayments(ctx, model.PaymentFilter{
		Statuses:     model.OpenPaymentStatuses,
		ExpiresAfter: &now,
		Limit:        pendingListLimit,
	})
	if err != nil {
		return nil, storeFailure(s.logger, "list pending payments", err)
	}
	sortNewestFirst(payments)
	return payments, nil
}

// ListUserPayments возвращает историю платежей покупателя, новые первыми.
func (s *PaymentLifecycle) ListUserPayments(ctx context.Context, buyerID string, limit int) ([]model.Payment, error) {
	if limit <= 0 || limit > pendingListLimit {
		limit = pendingListLimit
	}
	payments, err := s.store.FindPayments(ctx, model.PaymentFilter{BuyerID: buyerID, Limit: limit})
	if err != nil {
		return nil, storeFailure(s.logger, "list user payments", err)
	}

	for i := range payments {
		if !payments[i].IsOverdue(s.now()) {
			continue
		}
		p, _, err := s.expireIfOverdue(ctx, &payments[i])
		if err != nil {
			return nil, err
		}
		payments[i] = *p
	}
	sortNewestFirst(payments)
	return payments, nil
}

// SweepExpiredPayments переводит в EXPIRED все просроченные ожидающие платежи.
// Возвращает число платежей, переведённых этим вызовом.
func (s *PaymentLifecycle) SweepExpiredPayments(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.store.FindPayments(ctx, model.PaymentFilter{
		Statuses:      []model.PaymentStatus{model.PaymentStatusPending},
		ExpiresBefore: &now,
		Limit:         paymentSweepBatch,
	})
	if err != nil {
		return 0, storeFailure(s.logger, "find overdue payments", err)
	}

	expired := 0
	for i := range overdue {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		_, applied, err := s.expireIfOverdue(ctx, &overdue[i])
		if err != nil {
			s.logger.Warn("payment expiry failed", zap.String("payment_id", overdue[i].ID), zap.Error(err))
			continue
		}
		if applied {
			expired++
		}
	}
	return expired, nil
}

func (s *PaymentLifecycle) load(ctx context.Context, id string) (*model.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Newf(apperr.KindNotFound, "payment %s not found", id)
		}
		return nil, storeFailure(s.logger, "get payment", err)
	}
	return p, nil
}

// expireIfOverdue переводит просроченный ожидающий платёж в EXPIRED. Этим же
// переходом пользуется фоновая очистка. Если платёж успели изменить
// параллельно, возвращается его актуальное состояние.
func (s *PaymentLifecycle) expireIfOverdue(ctx context.Context, p *model.Payment) (*model.Payment, bool, error) {
	now := s.now()
	if !p.IsOverdue(now) {
		return p, false, nil
	}

	next := p.Clone()
	next.Status = model.PaymentStatusExpired
	next.Approval.ExpiredAt = &now

	applied, err := s.store.TransitionPayment(ctx, next, []model.PaymentStatus{model.PaymentStatusPending})
	if err != nil {
		return nil, false, storeFailure(s.logger, "expire payment", err)
	}
	if !applied {
		current, err := s.load(ctx, p.ID)
		return current, false, err
	}

	s.metrics.PaymentTransition(string(next.Status))
	s.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionPaymentExpired,
		Category:  model.AuditCategoryPayment,
		ProductID: next.ProductID,
		PaymentID: next.ID,
	})
	s.notify(ctx, notify.EventPaymentExpired, next)
	return next, true, nil
}

// transition применяет переход, только если текущий статус входит в from.
func (s *PaymentLifecycle) transition(ctx context.Context, next *model.Payment, from ...model.PaymentStatus) error {
	applied, err := s.store.TransitionPayment(ctx, next, from)
	if err != nil {
		return storeFailure(s.logger, "transition payment", err)
	}
	if !applied {
		return apperr.New(apperr.KindInvalidState, "payment has already been processed")
	}
	s.metrics.PaymentTransition(string(next.Status))
	return nil
}

func (s *PaymentLifecycle) reject(ctx context.Context, p *model.Payment, reason, adminID string) (*model.Payment, error) {
	now := s.now()
	next := p.Clone()
	next.Status = model.PaymentStatusRejected
	next.Approval.AdminID = adminID
	next.Approval.RejectedAt = &now
	next.Approval.RejectionReason = reason

	if err := s.transition(ctx, next, model.OpenPaymentStatuses...); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionPaymentRejected,
		Category:  model.AuditCategoryPayment,
		ActorID:   adminID,
		TargetID:  next.BuyerID,
		ProductID: next.ProductID,
		PaymentID: next.ID,
		Details:   map[string]string{"reason": reason},
	})
	s.users.RecordActivity(ctx, model.Activity{
		UserID:    next.BuyerID,
		Type:      model.ActivityPaymentRejected,
		ProductID: next.ProductID,
		PaymentID: next.ID,
		Details:   map[string]string{"reason": reason},
	})
	s.notify(ctx, notify.EventPaymentRejected, next)
	return next, nil
}

// rejectUnavailable отклоняет платёж за уже проданный или снятый с продажи товар.
func (s *PaymentLifecycle) rejectUnavailable(ctx context.Context, p *model.Payment, adminID string) (*model.Payment, error) {
	if _, err := s.reject(ctx, p, reasonUnavailable, adminID); err != nil {
		return nil, err
	}
	return nil, apperr.New(apperr.KindAlreadySold, "product is no longer available, payment rejected")
}

// restore возвращает платёж из COMPLETED в состояние до одобрения.
func (s *PaymentLifecycle) restore(ctx context.Context, prev *model.Payment, cause string) {
	applied, err := s.store.TransitionPayment(ctx, prev, []model.PaymentStatus{model.PaymentStatusCompleted})
	if err != nil || !applied {
		s.logger.Error("payment restore failed",
			zap.String("payment_id", prev.ID),
			zap.String("cause", cause),
			zap.Bool("applied", applied),
			zap.Error(err),
		)
		return
	}
	s.metrics.PaymentTransition(string(prev.Status))
}

// rollbackSale отменяет продажу и одобрение после сбоя начисления баллов.
func (s *PaymentLifecycle) rollbackSale(ctx context.Context, prev *model.Payment, adminID string, cause error) {
	if _, err := s.catalog.revertSale(ctx, prev.ProductID, prev.BuyerID); err != nil {
		s.logger.Error("product sale revert failed", zap.String("product_id", prev.ProductID), zap.Error(err))
	}
	s.restore(ctx, prev, "loyalty credit failed")
	s.metrics.PaymentRollback()

	s.audit.Record(ctx, model.AuditEntry{
		Action:    model.ActionPaymentRollback,
		Category:  model.AuditCategoryPayment,
		Severity:  model.AuditSeverityError,
		Status:    model.AuditStatusFailure,
		ActorID:   adminID,
		ProductID: prev.ProductID,
		PaymentID: prev.ID,
		Details:   map[string]string{"error": cause.Error()},
	})
}

func (s *PaymentLifecycle) notify(ctx context.Context, event string, p *model.Payment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishPayment(ctx, event, p); err != nil {
		s.logger.Warn("payment notification failed",
			zap.String("event", event), zap.String("payment_id", p.ID), zap.Error(err))
	}
}

func invalidState(p *model.Payment) error {
	return apperr.Newf(apperr.KindInvalidState, "payment is already %s", strings.ToLower(string(p.Status)))
}

func deliveryCredentials(p *model.Product) map[string]string {
	creds := make(map[string]string)
	for k, v := range p.Details {
		if model.IsCredentialKey(k) {
			creds[k] = v
		}
	}
	return creds
}

// newTxID возвращает идентификатор транзакции PIX: 25 символов A-Z0-9.
func newTxID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:25]
}

func newDeliveryCode() string {
	return "GS-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
}

func sortNewestFirst(payments []model.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})
}
