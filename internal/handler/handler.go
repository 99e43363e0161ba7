// Package handler содержит HTTP-обработчики API магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/assistant"
	"github.com/mmeshcher/gamestore/internal/middleware"
	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/service"
)

// PaymentService управляет жизненным циклом платежей.
type PaymentService interface {
	CreatePayment(ctx context.Context, buyerID, buyerName, productID, promoCode string) (*model.Payment, error)
	CheckStatus(ctx context.Context, id string) (*model.Payment, error)
	Cancel(ctx context.Context, id, requesterID string) (*model.Payment, error)
	ConfirmFromGateway(ctx context.Context, id string, res model.GatewayResult) (*model.Payment, error)
	Approve(ctx context.Context, id, adminID string) (*model.Payment, error)
	Reject(ctx context.Context, id, reason, adminID string) (*model.Payment, error)
	ListPendingApprovals(ctx context.Context) ([]model.Payment, error)
	ListUserPayments(ctx context.Context, buyerID string, limit int) ([]model.Payment, error)
}

// CatalogService управляет каталогом товаров.
type CatalogService interface {
	Create(ctx context.Context, adminID string, in service.ProductInput) (*model.Product, error)
	Update(ctx context.Context, adminID, id string, in service.ProductInput) (*model.Product, error)
	SetAvailability(ctx context.Context, adminID, id string, available bool) (*model.Product, error)
	Get(ctx context.Context, id string) (*model.Product, error)
	View(ctx context.Context, id, userID string) (*model.Product, error)
	Search(ctx context.Context, f model.ProductFilter) ([]model.Product, error)
}

// PromotionService управляет акциями и расчётом цены.
type PromotionService interface {
	Create(ctx context.Context, adminID string, in service.PromotionInput) (*model.Promotion, error)
	Update(ctx context.Context, adminID, id string, in service.PromotionInput) (*model.Promotion, error)
	End(ctx context.Context, adminID, id string) (*model.Promotion, error)
	ActivePromotions(ctx context.Context) ([]model.Promotion, error)
	ResolvePriceWithCode(ctx context.Context, productID string, base decimal.Decimal, productType, code string) (*model.PriceQuote, error)
}

// LoyaltyService управляет бонусными баллами.
type LoyaltyService interface {
	AddPoints(ctx context.Context, userID string, amount int64, reason string, meta model.PointMetadata) (*model.LoyaltySnapshot, error)
	UsePoints(ctx context.Context, userID string, amount int64, reason string, meta model.PointMetadata) (*model.LoyaltySnapshot, error)
	GetBalance(ctx context.Context, userID string) (*model.LoyaltySnapshot, error)
}

// UserService управляет профилями пользователей и журналом действий.
type UserService interface {
	Touch(ctx context.Context, id, displayName string) (*model.User, error)
	SetPreferences(ctx context.Context, id string, prefs model.Preferences) (*model.User, error)
	Block(ctx context.Context, id, reason, adminID string) (*model.User, error)
	Unblock(ctx context.Context, id, adminID string) (*model.User, error)
	RecordActivity(ctx context.Context, a model.Activity)
	Activity(ctx context.Context, id string, limit int) ([]model.Activity, error)
}

// AdvisorService отвечает на вопросы и подбирает товары.
type AdvisorService interface {
	Ask(question string) assistant.Reply
	Recommend(ctx context.Context, userID string, limit int) ([]assistant.Recommendation, error)
}

// AuditService читает журнал аудита.
type AuditService interface {
	List(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error)
}

// Services объединяет зависимости обработчиков.
type Services struct {
	Payments   PaymentService
	Catalog    CatalogService
	Promotions PromotionService
	Loyalty    LoyaltyService
	Users      UserService
	Advisor    AdvisorService
	Audit      AuditService
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	svc            Services
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// metricsHandler монтируется на /metrics, nil отключает маршрут.
func NewHandler(svc Services, logger *zap.Logger, auth *middleware.AuthMiddleware, metricsHandler http.Handler) *Handler {
	return &Handler{
		svc:            svc,
		logger:         logger,
		authMiddleware: auth,
		metrics:        metricsHandler,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound, apperr.KindNoAccount:
		return http.StatusNotFound
	case apperr.KindInvalidState, apperr.KindAlreadySold, apperr.KindAlreadyInactive:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case apperr.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError переводит ошибку бизнес-логики в HTTP-ответ. Внутренние причины
// только логируются.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	h.writeJSON(w, status, errorResponse{Error: string(kind), Message: apperr.Message(err)})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(apperr.KindValidation), Message: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

// currentUser возвращает Discord ID и имя пользователя из токена.
func currentUser(r *http.Request) (string, string, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	return id, middleware.GetUserNameFromContext(r.Context()), ok
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func queryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &v, nil
}
