package model

import "time"

// AuditCategory группирует записи журнала по подсистемам.
type AuditCategory string

const (
	AuditCategoryPayment   AuditCategory = "PAYMENT"
	AuditCategoryProduct   AuditCategory = "PRODUCT"
	AuditCategoryPromotion AuditCategory = "PROMOTION"
	AuditCategoryLoyalty   AuditCategory = "LOYALTY"
	AuditCategoryUser      AuditCategory = "USER"
	AuditCategorySystem    AuditCategory = "SYSTEM"
)

// AuditSeverity определяет важность записи и срок её хранения.
type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "INFO"
	AuditSeverityWarning  AuditSeverity = "WARNING"
	AuditSeverityError    AuditSeverity = "ERROR"
	AuditSeverityCritical AuditSeverity = "CRITICAL"
)

// AuditStatus фиксирует исход действия.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "SUCCESS"
	AuditStatusFailure AuditStatus = "FAILURE"
)

// Действия, которые фиксируются в журнале.
const (
	ActionPaymentCreated       = "PAYMENT_CREATED"
	ActionPaymentExpired       = "PAYMENT_EXPIRED"
	ActionPaymentCancelled     = "PAYMENT_CANCELLED"
	ActionPaymentBankConfirmed = "PAYMENT_BANK_CONFIRMED"
	ActionPaymentBankRejected  = "PAYMENT_BANK_REJECTED"
	ActionPaymentApproved      = "PAYMENT_APPROVED"
	ActionPaymentRejected      = "PAYMENT_REJECTED"
	ActionPaymentRollback      = "PAYMENT_APPROVAL_ROLLBACK"
	ActionPointsAdded          = "LOYALTY_POINTS_ADDED"
	ActionPointsUsed           = "LOYALTY_POINTS_USED"
	ActionPointsExpired        = "LOYALTY_POINTS_EXPIRED"
	ActionProductCreated       = "PRODUCT_CREATED"
	ActionProductUpdated       = "PRODUCT_UPDATED"
	ActionProductAvailability  = "PRODUCT_AVAILABILITY_CHANGED"
	ActionProductSynced        = "PRODUCT_SYNCED"
	ActionPromotionCreated     = "PROMOTION_CREATED"
	ActionPromotionUpdated     = "PROMOTION_UPDATED"
	ActionPromotionEnded       = "PROMOTION_ENDED"
	ActionUserBlocked          = "USER_BLOCKED"
	ActionUserUnblocked        = "USER_UNBLOCKED"
	ActionAuditPurged          = "AUDIT_PURGED"
)

// AuditEntry описывает неизменяемую запись журнала аудита.
type AuditEntry struct {
	ID        string
	Action    string
	Category  AuditCategory
	Severity  AuditSeverity
	Status    AuditStatus
	CreatedAt time.Time
	ActorID   string
	TargetID  string
	ProductID string
	PaymentID string
	Details   map[string]string
	ExpiresAt time.Time
}

// AuditFilter задаёт условия выборки журнала.
type AuditFilter struct {
	Category AuditCategory
	ActorID  string
	Since    *time.Time
	Limit    int
}
