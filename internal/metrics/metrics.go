// Package metrics содержит счётчики Prometheus для платежей, бонусов и аудита.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics объединяет счётчики магазина. Нулевой указатель допустим: методы ничего не делают.
type Metrics struct {
	paymentTransitions *prometheus.CounterVec
	paymentRollbacks   prometheus.Counter
	loyaltyPoints      *prometheus.CounterVec
	auditFailures      prometheus.Counter
	syncedProducts     prometheus.Counter
}

// New создаёт счётчики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamestore",
			Name:      "payment_transitions_total",
			Help:      "Payment status transitions by target status.",
		}, []string{"status"}),
		paymentRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamestore",
			Name:      "payment_approval_rollbacks_total",
			Help:      "Approvals undone by a compensating write.",
		}),
		loyaltyPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamestore",
			Name:      "loyalty_points_total",
			Help:      "Loyalty points by operation.",
		}, []string{"operation"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamestore",
			Name:      "audit_append_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}),
		syncedProducts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamestore",
			Name:      "marketplace_synced_products_total",
			Help:      "Products imported or refreshed from the marketplace.",
		}),
	}

	reg.MustRegister(m.paymentTransitions, m.paymentRollbacks, m.loyaltyPoints, m.auditFailures, m.syncedProducts)
	return m
}

// PaymentTransition учитывает переход платежа в статус status.
func (m *Metrics) PaymentTransition(status string) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(status).Inc()
}

// PaymentRollback учитывает откат одобрения.
func (m *Metrics) PaymentRollback() {
	if m == nil {
		return
	}
	m.paymentRollbacks.Inc()
}

// LoyaltyPoints учитывает начисленные, списанные или сгоревшие баллы.
func (m *Metrics) LoyaltyPoints(operation string, points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.loyaltyPoints.WithLabelValues(operation).Add(float64(points))
}

// AuditFailure учитывает запись аудита, которую не удалось сохранить.
func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// SyncedProduct учитывает товар, полученный с маркетплейса.
func (m *Metrics) SyncedProduct() {
	if m == nil {
		return
	}
	m.syncedProducts.Inc()
}
