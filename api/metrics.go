package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/materials-ledger/inventory"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	movements        *prometheus.CounterVec
	movedQuantity    *prometheus.CounterVec
	withdrawRejected prometheus.Counter
	requestDuration  *prometheus.HistogramVec
	auditedMaterials prometheus.Gauge
	driftedMaterials prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		movements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "materials",
			Name:      "stock_movements_total",
			Help:      "Stock movements booked, by transaction type.",
		}, []string{"type"}),
		movedQuantity: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "materials",
			Name:      "stock_moved_units_total",
			Help:      "Units moved in or out of stock, by transaction type.",
		}, []string{"type"}),
		withdrawRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "materials",
			Name:      "withdraw_rejected_total",
			Help:      "Withdrawals refused for insufficient stock.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "materials",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		auditedMaterials: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "materials",
			Name:      "audit_materials",
			Help:      "Materials checked by the last stock audit.",
		}),
		driftedMaterials: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "materials",
			Name:      "audit_drifted_materials",
			Help:      "Materials whose stock counter disagreed with the ledger in the last audit.",
		}),
	}
}

func (m *Metrics) observeMovement(tx inventory.Transaction) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(string(tx.Type)).Inc()
	m.movedQuantity.WithLabelValues(string(tx.Type)).Add(float64(tx.Quantity))
}

func (m *Metrics) observeWithdrawRejected() {
	if m == nil {
		return
	}
	m.withdrawRejected.Inc()
}

func (m *Metrics) observeAudit(audited, drifted int) {
	if m == nil {
		return
	}
	m.auditedMaterials.Set(float64(audited))
	m.driftedMaterials.Set(float64(drifted))
}

// instrument records request latency under the matched chi route pattern.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
