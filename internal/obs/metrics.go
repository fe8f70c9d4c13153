package obs

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors the POS exposes. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	SessionsOpened *prometheus.CounterVec
	Checkouts      *prometheus.CounterVec
	Revenue        prometheus.Counter
	ForceDiscards  prometheus.Counter
	Governance     *prometheus.CounterVec
	ReqTotal       *prometheus.CounterVec
	ReqDur         *prometheus.HistogramVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		SessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Room sessions opened, by room type.",
		}, []string{"room_type"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		Revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_revenue_total",
			Help:      "Sum of paid order totals at checkout time.",
		}),
		ForceDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "force_discards_total",
			Help:      "Sessions discarded without payment.",
		}),
		Governance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_governance_total",
			Help:      "Bill edit governance actions by outcome.",
		}, []string{"action", "outcome"}),
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
	}

	mustRegisterCollector(reg, m.SessionsOpened, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.SessionsOpened = v
		}
	})
	mustRegisterCollector(reg, m.Checkouts, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Checkouts = v
		}
	})
	mustRegisterCollector(reg, m.Revenue, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Counter); ok {
			m.Revenue = v
		}
	})
	mustRegisterCollector(reg, m.ForceDiscards, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Counter); ok {
			m.ForceDiscards = v
		}
	})
	mustRegisterCollector(reg, m.Governance, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Governance = v
		}
	})
	mustRegisterCollector(reg, m.ReqTotal, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.ReqTotal = v
		}
	})
	mustRegisterCollector(reg, m.ReqDur, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.HistogramVec); ok {
			m.ReqDur = v
		}
	})
	return m
}

func (m *Metrics) SessionOpened(roomType string) {
	if m == nil {
		return
	}
	m.SessionsOpened.WithLabelValues(roomType).Inc()
}

func (m *Metrics) CheckoutResult(result string, total float64) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(result).Inc()
	if result == "ok" && total > 0 {
		m.Revenue.Add(total)
	}
}

func (m *Metrics) ForceDiscarded() {
	if m == nil {
		return
	}
	m.ForceDiscards.Inc()
}

func (m *Metrics) GovernanceOutcome(action, outcome string) {
	if m == nil {
		return
	}
	m.Governance.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.ReqTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.ReqDur.WithLabelValues(method, route).Observe(float64(d) / float64(time.Millisecond))
}

func chiRouteContext(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, onExisting func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if onExisting != nil {
				onExisting(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register collector: %w", err))
	}
}
