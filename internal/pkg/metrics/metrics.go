package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iris"

var (
	// CreditReservations 扣减结果：ok, insufficient, conflict, error
	CreditReservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credit",
		Name:      "reservations_total",
		Help:      "Credit reservation attempts by result.",
	}, []string{"result"})

	CreditsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credit",
		Name:      "reserved_total",
		Help:      "Credits deducted by successful reservations.",
	})

	// CreditRefunds 退还结果：ok, error
	CreditRefunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credit",
		Name:      "refunds_total",
		Help:      "Credit refunds after failed or cancelled operations.",
	}, []string{"result"})

	// SweepLedgers 每日清扫中单个账本的结果：reset, expired, unchanged, failed
	SweepLedgers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "ledgers_total",
		Help:      "Ledgers visited by the daily reset sweep by outcome.",
	}, []string{"outcome"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "duration_seconds",
		Help:      "Wall time of a full daily reset sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// PlanUpgrades stage: initiated, confirmed, gateway_error
	PlanUpgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "plan",
		Name:      "upgrades_total",
		Help:      "Plan upgrade flow events by stage and plan.",
	}, []string{"stage", "plan"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// BreakerState 出站熔断器状态：0 closed, 1 half-open, 2 open
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbound",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per outbound dependency.",
	}, []string{"name"})
)

// Handler /metrics 端点
func Handler() http.Handler {
	return promhttp.Handler()
}
