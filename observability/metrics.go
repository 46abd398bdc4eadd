package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tokensale/core/events"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics
)

// RPC returns the lazily-initialised metrics registry used to record JSON-RPC
// method activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "sale",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of a JSON-RPC call. code is zero on success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// SaleMetrics turns sale and ledger events into Prometheus series. It is an
// events.Emitter so it can be attached next to the node's event log.
type SaleMetrics struct {
	purchases *prometheus.CounterVec
	value     *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	rate      prometheus.Gauge
	finalized prometheus.Gauge
	issuance  prometheus.Gauge
	started   prometheus.Gauge
	supply    *prometheus.GaugeVec
	paused    *prometheus.GaugeVec
}

// Sale returns the process-wide sale metrics registered with the default
// Prometheus registerer.
func Sale() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = NewSaleMetrics(prometheus.DefaultRegisterer)
	})
	return saleRegistry
}

// NewSaleMetrics creates and registers the sale series with reg.
func NewSaleMetrics(reg prometheus.Registerer) *SaleMetrics {
	m := &SaleMetrics{
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sale",
			Name:      "purchases_total",
			Help:      "Settled purchases segmented by sale phase.",
		}, []string{"phase"}),
		value: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sale",
			Name:      "value_raised_total",
			Help:      "Value contributed segmented by sale phase, in base units.",
		}, []string{"phase"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sale",
			Name:      "tokens_sold_total",
			Help:      "Tokens minted to buyers segmented by sale phase.",
		}, []string{"phase"}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sale",
			Name:      "continuous_rate",
			Help:      "Current continuous-sale rate.",
		}),
		finalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sale",
			Name:      "finalized",
			Help:      "1 once the auction has been finalized.",
		}),
		issuance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sale",
			Name:      "issuance_per_bucket",
			Help:      "Tokens released per continuous-sale bucket.",
		}),
		started: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sale",
			Name:      "continuous_started",
			Help:      "1 once continuous sales are open.",
		}),
		supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sale",
			Subsystem: "token",
			Name:      "total_supply",
			Help:      "Total token supply after the latest mint or burn.",
		}, []string{"token"}),
		paused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sale",
			Subsystem: "token",
			Name:      "paused",
			Help:      "1 while the token ledger is paused.",
		}, []string{"token"}),
	}
	reg.MustRegister(m.purchases, m.value, m.tokens, m.rate, m.finalized, m.issuance, m.started, m.supply, m.paused)
	return m
}

// Emit implements events.Emitter.
func (m *SaleMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.SalePurchase:
		phase := labelPhase(e.Phase)
		m.purchases.WithLabelValues(phase).Inc()
		m.value.WithLabelValues(phase).Add(bigToFloat(e.Value))
		m.tokens.WithLabelValues(phase).Add(bigToFloat(e.Tokens))
	case events.SaleRateChanged:
		m.rate.Set(bigToFloat(e.Current))
	case events.SaleFinalized:
		m.finalized.Set(1)
		m.issuance.Set(bigToFloat(e.IssuanceRate))
	case events.ContinuousStarted:
		m.started.Set(1)
		m.rate.Set(bigToFloat(e.Rate))
		m.issuance.Set(bigToFloat(e.Capacity))
	case events.TokenSupply:
		m.supply.WithLabelValues(labelAsset(e.Token)).Set(bigToFloat(e.Total))
	case events.TokenPaused:
		value := 0.0
		if e.Paused {
			value = 1
		}
		m.paused.WithLabelValues(labelAsset(e.Token)).Set(value)
	}
}

func labelPhase(phase string) string {
	trimmed := strings.TrimSpace(phase)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
