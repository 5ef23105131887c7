package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	activeVaults prometheus.Gauge
	poolDeposits prometheus.Gauge
	liquidations *prometheus.CounterVec
	redemptions  prometheus.Counter
}

type rpcMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// EngineMetrics returns the lazily-initialised registry recording vault and
// stability-pool activity.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			activeVaults: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "active_vaults",
				Help:      "Number of active vaults across all collaterals.",
			}),
			poolDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablecore",
				Subsystem: "stability",
				Name:      "total_deposits",
				Help:      "Debt tokens currently held by the stability pool.",
			}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Liquidations segmented by collateral and completeness.",
			}, []string{"asset", "mode"}),
			redemptions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "redemptions_total",
				Help:      "Completed redemption sweeps.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.latency,
			engineRegistry.activeVaults,
			engineRegistry.poolDeposits,
			engineRegistry.liquidations,
			engineRegistry.redemptions,
		)
	})
	return engineRegistry
}

// ObserveOperation records one engine call outcome.
func (m *engineMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetActiveVaults refreshes the vault gauge.
func (m *engineMetrics) SetActiveVaults(count uint64) {
	if m == nil {
		return
	}
	m.activeVaults.Set(float64(count))
}

// SetPoolDeposits refreshes the pool gauge from a wad-scaled amount.
func (m *engineMetrics) SetPoolDeposits(wadAmount float64) {
	if m == nil {
		return
	}
	m.poolDeposits.Set(wadAmount)
}

// ObserveLiquidation records one liquidation.
func (m *engineMetrics) ObserveLiquidation(asset string, full bool) {
	if m == nil {
		return
	}
	mode := "partial"
	if full {
		mode = "full"
	}
	m.liquidations.WithLabelValues(asset, mode).Inc()
}

// ObserveRedemption records one completed redemption sweep.
func (m *engineMetrics) ObserveRedemption() {
	if m == nil {
		return
	}
	m.redemptions.Inc()
}

// RPCMetrics returns the lazily-initialised registry recording JSON-RPC
// activity.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "JSON-RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stablecore",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution of JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.errors, rpcRegistry.latency)
	})
	return rpcRegistry
}

// Observe records the outcome of an RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *rpcMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}
