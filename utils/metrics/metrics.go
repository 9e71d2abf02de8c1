package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

// Registry returns the process-wide registry collectors are attached to when
// no registerer is supplied.
func Registry() *prometheus.Registry {
	return registry
}

func registererOrDefault(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return registry
	}
	return reg
}

// ArbitrageMetrics tracks sizing and execution of arbitrage attempts
type ArbitrageMetrics struct {
	Attempts          *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	OpportunitiesSeen prometheus.Counter
	NoOpportunity     prometheus.Counter
	SizingLatency     prometheus.Histogram
	ExecutionLatency  prometheus.Histogram
	RealizedProfitWei prometheus.Counter
	LastProfitWei     prometheus.Gauge
}

// NewArbitrageMetrics registers the arbitrage collectors on reg
func NewArbitrageMetrics(namespace string, reg prometheus.Registerer) *ArbitrageMetrics {
	factory := promauto.With(registererOrDefault(reg))
	return &ArbitrageMetrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Arbitrage attempts by final outcome",
		}, []string{"outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Orchestrator state transitions by target state",
		}, []string{"state"}),
		OpportunitiesSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Profitable opportunities returned by sizing",
		}),
		NoOpportunity: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_opportunity_total",
			Help:      "Sizing runs that found no profitable direction",
		}),
		SizingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sizing_latency_seconds",
			Help:      "Time spent computing the optimal trade",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12),
		}),
		ExecutionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_latency_seconds",
			Help:      "Time spent inside the ledger transaction",
			Buckets:   prometheus.DefBuckets,
		}),
		RealizedProfitWei: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_profit_wei_total",
			Help:      "Sum of realized profit in wei of the reference asset",
		}),
		LastProfitWei: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_profit_wei",
			Help:      "Realized profit of the most recent settled attempt",
		}),
	}
}

// RPCMetrics tracks calls made by the on-chain readers
type RPCMetrics struct {
	Calls        *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	BreakerState *prometheus.GaugeVec
	CallLatency  prometheus.Histogram
}

// NewRPCMetrics registers the RPC collectors on reg
func NewRPCMetrics(namespace string, reg prometheus.Registerer) *RPCMetrics {
	factory := promauto.With(registererOrDefault(reg))
	return &RPCMetrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Contract calls by method",
		}, []string{"method"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_errors_total",
			Help:      "Failed contract calls by method",
		}, []string{"method"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_hits_total",
			Help:      "Pair metadata served from cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_misses_total",
			Help:      "Pair metadata fetched from the node",
		}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"breaker"}),
		CallLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_latency_seconds",
			Help:      "Contract call latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}
