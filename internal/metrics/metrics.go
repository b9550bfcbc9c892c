package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Quote metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapengine_quote_requests_total",
			Help: "Total number of quote requests",
		},
		[]string{"route", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swapengine_quote_duration_seconds",
			Help:    "Quote request duration in seconds, chain reads included",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	// CandidateOutcomes counts what each route lookup produced: ok, absent or error.
	CandidateOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapengine_candidate_outcomes_total",
			Help: "Outcome of each candidate route lookup",
		},
		[]string{"route", "outcome"},
	)

	SupersededQuotes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapengine_superseded_quotes_total",
		Help: "Quote results dropped because a newer request replaced them",
	})

	// Chain read metrics
	ChainReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapengine_chain_reads_total",
			Help: "Total number of contract reads",
		},
		[]string{"method", "status"},
	)

	PairCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapengine_pair_cache_hits_total",
		Help: "Total number of pair address cache hits",
	})

	PairCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapengine_pair_cache_misses_total",
		Help: "Total number of pair address cache misses",
	})

	PairCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swapengine_pair_cache_size",
		Help: "Current number of entries in the pair address cache",
	})

	PriceImpact = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swapengine_price_impact_bps",
			Help:    "Price impact in basis points",
			Buckets: []float64{0, 10, 50, 100, 300, 500, 1000, 5000, 10000},
		},
		[]string{"severity"},
	)

	// Transaction metrics
	TxTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapengine_tx_transitions_total",
			Help: "Transaction state transitions",
		},
		[]string{"kind", "state"},
	)

	// Simulation metrics
	SimulationRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapengine_simulation_requests_total",
		Help: "Total number of pre-flight eth_call simulations",
	})

	SimulationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapengine_simulation_failures_total",
			Help: "Total number of failed pre-flight simulations",
		},
		[]string{"reason"},
	)

	GasLimit = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapengine_gas_limit",
		Help:    "Gas limit set on submitted transactions",
		Buckets: []float64{50000, 100000, 150000, 200000, 300000, 500000, 1000000},
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapengine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swapengine_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
