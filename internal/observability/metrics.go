package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for LoanLedger.
type Metrics struct {
	// --- Ledger core ---
	OpsApplied     *prometheus.CounterVec
	OpsRejected    prometheus.Counter
	OpDuration     *prometheus.HistogramVec
	LedgerSequence prometheus.Gauge

	// --- Pool state ---
	TotalSupplied        prometheus.Gauge
	ActiveLoans          prometheus.Gauge
	LiquidationsExecuted prometheus.Counter
	InterestCollected    prometheus.Gauge
	FeesPaid             prometheus.Gauge

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge

	// --- Outbound publishing ---
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter

	// --- HTTP API ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_ops_applied_total",
			Help: "Ledger operations successfully applied",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_ops_rejected_total",
			Help: "Operations rejected by a precondition or transfer failure",
		}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_op_apply_duration_seconds",
			Help:    "Time to apply a single operation in the ledger loop",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		LedgerSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loan_ledger_sequence",
			Help: "Current notification sequence number",
		}),

		TotalSupplied: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loan_pool_total_supplied",
			Help: "Un-lent liquidity in the pool",
		}),

		ActiveLoans: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loan_active_loans",
			Help: "Borrowers with outstanding principal",
		}),

		LiquidationsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_liquidations_executed_total",
			Help: "Positions forcibly closed",
		}),

		InterestCollected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loan_pool_interest_collected",
			Help: "Lifetime interest credited to the pool",
		}),

		FeesPaid: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loan_pool_fees_paid",
			Help: "Lifetime protocol fees paid out of the pool",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loan_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loan_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loan_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_publish_drops_total",
			Help: "Notifications dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_persist_backpressure_total",
			Help: "Times the ledger loop blocked on the persist channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_persist_events_written_total",
			Help: "Audit events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loan_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loan_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loan_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loan_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loan_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loan_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_events_published_total",
			Help: "Notifications published to NATS",
		}, []string{"op"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_publish_errors_total",
			Help: "NATS publish failures",
		}),

		APIRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_api_requests_total",
			Help: "HTTP API requests",
		}, []string{"endpoint", "status"}),

		APIDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_api_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
