package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for RailLedger.
type Metrics struct {
	// --- Reducer ---
	EventsApplied   *prometheus.CounterVec
	EventsRejected  *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
	ReducerWarnings *prometheus.CounterVec
	CursorBlock     prometheus.Gauge
	AppliedEvents   prometheus.Gauge
	Resyncs         prometheus.Counter

	// --- Checkpoints ---
	CheckpointsRecorded prometheus.Counter
	ReplayDivergences   prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter

	// --- Token metadata ---
	MetadataFallbacks *prometheus.CounterVec

	// --- Sources ---
	NATSMessages   *prometheus.CounterVec
	EVMPolls       *prometheus.CounterVec
	SourceLag      *prometheus.GaugeVec
	RelayPublished *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	latencyBuckets := []float64{
		0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025,
		0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "railledger_reducer_events_applied_total",
			Help: "Events applied by the reducer",
		}, []string{"event_type"}),

		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "railledger_reducer_events_rejected_total",
			Help: "Events not applied (duplicate, out_of_order, error)",
		}, []string{"event_type", "reason"}),

		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "railledger_reducer_event_apply_duration_seconds",
			Help:    "Time to apply a single event including store writes",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		ReducerWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "railledger_reducer_warnings_total",
			Help: "Recoverable handler conditions such as a missing rail",
		}, []string{"handler", "reason"}),

		CursorBlock: factory.NewGauge(prometheus.GaugeOpts{
			Name: "railledger_reducer_cursor_block",
			Help: "Block of the last applied event",
		}),

		AppliedEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "railledger_reducer_applied_events",
			Help: "Events applied since the last resync",
		}),

		Resyncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "railledger_reducer_resyncs_total",
			Help: "Full store resets",
		}),

		CheckpointsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "railledger_checkpoints_recorded_total",
			Help: "Chain digests written to the checkpoint log",
		}),

		ReplayDivergences: factory.NewCounter(prometheus.CounterOpts{
			Name: "railledger_replay_divergences_total",
			Help: "Checkpoints whose digest differs from an earlier run",
		}),

		IdempotencyDuplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "railledger_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/store)",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "railledger_dedup_lru_size",
			Help: "Keys held in the idempotency LRU",
		}),

		DedupLRUEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "railledger_dedup_lru_evictions_total",
			Help: "Keys evicted from the idempotency LRU",
		}),

		MetadataFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "railledger_token_metadata_fallbacks_total",
			Help: "Token metadata calls that failed and used the default",
		}, []string{"field"}),

		NATSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "railledger_nats_messages_total",
			Help: "JetStream messages settled (ack/nak/settle_error)",
		}, []string{"result"}),

		EVMPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "railledger_evm_polls_total",
			Help: "EVM log poll rounds (ok/empty/error)",
		}, []string{"result"}),

		SourceLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "railledger_source_lag_blocks",
			Help: "Blocks between the chain head and the last delivered block",
		}, []string{"source"}),

		RelayPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "railledger_relay_published_total",
			Help: "Events relayed from the EVM source to JetStream",
		}, []string{"event_type"}),
	}
}

// Warning counts a recoverable reducer condition.
func (m *Metrics) Warning(handler, reason string) {
	m.ReducerWarnings.WithLabelValues(handler, reason).Inc()
}
