package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Sharder/internal/domain"
)

const namespace = "sharder"

// Metrics — метрики оркестратора.
type Metrics struct {
	WorkersRegistered  prometheus.Gauge
	ShardsTotal        prometheus.Gauge
	WorkerRestarts     *prometheus.CounterVec
	WorkersRetired     prometheus.Counter
	LaunchQueueDepth   prometheus.Gauge
	LaunchTimeouts     prometheus.Counter
	FetchPending       prometheus.Gauge
	FetchTimeouts      prometheus.Counter
	ProtocolViolations *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec

	Guilds          prometheus.Gauge
	Users           prometheus.Gauge
	RAMMegabytes    prometheus.Gauge
	StatsIncomplete prometheus.Counter
}

// NewMetrics регистрирует метрики в reg.
// В тестах передаётся prometheus.NewRegistry(), в main — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WorkersRegistered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_registered",
			Help:      "Number of worker processes in the registry.",
		}),
		ShardsTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shards_total",
			Help:      "Total number of shards in the plan.",
		}),
		WorkerRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Worker restarts after process exit.",
		}, []string{"worker"}),
		WorkersRetired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_retired_total",
			Help:      "Workers permanently retired after exceeding the restart limit.",
		}),
		LaunchQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "launch_queue_depth",
			Help:      "Start/resume commands waiting in the launch queue, including the one in flight.",
		}),
		LaunchTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_ack_timeouts_total",
			Help:      "Launch commands dropped because ready was not received in time.",
		}),
		FetchPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_pending",
			Help:      "Broadcast fetch requests awaiting a response.",
		}),
		FetchTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_timeouts_total",
			Help:      "Fetch requests resolved as not found by timeout.",
		}),
		ProtocolViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Malformed or unknown messages from workers.",
		}, []string{"kind"}),
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from workers by kind.",
		}, []string{"kind"}),
		Guilds: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "guilds",
			Help:      "Guild count from the last stats aggregate.",
		}),
		Users: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "User count from the last stats aggregate.",
		}),
		RAMMegabytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ram_megabytes",
			Help:      "Total worker memory from the last stats aggregate.",
		}),
		StatsIncomplete: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_incomplete_total",
			Help:      "Stats intervals closed by timeout before all workers reported.",
		}),
	}
}

// ObserveStats обновляет метрики по агрегату статистики.
func (m *Metrics) ObserveStats(s domain.ClusterStats) {
	m.Guilds.Set(float64(s.Guilds))
	m.Users.Set(float64(s.Users))
	m.RAMMegabytes.Set(s.TotalRAM)
	if !s.Complete {
		m.StatsIncomplete.Inc()
	}
}
