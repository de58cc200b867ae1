package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики pipeline и backend. Регистрируются в default registry
// и отдаются через promhttp.Handler() на /metrics.
var (
	// TasksDispatched — количество отправленных в backend tasks по типу.
	TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permitflow_tasks_dispatched_total",
		Help: "Total number of task units dispatched to the execution backend",
	}, []string{"kind"})

	// TasksFinished — количество завершённых worker'ом tasks по типу и состоянию.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permitflow_tasks_finished_total",
		Help: "Total number of task units finished by workers",
	}, []string{"kind", "state"})

	// StageDuration — время разрешения стадии pipeline.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "permitflow_stage_duration_seconds",
		Help:    "Time spent resolving one pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})

	// PipelineOutcomes — итоги выполнения pipeline по классу результата.
	PipelineOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permitflow_pipeline_outcomes_total",
		Help: "Pipeline chain outcomes by result class",
	}, []string{"pipeline", "result"})
)

// TasksPurged — количество tasks, удалённых очисткой результатов.
var TasksPurged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "permitflow_tasks_purged_total",
	Help: "Total number of finished tasks removed by result retention",
})

// TasksReclaimed — количество зависших RUNNING tasks, возвращённых в PENDING.
var TasksReclaimed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "permitflow_tasks_reclaimed_total",
	Help: "Total number of stale running tasks returned to pending",
})

// Состояние соединения с RabbitMQ по компоненту (api, worker, scheduler).
var (
	// BrokerReconnects — количество успешных переподключений.
	BrokerReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permitflow_broker_reconnects_total",
		Help: "Total number of successful RabbitMQ reconnects",
	}, []string{"component"})

	// BrokerConnected — 1, пока соединение открыто.
	BrokerConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "permitflow_broker_connected",
		Help: "Whether the RabbitMQ connection is currently open",
	}, []string{"component"})
)

// HTTP API.
var (
	// HTTPRequests — количество запросов по шаблону маршрута и статусу.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permitflow_http_requests_total",
		Help: "Total number of HTTP API requests by route pattern and status",
	}, []string{"route", "status"})

	// HTTPDuration — время обработки запроса. Promote с ожиданием стадий
	// длится секундами, отсюда широкие buckets.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "permitflow_http_request_duration_seconds",
		Help:    "HTTP API request latency by route pattern",
		Buckets: prometheus.ExponentialBuckets(0.005, 3, 10),
	}, []string{"route"})
)
