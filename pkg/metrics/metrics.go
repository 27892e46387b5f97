package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// Provider 调用延迟（毫秒）
	ProviderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "Provider adapter call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~40s
		},
		[]string{"channel", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slow_query_count",
			Help: "Total number of database queries exceeding the slow-query threshold",
		},
		[]string{"sql"},
	)

	// 路由决策计数
	RouteDecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_decision_count",
			Help: "Total number of router per-channel decisions",
		},
		[]string{"channel", "outcome"}, // outcome: sent, delivered, failed, rate_limited, skipped, queued, digest_queued
	)

	// 重试调度计数
	RetryScheduledCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_scheduled_count",
			Help: "Total number of deliveries re-scheduled for retry",
		},
		[]string{"channel"},
	)

	// DLQ 写入计数
	DLQWriteCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_write_count",
			Help: "Total number of records written to the dead-letter queue",
		},
		[]string{"channel", "reason"},
	)

	// Digest 运行计数
	DigestRunCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_run_count",
			Help: "Total number of digest sends attempted",
		},
		[]string{"frequency", "status"},
	)

	// HTTP 请求延迟（秒） — 仅用于 /healthz /readyz /metrics 运维端点
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordProviderCallLatency 记录 Provider 调用延迟
func RecordProviderCallLatency(channel, status string, duration time.Duration) {
	ProviderCallLatency.WithLabelValues(channel, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementRouteDecision 增加路由决策计数
func IncrementRouteDecision(channel, outcome string) {
	RouteDecisionCount.WithLabelValues(channel, outcome).Inc()
}

// IncrementRetryScheduled 增加重试调度计数
func IncrementRetryScheduled(channel string) {
	RetryScheduledCount.WithLabelValues(channel).Inc()
}

// IncrementDLQWrite 增加 DLQ 写入计数
func IncrementDLQWrite(channel, reason string) {
	DLQWriteCount.WithLabelValues(channel, reason).Inc()
}

// IncrementDigestRun 增加 digest 运行计数
func IncrementDigestRun(frequency, status string) {
	DigestRunCount.WithLabelValues(frequency, status).Inc()
}
