package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 数据库慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// 数据库慢查询耗时（秒）
	DBSlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow database queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	// 上传文件计数
	UploadFileCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_file_count",
			Help: "Total number of files handled by the upload coordinator",
		},
		[]string{"phase"}, // phase: init, complete
	)

	// 审核决定计数
	ReviewDecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_decision_count",
			Help: "Total number of review decisions applied",
		},
		[]string{"action"}, // action: approve, reject
	)

	// 访问控制结果计数
	AccessDecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decision_count",
			Help: "Project access evaluations by outcome",
		},
		[]string{"outcome"}, // outcome: allowed, forbidden, not_found, error
	)

	// 审计事件计数
	AuditEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_event_count",
			Help: "Audit events by delivery status",
		},
		[]string{"status"}, // status: published, outboxed, dropped, persisted
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(statement string, duration time.Duration) {
	DBSlowQueryCount.WithLabelValues(statement).Inc()
	DBSlowQueryDuration.Observe(duration.Seconds())
}

// AddUploadFiles 增加上传文件计数
func AddUploadFiles(phase string, n int) {
	UploadFileCount.WithLabelValues(phase).Add(float64(n))
}

// IncrementReviewDecision 增加审核决定计数
func IncrementReviewDecision(action string) {
	ReviewDecisionCount.WithLabelValues(action).Inc()
}

// IncrementAccessDecision 增加访问控制结果计数
func IncrementAccessDecision(outcome string) {
	AccessDecisionCount.WithLabelValues(outcome).Inc()
}

// IncrementAuditEvent 增加审计事件计数
func IncrementAuditEvent(status string) {
	AuditEventCount.WithLabelValues(status).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}
