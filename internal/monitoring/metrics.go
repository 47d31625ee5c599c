package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 传输指标
	TransfersUploaded   prometheus.Counter
	TransfersDownloaded prometheus.Counter
	TransfersDeleted    prometheus.Counter
	TransfersExpired    prometheus.Counter
	TransfersActive     prometheus.Gauge
	TransferSize        prometheus.Histogram

	// 清理指标
	SweepRuns      prometheus.Counter
	SweepDuration  prometheus.Histogram
	SweepFailures  prometheus.Counter

	// 用户指标
	UsersRegistered prometheus.Counter
	UsersOnline     prometheus.Gauge

	// 系统指标
	SystemUptime        prometheus.Gauge
	DatabaseConnections prometheus.Gauge
	MemoryUsage         prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileoff_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fileoff_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fileoff_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fileoff_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		TransfersUploaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileoff_transfers_uploaded_total",
				Help: "Total number of files uploaded",
			},
		),

		TransfersDownloaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileoff_transfers_downloaded_total",
				Help: "Total number of files downloaded",
			},
		),

		TransfersDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileoff_transfers_deleted_total",
				Help: "Total number of transfers deleted by sender",
			},
		),

		TransfersExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileoff_transfers_expired_total",
				Help: "Total number of transfers removed by expiry sweep",
			},
		),

		TransfersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fileoff_transfers_active",
				Help: "Number of transfers currently awaiting download",
			},
		),

		TransferSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fileoff_transfer_size_bytes",
				Help:    "Uploaded file size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),

		SweepRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileoff_sweep_runs_total",
				Help: "Total number of expiry sweep runs",
			},
		),

		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fileoff_sweep_duration_seconds",
				Help:    "Expiry sweep duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		SweepFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileoff_sweep_failures_total",
				Help: "Total number of records the sweep failed to purge",
			},
		),

		UsersRegistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileoff_users_registered_total",
				Help: "Total number of users registered",
			},
		),

		UsersOnline: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fileoff_users_online",
				Help: "Number of users with an open notification connection",
			},
		),

		SystemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fileoff_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		DatabaseConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fileoff_database_connections",
				Help: "Number of database connections",
			},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fileoff_memory_usage_bytes",
				Help: "Memory usage in bytes",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileoff_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fileoff_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileoff_rate_limit_blocks_total",
				Help: "Total number of requests blocked by rate limiting",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordUpload 记录文件上传
func (m *Metrics) RecordUpload(size int64) {
	m.TransfersUploaded.Inc()
	m.TransfersActive.Inc()
	m.TransferSize.Observe(float64(size))
}

// RecordDownload 记录文件下载
func (m *Metrics) RecordDownload() {
	m.TransfersDownloaded.Inc()
	m.TransfersActive.Dec()
}

// RecordDelete 记录发送方撤回
func (m *Metrics) RecordDelete() {
	m.TransfersDeleted.Inc()
	m.TransfersActive.Dec()
}

// RecordSweep 记录一轮过期清理
func (m *Metrics) RecordSweep(removed, failed int, duration time.Duration) {
	m.SweepRuns.Inc()
	m.SweepDuration.Observe(duration.Seconds())
	m.TransfersExpired.Add(float64(removed))
	m.TransfersActive.Sub(float64(removed))
	m.SweepFailures.Add(float64(failed))
}

// RecordUserRegistered 记录用户注册
func (m *Metrics) RecordUserRegistered() {
	m.UsersRegistered.Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateUsersOnline 更新在线用户数
func (m *Metrics) UpdateUsersOnline(count int) {
	m.UsersOnline.Set(float64(count))
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// UpdateDatabaseConnections 更新数据库连接数
func (m *Metrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// UpdateMemoryUsage 更新内存使用量
func (m *Metrics) UpdateMemoryUsage(bytes int64) {
	m.MemoryUsage.Set(float64(bytes))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
