package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	aggregateOps       *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec
	aggregateRetries   *prometheus.CounterVec

	outboxDispatch *prometheus.CounterVec
	outboxRows     *prometheus.GaugeVec
	batchMembers   *prometheus.CounterVec
	workerRuns     *prometheus.CounterVec

	dbStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// Init builds the process-wide metrics set when enabled (or METRICS_ENABLED is on);
// otherwise nil. Every method on a nil *Metrics is a no-op.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled && !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics(prometheus.NewRegistry())
		instance.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if log != nil {
			log.Info("Metrics initialized")
		}
	})
	return instance
}

// NewMetrics registers the engine's collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qb_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qb_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qb_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		aggregateOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qb_aggregate_operation_duration_seconds",
			Help:    "Aggregate write latency by operation and outcome.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op", "status"}),
		aggregateConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qb_aggregate_conflicts_total",
			Help: "Aggregate writes rejected with a conflict.",
		}, []string{"op"}),
		aggregateRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qb_aggregate_retryable_total",
			Help: "Aggregate writes failed with a retryable error.",
		}, []string{"op"}),
		outboxDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qb_outbox_dispatch_total",
			Help: "Outbox dispatch attempts by sink and outcome.",
		}, []string{"sink", "status"}),
		outboxRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qb_outbox_rows",
			Help: "Notification outbox rows by status.",
		}, []string{"status"}),
		batchMembers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qb_bulk_batch_members_total",
			Help: "Bulk negotiation members by outcome.",
		}, []string{"outcome"}),
		workerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qb_worker_runs_total",
			Help: "Background worker ticks by worker and outcome.",
		}, []string{"worker", "status"}),
		dbStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qb_db_pool",
			Help: "database/sql pool stats.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qb_redis_up",
			Help: "1 when the notification redis answered the last ping.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qb_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateOps, m.aggregateConflicts, m.aggregateRetries,
		m.outboxDispatch, m.outboxRows, m.batchMembers, m.workerRuns,
		m.dbStats, m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.WithLabelValues(orUnknown(op), orUnknown(status)).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(orUnknown(op)).Inc()
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.WithLabelValues(orUnknown(op)).Inc()
}

func (m *Metrics) IncOutboxDispatch(sink, status string) {
	if m == nil {
		return
	}
	m.outboxDispatch.WithLabelValues(orUnknown(sink), orUnknown(status)).Inc()
}

func (m *Metrics) IncBatchMember(outcome string) {
	if m == nil {
		return
	}
	m.batchMembers.WithLabelValues(orUnknown(outcome)).Inc()
}

func (m *Metrics) IncWorkerRun(worker, status string) {
	if m == nil {
		return
	}
	m.workerRuns.WithLabelValues(orUnknown(worker), orUnknown(status)).Inc()
}

// StartDBCollector samples pool stats and outbox depth on the scrape interval.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectDB(ctx, log, db)
			}
		}
	}()
}

func (m *Metrics) collectDB(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
		}
		return
	}
	stats := sqlDB.Stats()
	m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
	m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
	m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
	m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
	m.dbStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))

	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := db.WithContext(ctx).
		Model(&types.NotificationOutbox{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		if log != nil {
			log.Warn("metrics: outbox depth query failed", "error", err)
		}
		return
	}
	for _, r := range rows {
		m.outboxRows.WithLabelValues(r.Status).Set(float64(r.Count))
	}
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
