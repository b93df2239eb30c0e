// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 観戦記録の作成経路。
const (
	SourceSingle  = "single"
	SourceWeekend = "weekend"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogsCreated(source string, count int)
	RecordLogDeleted()
	RecordWeekendBatch(sessions int)
	RecordConflict(kind string)
	RecordSpoilerResolution(state string)
	RecordReviewLike(action string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logsCreated    *prometheus.CounterVec
	logsDeleted    prometheus.Counter
	weekendBatches prometheus.Counter
	weekendSize    prometheus.Histogram
	conflicts      *prometheus.CounterVec
	spoilerStates  *prometheus.CounterVec
	reviewLikes    *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitlog_logs_created_total",
			Help: "作成された観戦記録の合計数（作成経路別）",
		}, []string{"source"}),
		logsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitlog_logs_deleted_total",
			Help: "削除された観戦記録の合計数",
		}),
		weekendBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitlog_weekend_batches_total",
			Help: "成功したウィークエンド一括記録の合計数",
		}),
		weekendSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pitlog_weekend_batch_sessions",
			Help:    "ウィークエンド一括記録1回あたりのセッション数",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitlog_conflicts_total",
			Help: "一意制約による競合の合計数（種別別）",
		}, []string{"kind"}),
		spoilerStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitlog_spoiler_resolutions_total",
			Help: "ネタバレ表示判定の合計数（判定結果別）",
		}, []string{"state"}),
		reviewLikes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitlog_review_likes_total",
			Help: "レビューへのいいね操作の合計数（操作別）",
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitlog_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pitlog_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logsCreated,
		c.logsDeleted,
		c.weekendBatches,
		c.weekendSize,
		c.conflicts,
		c.spoilerStates,
		c.reviewLikes,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogsCreated は作成された観戦記録数を記録する。
func (c *Collector) RecordLogsCreated(source string, count int) {
	c.logsCreated.WithLabelValues(source).Add(float64(count))
}

// RecordLogDeleted は観戦記録の削除を記録する。
func (c *Collector) RecordLogDeleted() {
	c.logsDeleted.Inc()
}

// RecordWeekendBatch は成功した一括記録とそのセッション数を記録する。
func (c *Collector) RecordWeekendBatch(sessions int) {
	c.weekendBatches.Inc()
	c.weekendSize.Observe(float64(sessions))
}

// RecordConflict は一意制約による競合を記録する。
func (c *Collector) RecordConflict(kind string) {
	c.conflicts.WithLabelValues(kind).Inc()
}

// RecordSpoilerResolution はネタバレ表示判定の結果を記録する。
func (c *Collector) RecordSpoilerResolution(state string) {
	c.spoilerStates.WithLabelValues(state).Inc()
}

// RecordReviewLike はいいね操作を記録する。
func (c *Collector) RecordReviewLike(action string) {
	c.reviewLikes.WithLabelValues(action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordLogsCreated(string, int)      {}
func (Nop) RecordLogDeleted()                  {}
func (Nop) RecordWeekendBatch(int)             {}
func (Nop) RecordConflict(string)              {}
func (Nop) RecordSpoilerResolution(string)     {}
func (Nop) RecordReviewLike(string)            {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
