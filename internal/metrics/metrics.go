// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 購読処理の結果ラベル
const (
	SubscriptionCreated   = "created"
	SubscriptionDuplicate = "duplicate"
	SubscriptionInvalid   = "invalid"
	SubscriptionError     = "error"
)

// SubscriptionRecorder は購読処理のメトリクス記録インターフェース。
type SubscriptionRecorder interface {
	RecordSubscription(result string)
	RecordSubscribeDuration(duration time.Duration)
}

// CacheRecorder はコンテンツキャッシュのメトリクス記録インターフェース。
type CacheRecorder interface {
	RecordCacheLookup(hit bool)
}

// HTTPRecorder はHTTPレスポンスのメトリクス記録インターフェース。
type HTTPRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	SubscriptionRecorder
	CacheRecorder
	HTTPRecorder
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	subscriptions    *prometheus.CounterVec
	subscribeLatency prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decrypt_subscriptions_total",
			Help: "購読リクエストの結果別件数",
		}, []string{"result"}),
		subscribeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "decrypt_subscribe_duration_seconds",
			Help:    "購読者作成トランザクションの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decrypt_content_cache_total",
			Help: "コンテンツキャッシュの参照結果別件数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decrypt_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.subscriptions,
		c.subscribeLatency,
		c.cacheLookups,
		c.httpStatus,
	)

	return c
}

// RecordSubscription は購読処理の結果を記録する。
func (c *Collector) RecordSubscription(result string) {
	c.subscriptions.WithLabelValues(result).Inc()
}

// RecordSubscribeDuration は購読者作成トランザクションの所要時間を記録する。
func (c *Collector) RecordSubscribeDuration(duration time.Duration) {
	c.subscribeLatency.Observe(duration.Seconds())
}

// RecordCacheLookup はキャッシュ参照のヒット/ミスを記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop は何も記録しないMetricsCollector。
// メトリクスを必要としないテストや補助コマンドで使用する。
type Noop struct{}

func (Noop) RecordSubscription(string)              {}
func (Noop) RecordSubscribeDuration(time.Duration) {}
func (Noop) RecordCacheLookup(bool)                 {}
func (Noop) RecordHTTPStatus(int)                   {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
