// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 開示結果のラベル値
const (
	RevealRevealed            = "revealed"
	RevealAlreadyRevealed     = "already_revealed"
	RevealInsufficientCredits = "insufficient_credits"
	RevealTransient           = "transient"
	RevealMalformed           = "malformed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordSearchLatency(duration time.Duration)
	RecordSearchFailure(reason string)
	RecordReveal(outcome string)
	RecordPaywallRedirect()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheHit        prometheus.Counter
	cacheMiss       prometheus.Counter
	searchLatency   prometheus.Histogram
	searchFail      *prometheus.CounterVec
	reveals         *prometheus.CounterVec
	paywallRedirect prometheus.Counter
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたRegistererに登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creatorships_search_cache_hit_total",
			Help: "クリエイター検索キャッシュのヒット数",
		}),
		cacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creatorships_search_cache_miss_total",
			Help: "クリエイター検索キャッシュのミス数",
		}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "creatorships_search_backend_latency_seconds",
			Help:    "クリエイター検索のバックエンド呼び出しレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		searchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "creatorships_search_fail_total",
			Help: "クリエイター検索の失敗数",
		}, []string{"reason"}),
		reveals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "creatorships_reveal_total",
			Help: "メールアドレス開示の結果別件数",
		}, []string{"outcome"}),
		paywallRedirect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creatorships_paywall_redirect_total",
			Help: "無料枠超過による購読ページへの誘導数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "creatorships_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cacheHit,
		c.cacheMiss,
		c.searchLatency,
		c.searchFail,
		c.reveals,
		c.paywallRedirect,
		c.httpStatus,
	)

	return c
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHit.Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMiss.Inc()
}

// RecordSearchLatency はバックエンド検索のレイテンシを記録する。
func (c *Collector) RecordSearchLatency(duration time.Duration) {
	c.searchLatency.Observe(duration.Seconds())
}

// RecordSearchFailure は検索失敗を理由別に記録する。
func (c *Collector) RecordSearchFailure(reason string) {
	c.searchFail.WithLabelValues(reason).Inc()
}

// RecordReveal は開示結果を記録する。
func (c *Collector) RecordReveal(outcome string) {
	c.reveals.WithLabelValues(outcome).Inc()
}

// RecordPaywallRedirect は購読ページへの誘導を記録する。
func (c *Collector) RecordPaywallRedirect() {
	c.paywallRedirect.Inc()
}

// RecordHTTPStatus はHTTPステータスコード別のレスポンス数を記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストとメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordCacheHit()                   {}
func (Nop) RecordCacheMiss()                  {}
func (Nop) RecordSearchLatency(time.Duration) {}
func (Nop) RecordSearchFailure(string)        {}
func (Nop) RecordReveal(string)               {}
func (Nop) RecordPaywallRedirect()            {}
func (Nop) RecordHTTPStatus(int)              {}

// Handler はPrometheusメトリクスを公開するHTTPハンドラを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
