// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// リクエストパイプラインとプロキシハンドラーの両方から記録される。
type Collector struct {
	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	apiFailures   *prometheus.CounterVec
	invalidations prometheus.Counter
	proxyRequests *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archbuilder_api_requests_total",
			Help: "バックエンドAPI呼び出しのレスポンス数",
		}, []string{"method", "policy", "status_class"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archbuilder_api_request_duration_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		apiFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archbuilder_api_failures_total",
			Help: "失敗分類別のバックエンドAPI呼び出し失敗数",
		}, []string{"kind"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archbuilder_credential_invalidations_total",
			Help: "401によるトークン削除の合計数",
		}),
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archbuilder_proxy_requests_total",
			Help: "認証プロキシのルート・ステータス別レスポンス数",
		}, []string{"route", "status_code"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.apiFailures,
		c.invalidations,
		c.proxyRequests,
	)

	return c
}

// RecordAPIRequest はレスポンスを受信したAPI呼び出しを記録する。
func (c *Collector) RecordAPIRequest(method, policyClass string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(method, policyClass, statusClass(statusCode)).Inc()
	c.apiLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordAPIFailure はAPI呼び出しの失敗を記録する。
func (c *Collector) RecordAPIFailure(kind string) {
	c.apiFailures.WithLabelValues(kind).Inc()
}

// RecordCredentialInvalidation はトークン削除を記録する。
func (c *Collector) RecordCredentialInvalidation() {
	c.invalidations.Inc()
}

// RecordProxyRequest はプロキシのレスポンスを記録する。
func (c *Collector) RecordProxyRequest(route string, statusCode int) {
	c.proxyRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
}

// statusClass はステータスコードを"2xx"のような分類に変換する。
func statusClass(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "other"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
