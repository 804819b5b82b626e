// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値。
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultInvalid = "invalid"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやミドルウェア、起動処理から利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordOrder(result string)
	RecordVerification(result string)
	RecordStoreFallback(backend string)
	RecordHTTPStatus(statusCode int)
	RecordGatewayLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	orders         *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	storeFallbacks *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	gatewayLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_logins_total",
			Help: "ログイン完了処理の結果別件数",
		}, []string{"result"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_orders_total",
			Help: "注文作成の結果別件数",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_verifications_total",
			Help: "決済署名検証の結果別件数",
		}, []string{"result"}),
		storeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_session_store_fallback_total",
			Help: "セッションストアがメモリストアに切り替わった回数",
		}, []string{"backend"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paygate_gateway_latency_seconds",
			Help:    "決済ゲートウェイ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.orders,
		c.verifications,
		c.storeFallbacks,
		c.httpStatus,
		c.gatewayLatency,
	)

	return c
}

// RecordLogin はログイン完了処理の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordOrder は注文作成の結果を記録する。
func (c *Collector) RecordOrder(result string) {
	c.orders.WithLabelValues(result).Inc()
}

// RecordVerification は署名検証の結果を記録する。
func (c *Collector) RecordVerification(result string) {
	c.verifications.WithLabelValues(result).Inc()
}

// RecordStoreFallback は設定されたストアの代わりにメモリストアを使用したことを記録する。
func (c *Collector) RecordStoreFallback(backend string) {
	c.storeFallbacks.WithLabelValues(backend).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordGatewayLatency はゲートウェイ呼び出しのレイテンシを記録する。
func (c *Collector) RecordGatewayLatency(duration time.Duration) {
	c.gatewayLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
