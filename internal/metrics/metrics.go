// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、セッション、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordBackendRequest(resource string, status int, d time.Duration)
	RecordSessionInvalidation(reason string)
	RecordLogin(result string)
	RecordHTTPRequest(method, route string, status int, d time.Duration)
	RecordCleanup(deleted int64)
}

// ログイン結果のラベル値
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	invalidations   *prometheus.CounterVec
	logins          *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	cleanupDeleted  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchadmin_backend_requests_total",
			Help: "バックエンドAPI呼び出しの合計数（リソース・ステータス別）",
		}, []string{"resource", "status_code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churchadmin_backend_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchadmin_session_invalidations_total",
			Help: "認証エラーによる強制ログアウトの合計数",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchadmin_logins_total",
			Help: "ログイン試行の合計数（結果別）",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchadmin_http_requests_total",
			Help: "ブラウザからのHTTPリクエストの合計数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churchadmin_http_latency_seconds",
			Help:    "ブラウザからのHTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "churchadmin_cleanup_deleted_total",
			Help: "クリーンアップで削除されたクライアント状態の合計数",
		}),
	}

	reg.MustRegister(
		c.backendRequests,
		c.backendLatency,
		c.invalidations,
		c.logins,
		c.httpRequests,
		c.httpLatency,
		c.cleanupDeleted,
	)

	return c
}

// RecordBackendRequest はバックエンドAPI呼び出しを記録する。
// 接続エラーはステータス0として記録される。
func (c *Collector) RecordBackendRequest(resource string, status int, d time.Duration) {
	c.backendRequests.WithLabelValues(resource, strconv.Itoa(status)).Inc()
	c.backendLatency.WithLabelValues(resource).Observe(d.Seconds())
}

// RecordSessionInvalidation は強制ログアウトを記録する。
func (c *Collector) RecordSessionInvalidation(reason string) {
	c.invalidations.WithLabelValues(reason).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordHTTPRequest はHTTPリクエストを記録する。
// routeにはchiのルートパターンを渡し、ラベルの種類が増えすぎないようにする。
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

// RecordCleanup はクリーンアップで削除された件数を記録する。
func (c *Collector) RecordCleanup(deleted int64) {
	c.cleanupDeleted.Add(float64(deleted))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// workerプロセスのスクレイプ用に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
