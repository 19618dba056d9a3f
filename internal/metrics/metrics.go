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
// ハンドラー、サービス層、リポジトリ、ワーカーから利用する。
type MetricsCollector interface {
	// RecordLogin はTelegramログインの結果を記録する。flowはjson/callback/link、resultはsuccess/invalid_signature等。
	RecordLogin(flow, result string)
	RecordWebhookCommand(command string)
	RecordBotAPIFailure(method string)
	RecordCacheLookup(hit bool)
	RecordStoreRetry(attempt int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordCleanupDeleted(kind string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	webhookCmds    *prometheus.CounterVec
	botAPIFail     *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	storeRetries   *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	cleanupDeleted *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentcam_telegram_login_total",
			Help: "Telegramログインの結果別件数",
		}, []string{"flow", "result"}),
		webhookCmds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentcam_webhook_command_total",
			Help: "Webhookで受信したコマンド別件数",
		}, []string{"command"}),
		botAPIFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentcam_bot_api_failure_total",
			Help: "Bot API呼び出し失敗のメソッド別件数",
		}, []string{"method"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentcam_bot_id_cache_lookup_total",
			Help: "ボットIDキャッシュの参照結果別件数",
		}, []string{"result"}),
		storeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentcam_store_retry_total",
			Help: "ストア呼び出しのリトライ回数",
		}, []string{"attempt"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentcam_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rentcam_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentcam_cleanup_deleted_total",
			Help: "クリーンアップジョブで削除したレコード数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.logins,
		c.webhookCmds,
		c.botAPIFail,
		c.cacheLookups,
		c.storeRetries,
		c.httpStatus,
		c.requestLatency,
		c.cleanupDeleted,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(flow, result string) {
	c.logins.WithLabelValues(flow, result).Inc()
}

// RecordWebhookCommand はWebhookコマンドの受信を記録する。
func (c *Collector) RecordWebhookCommand(command string) {
	c.webhookCmds.WithLabelValues(command).Inc()
}

// RecordBotAPIFailure はBot API呼び出しの失敗を記録する。
func (c *Collector) RecordBotAPIFailure(method string) {
	c.botAPIFail.WithLabelValues(method).Inc()
}

// RecordCacheLookup はボットIDキャッシュのヒット/ミスを記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordStoreRetry はストア呼び出しのリトライを記録する。
func (c *Collector) RecordStoreRetry(attempt int) {
	c.storeRetries.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordCleanupDeleted はクリーンアップで削除した件数を記録する。
func (c *Collector) RecordCleanupDeleted(kind string, count int64) {
	c.cleanupDeleted.WithLabelValues(kind).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを無効にする場合やテストで使用する。
type Nop struct{}

func (Nop) RecordLogin(string, string) {}
func (Nop) RecordWebhookCommand(string) {}
func (Nop) RecordBotAPIFailure(string) {}
func (Nop) RecordCacheLookup(bool) {}
func (Nop) RecordStoreRetry(int) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordCleanupDeleted(string, int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
