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
// ボット、AI解釈、ストア層から利用する。
type MetricsCollector interface {
	RecordDraw(source string)
	RecordDrawDenied()
	RecordInterpretFailure(class string)
	ObserveInterpretLatency(model string, d time.Duration)
	RecordStoreError(op string)
	RecordUpdate(command string)
	RecordTelegramStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	draws             *prometheus.CounterVec
	drawsDenied       prometheus.Counter
	interpretFailures *prometheus.CounterVec
	interpretLatency  *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	updates           *prometheus.CounterVec
	telegramStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fortunebot_draws_total",
			Help: "引かれたカードの合計数（解釈の種類別）",
		}, []string{"source"}),
		drawsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fortunebot_draws_denied_total",
			Help: "当日既に引いたため拒否されたリクエスト数",
		}),
		interpretFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fortunebot_interpret_failures_total",
			Help: "AI解釈の失敗数（失敗分類別）",
		}, []string{"class"}),
		interpretLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fortunebot_interpret_latency_seconds",
			Help:    "AI解釈1回の呼び出しレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fortunebot_store_errors_total",
			Help: "ユーザーデータストアのエラー数（操作別）",
		}, []string{"op"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fortunebot_updates_total",
			Help: "処理したTelegramアップデート数（コマンド別）",
		}, []string{"command"}),
		telegramStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fortunebot_telegram_http_status_total",
			Help: "Telegram Bot APIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.draws,
		c.drawsDenied,
		c.interpretFailures,
		c.interpretLatency,
		c.storeErrors,
		c.updates,
		c.telegramStatus,
	)

	return c
}

// RecordDraw はカードの引き当てを記録する。sourceは "ai" または "classic"。
func (c *Collector) RecordDraw(source string) {
	c.draws.WithLabelValues(source).Inc()
}

// RecordDrawDenied は当日2回目以降の拒否を記録する。
func (c *Collector) RecordDrawDenied() {
	c.drawsDenied.Inc()
}

// RecordInterpretFailure はAI解釈の失敗を記録する。
func (c *Collector) RecordInterpretFailure(class string) {
	c.interpretFailures.WithLabelValues(class).Inc()
}

// ObserveInterpretLatency はAI解釈のレイテンシを記録する。
func (c *Collector) ObserveInterpretLatency(model string, d time.Duration) {
	c.interpretLatency.WithLabelValues(model).Observe(d.Seconds())
}

// RecordStoreError はストア操作のエラーを記録する。
func (c *Collector) RecordStoreError(op string) {
	c.storeErrors.WithLabelValues(op).Inc()
}

// RecordUpdate は処理したアップデートを記録する。
func (c *Collector) RecordUpdate(command string) {
	c.updates.WithLabelValues(command).Inc()
}

// RecordTelegramStatus はBot APIのHTTPステータスコードを記録する。
func (c *Collector) RecordTelegramStatus(statusCode int) {
	c.telegramStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
