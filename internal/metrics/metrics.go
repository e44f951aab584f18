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
// ゲートウェイの分類結果と同期トラッカーの挙動を観測する。
type Collector struct {
	requests    *prometheus.CounterVec
	signals     *prometheus.CounterVec
	polls       *prometheus.CounterVec
	stalePolls  *prometheus.CounterVec
	syncs       *prometheus.CounterVec
	syncSeconds prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_requests_total",
			Help: "バックエンドへのリクエスト数（メソッド・ステータス別）",
		}, []string{"method", "status"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_signals_total",
			Help: "発火したプロセス全体シグナルの数（種別ごと）",
		}, []string{"kind"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_sync_polls_total",
			Help: "同期ジョブのステータスポーリング数（プロバイダ別）",
		}, []string{"provider"}),
		stalePolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_sync_stale_polls_dropped_total",
			Help: "世代不一致で破棄されたポーリング結果の数（プロバイダ別）",
		}, []string{"provider"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_syncs_total",
			Help: "終了した同期ジョブの数（プロバイダ・結果別）",
		}, []string{"provider", "result"}),
		syncSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthsync_sync_duration_seconds",
			Help:    "同期ジョブの開始から終了までの時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	reg.MustRegister(
		c.requests,
		c.signals,
		c.polls,
		c.stalePolls,
		c.syncs,
		c.syncSeconds,
	)

	return c
}

// RecordRequest はバックエンドリクエストの結果を記録する。
// statusCodeが0の場合はネットワークエラーとして記録する。
func (c *Collector) RecordRequest(method string, statusCode int) {
	status := "network_error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	c.requests.WithLabelValues(method, status).Inc()
}

// RecordSignal はプロセス全体シグナルの発火を記録する。
func (c *Collector) RecordSignal(kind string) {
	c.signals.WithLabelValues(kind).Inc()
}

// RecordPoll はステータスポーリングの実行を記録する。
func (c *Collector) RecordPoll(provider string) {
	c.polls.WithLabelValues(provider).Inc()
}

// RecordStalePollDropped は世代不一致による破棄を記録する。
func (c *Collector) RecordStalePollDropped(provider string) {
	c.stalePolls.WithLabelValues(provider).Inc()
}

// RecordSyncFinished は同期ジョブの終了を記録する。
func (c *Collector) RecordSyncFinished(provider string, failed bool, duration time.Duration) {
	result := "complete"
	if failed {
		result = "errored"
	}
	c.syncs.WithLabelValues(provider, result).Inc()
	c.syncSeconds.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
