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
// サービス層とハンドラー層から利用する。
type MetricsCollector interface {
	RecordComputeRun(latency time.Duration)
	RecordRejectedDates(count int)
	RecordStoreWriteFailure(operation string)
	RecordChangeNotification()
	RecordHTTPStatus(statusCode int)
	SetStreamClients(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	computeRuns        prometheus.Counter
	computeLatency     prometheus.Histogram
	rejectedDates      prometheus.Counter
	storeWriteFailures *prometheus.CounterVec
	changeNotifies     prometheus.Counter
	httpStatus         *prometheus.CounterVec
	streamClients      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		computeRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "availcal_compute_runs_total",
			Help: "共有可能日計算の実行回数",
		}),
		computeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "availcal_compute_latency_seconds",
			Help:    "共有可能日計算のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rejectedDates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "availcal_rejected_dates_total",
			Help: "正規化で棄却された日付の合計数",
		}),
		storeWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "availcal_store_write_failures_total",
			Help: "永続化ストアへの書き込み失敗数（操作別）",
		}, []string{"operation"}),
		changeNotifies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "availcal_change_notifications_total",
			Help: "受信した変更通知の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "availcal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "availcal_stream_clients",
			Help: "接続中のSSEストリームクライアント数",
		}),
	}

	reg.MustRegister(
		c.computeRuns,
		c.computeLatency,
		c.rejectedDates,
		c.storeWriteFailures,
		c.changeNotifies,
		c.httpStatus,
		c.streamClients,
	)

	return c
}

// RecordComputeRun は計算の実行とそのレイテンシを記録する。
func (c *Collector) RecordComputeRun(latency time.Duration) {
	c.computeRuns.Inc()
	c.computeLatency.Observe(latency.Seconds())
}

// RecordRejectedDates は正規化で棄却された日付数を記録する。
func (c *Collector) RecordRejectedDates(count int) {
	c.rejectedDates.Add(float64(count))
}

// RecordStoreWriteFailure はストアへの書き込み失敗を操作別に記録する。
func (c *Collector) RecordStoreWriteFailure(operation string) {
	c.storeWriteFailures.WithLabelValues(operation).Inc()
}

// RecordChangeNotification は変更通知の受信を記録する。
func (c *Collector) RecordChangeNotification() {
	c.changeNotifies.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetStreamClients は接続中のSSEクライアント数を設定する。
func (c *Collector) SetStreamClients(count int) {
	c.streamClients.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
