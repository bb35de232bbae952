// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerRecorder はAPIサーバーとワーカーが記録するメトリクスのインターフェース。
type ServerRecorder interface {
	RecordSignup(result string)
	RecordProfileRead(status int)
	RecordTokenVerification(result string)
	RecordProofCheck(result string)
}

// FetchRecorder はクライアントのプロフィール取得ループが記録するメトリクスのインターフェース。
type FetchRecorder interface {
	RecordFetchAttempt(outcome string)
	RecordRetryDelay(delay time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signups            *prometheus.CounterVec
	profileReads       *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	proofChecks        *prometheus.CounterVec
	fetchAttempts      *prometheus.CounterVec
	retryDelay         prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipnation_signup_total",
			Help: "サインアップ結果別の件数",
		}, []string{"result"}),
		profileReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipnation_profile_reads_total",
			Help: "プロフィール取得のHTTPステータス別件数",
		}, []string{"status"}),
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipnation_token_verifications_total",
			Help: "Bearerトークン検証結果別の件数",
		}, []string{"result"}),
		proofChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipnation_proof_checks_total",
			Help: "FTMO証跡URL到達確認の結果別件数",
		}, []string{"result"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipnation_profile_fetch_attempts_total",
			Help: "クライアントのプロフィール取得試行の結果別件数",
		}, []string{"outcome"}),
		retryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipnation_profile_fetch_retry_delay_seconds",
			Help:    "プロフィール取得リトライ前の待機時間（秒）",
			Buckets: []float64{0.5, 1, 1.5, 2, 3, 4, 6, 8},
		}),
	}

	reg.MustRegister(
		c.signups,
		c.profileReads,
		c.tokenVerifications,
		c.proofChecks,
		c.fetchAttempts,
		c.retryDelay,
	)

	return c
}

// RecordSignup はサインアップ結果を記録する。
func (c *Collector) RecordSignup(result string) {
	c.signups.WithLabelValues(result).Inc()
}

// RecordProfileRead はプロフィール取得の応答ステータスを記録する。
func (c *Collector) RecordProfileRead(status int) {
	c.profileReads.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordTokenVerification はトークン検証結果を記録する。
func (c *Collector) RecordTokenVerification(result string) {
	c.tokenVerifications.WithLabelValues(result).Inc()
}

// RecordProofCheck は証跡URL到達確認の結果を記録する。
func (c *Collector) RecordProofCheck(result string) {
	c.proofChecks.WithLabelValues(result).Inc()
}

// RecordFetchAttempt はプロフィール取得1回分の分類結果を記録する。
func (c *Collector) RecordFetchAttempt(outcome string) {
	c.fetchAttempts.WithLabelValues(outcome).Inc()
}

// RecordRetryDelay はリトライ前の待機時間を記録する。
func (c *Collector) RecordRetryDelay(delay time.Duration) {
	c.retryDelay.Observe(delay.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ ServerRecorder = (*Collector)(nil)
	_ FetchRecorder  = (*Collector)(nil)
)
