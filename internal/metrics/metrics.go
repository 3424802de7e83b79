// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess      = "success"
	LoginUnauthorized = "unauthorized"
	LoginUnconfirmed  = "unconfirmed"
)

// ガード拒否理由のラベル値
const (
	RejectMissingToken = "missing_token"
	RejectInvalidToken = "invalid_token"
	RejectRevoked      = "revoked"
	RejectForbidden    = "forbidden"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordSignup()
	RecordLogin(outcome string)
	RecordOTPEmailFailure()
	RecordGuardRejection(reason string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordTokensCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signups        prometheus.Counter
	logins         *prometheus.CounterVec
	otpEmailFail   prometheus.Counter
	guardRejects   *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	tokensCleaned  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estatehub_signups_total",
			Help: "ユーザー登録の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatehub_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		otpEmailFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estatehub_otp_email_fail_total",
			Help: "OTPメール送信失敗の合計数",
		}),
		guardRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatehub_guard_rejections_total",
			Help: "理由別の認可ガード拒否数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatehub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "estatehub_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokensCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estatehub_tokens_cleaned_total",
			Help: "クリーンアップで削除されたトークン台帳レコードの合計数",
		}),
	}

	reg.MustRegister(
		c.signups,
		c.logins,
		c.otpEmailFail,
		c.guardRejects,
		c.httpStatus,
		c.requestLatency,
		c.tokensCleaned,
	)

	return c
}

// RecordSignup はユーザー登録を記録する。
func (c *Collector) RecordSignup() {
	c.signups.Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordOTPEmailFailure はOTPメール送信失敗を記録する。
func (c *Collector) RecordOTPEmailFailure() {
	c.otpEmailFail.Inc()
}

// RecordGuardRejection はガードによる拒否を記録する。
func (c *Collector) RecordGuardRejection(reason string) {
	c.guardRejects.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordTokensCleaned は削除されたトークン台帳レコード数を記録する。
func (c *Collector) RecordTokensCleaned(count int64) {
	c.tokensCleaned.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordSignup()                      {}
func (Nop) RecordLogin(string)                 {}
func (Nop) RecordOTPEmailFailure()             {}
func (Nop) RecordGuardRejection(string)        {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordTokensCleaned(int64)          {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

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
