// Package metrics 提供 eidos-fraud 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eidos_fraud"

// 评分指标
var (
	// ScoringDecisionsTotal 评分决策总数
	ScoringDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_decisions_total",
			Help:      "评分决策总数",
		},
		[]string{"decision", "source"}, // decision: approve/manual_review/block, source: create/rescore/backfill
	)

	// ScoringDuration 端到端评分耗时
	ScoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "端到端评分耗时(秒)",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"source"},
	)

	// RiskScoreHistogram 风险分分布
	RiskScoreHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score_distribution",
			Help:      "风险分分布",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// SchemaMismatchTotal 特征列与模型不一致次数
	SchemaMismatchTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_mismatch_total",
			Help:      "特征列与模型不一致次数",
		},
	)

	// ModelBundleLoaded 模型包是否已加载
	ModelBundleLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_bundle_loaded",
			Help:      "模型包是否已加载(1/0)",
		},
	)
)

// 特征指标
var (
	// FeatureDerivationDuration 特征计算耗时
	FeatureDerivationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feature_derivation_duration_seconds",
			Help:      "特征计算耗时(秒)",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	// FeatureBackfillTotal 补算特征数
	FeatureBackfillTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_backfill_total",
			Help:      "补算特征的交易数",
		},
	)

	// HomeCountryRefreshTotal 常驻国家刷新次数
	HomeCountryRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "home_country_refresh_total",
			Help:      "常驻国家刷新次数",
		},
		[]string{"trigger", "changed"}, // trigger: inline/maintenance
	)
)

// 人工审核指标
var (
	// ReviewActionsTotal 审核动作总数
	ReviewActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_actions_total",
			Help:      "审核动作总数",
		},
		[]string{"action", "outcome"},
	)
)

// 基础设施指标
var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP 请求耗时(秒)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// CacheRequestsTotal 评估缓存请求数
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessment_cache_requests_total",
			Help:      "评估缓存请求数",
		},
		[]string{"result"}, // hit/miss/error/stale_write
	)

	// KafkaMessagesProduced 发送的 Kafka 消息数
	KafkaMessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_produced_total",
			Help:      "发送的 Kafka 消息数",
		},
		[]string{"topic", "result"},
	)
)

// Helper functions

// RecordScoring 记录一次评分
func RecordScoring(decision, source string, score int, durationSeconds float64) {
	ScoringDecisionsTotal.WithLabelValues(decision, source).Inc()
	ScoringDuration.WithLabelValues(source).Observe(durationSeconds)
	RiskScoreHistogram.Observe(float64(score))
}

// RecordFeatureDerivation 记录特征计算
func RecordFeatureDerivation(durationSeconds float64) {
	FeatureDerivationDuration.Observe(durationSeconds)
}

// RecordSchemaMismatch 记录特征列不一致
func RecordSchemaMismatch() {
	SchemaMismatchTotal.Inc()
}

// SetModelBundleLoaded 设置模型包加载状态
func SetModelBundleLoaded(loaded bool) {
	if loaded {
		ModelBundleLoaded.Set(1)
		return
	}
	ModelBundleLoaded.Set(0)
}

// RecordHomeCountryRefresh 记录常驻国家刷新
func RecordHomeCountryRefresh(trigger string, changed bool) {
	c := "false"
	if changed {
		c = "true"
	}
	HomeCountryRefreshTotal.WithLabelValues(trigger, c).Inc()
}

// RecordBackfill 记录补算数量
func RecordBackfill(n int) {
	FeatureBackfillTotal.Add(float64(n))
}

// RecordReviewAction 记录审核动作
func RecordReviewAction(action, outcome string) {
	ReviewActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordCacheRequest 记录缓存请求
func RecordCacheRequest(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// RecordKafkaMessage 记录 Kafka 消息发送结果
func RecordKafkaMessage(topic string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	KafkaMessagesProduced.WithLabelValues(topic, result).Inc()
}
