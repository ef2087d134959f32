package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

// DecisionSummary 决策汇总
type DecisionSummary struct {
	Total        int64 `gorm:"column:total" json:"total"`
	Approve      int64 `gorm:"column:approve" json:"approve"`
	ManualReview int64 `gorm:"column:manual_review" json:"manual_review"`
	Block        int64 `gorm:"column:block" json:"block"`
}

// ScoreBucket 风险分分桶
type ScoreBucket struct {
	Bucket string `gorm:"column:bucket" json:"bucket"`
	Count  int64  `gorm:"column:count" json:"count"`
}

// MerchantRisk 商户风险汇总
type MerchantRisk struct {
	Merchant string  `gorm:"column:merchant" json:"merchant"`
	TxCount  int64   `gorm:"column:tx_count" json:"tx_count"`
	AvgRisk  float64 `gorm:"column:avg_risk" json:"avg_risk"`
	Blocks   int64   `gorm:"column:blocks" json:"blocks"`
	Reviews  int64   `gorm:"column:reviews" json:"reviews"`
}

// MonitoringRepository 监控只读聚合
type MonitoringRepository struct {
	*Repository
}

// NewMonitoringRepository 创建监控仓储
func NewMonitoringRepository(db *gorm.DB) *MonitoringRepository {
	return &MonitoringRepository{Repository: NewRepository(db)}
}

// Summary 统计 since 之后创建的评估决策分布
func (r *MonitoringRepository) Summary(ctx context.Context, since int64) (*DecisionSummary, error) {
	var s DecisionSummary
	err := r.DB(ctx).
		Model(&model.RiskAssessment{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN decision = ? THEN 1 ELSE 0 END), 0) AS approve, "+
			"COALESCE(SUM(CASE WHEN decision = ? THEN 1 ELSE 0 END), 0) AS manual_review, "+
			"COALESCE(SUM(CASE WHEN decision = ? THEN 1 ELSE 0 END), 0) AS block",
			model.DecisionApprove, model.DecisionManualReview, model.DecisionBlock).
		Where("created_at >= ?", since).
		Scan(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ScoreBuckets 按 0-29/30-59/60-89/90-100 分桶统计
func (r *MonitoringRepository) ScoreBuckets(ctx context.Context, since int64) ([]*ScoreBucket, error) {
	var buckets []*ScoreBucket
	err := r.DB(ctx).
		Model(&model.RiskAssessment{}).
		Select("CASE " +
			"WHEN risk_score >= 90 THEN '90-100' " +
			"WHEN risk_score >= 60 THEN '60-89' " +
			"WHEN risk_score >= 30 THEN '30-59' " +
			"ELSE '0-29' END AS bucket, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("bucket").
		Order("bucket").
		Scan(&buckets).Error
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// TopMerchants 平均风险分最高的商户
func (r *MonitoringRepository) TopMerchants(ctx context.Context, since int64, limit int) ([]*MerchantRisk, error) {
	var merchants []*MerchantRisk
	err := r.DB(ctx).
		Table(model.RiskAssessment{}.TableName()+" AS ra").
		Select("t.merchant AS merchant, COUNT(*) AS tx_count, AVG(ra.risk_score) AS avg_risk, "+
			"COALESCE(SUM(CASE WHEN ra.decision = ? THEN 1 ELSE 0 END), 0) AS blocks, "+
			"COALESCE(SUM(CASE WHEN ra.decision = ? THEN 1 ELSE 0 END), 0) AS reviews",
			model.DecisionBlock, model.DecisionManualReview).
		Joins("JOIN "+model.Transaction{}.TableName()+" AS t ON t.transaction_id = ra.transaction_id").
		Where("ra.created_at >= ?", since).
		Group("t.merchant").
		Order("avg_risk DESC, t.merchant ASC").
		Limit(limit).
		Scan(&merchants).Error
	if err != nil {
		return nil, err
	}
	return merchants, nil
}
