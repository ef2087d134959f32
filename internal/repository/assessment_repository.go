package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

var (
	ErrAssessmentNotFound = errors.New("risk assessment not found")
	ErrVersionConflict    = errors.New("risk assessment version conflict")
)

// QueueItem 人工审核队列条目
type QueueItem struct {
	TransactionID    string          `gorm:"column:transaction_id" json:"transaction_id"`
	RiskScore        int             `gorm:"column:risk_score" json:"risk_score"`
	FraudProbability float64         `gorm:"column:fraud_probability" json:"fraud_probability"`
	Decision         model.Decision  `gorm:"column:decision" json:"decision"`
	Version          int64           `gorm:"column:version" json:"version"`
	CreatedAt        int64           `gorm:"column:created_at" json:"created_at"`
	UserID           string          `gorm:"column:user_id" json:"user_id"`
	Amount           decimal.Decimal `gorm:"column:amount" json:"amount"`
	Merchant         string          `gorm:"column:merchant" json:"merchant"`
	Country          string          `gorm:"column:country" json:"country"`
	Timestamp        int64           `gorm:"column:timestamp" json:"timestamp"`
}

// AssessmentRepository 风险评估仓储
type AssessmentRepository struct {
	*Repository
}

// NewAssessmentRepository 创建风险评估仓储
func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{Repository: NewRepository(db)}
}

// Upsert 写入评估结果
// 已存在时覆盖评分与决策，保留 created_at，version 加一
func (r *AssessmentRepository) Upsert(ctx context.Context, a *model.RiskAssessment) error {
	now := time.Now().UnixMilli()
	if a.CreatedAt == 0 {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Version == 0 {
		a.Version = 1
	}

	updates := clause.AssignmentColumns([]string{
		"fraud_probability", "risk_score", "decision", "reasons", "updated_at",
	})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr(model.RiskAssessment{}.TableName() + ".version + 1"),
	})

	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoUpdates: updates,
		}).
		Create(a).Error
}

// GetByTransactionID 根据交易ID获取评估
func (r *AssessmentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.RiskAssessment, error) {
	var a model.RiskAssessment
	err := r.DB(ctx).
		Where("transaction_id = ?", transactionID).
		First(&a).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// UpdateDecision 更新决策并递增版本
// expectedVersion 不为 nil 时做乐观锁校验，版本不一致返回 ErrVersionConflict
func (r *AssessmentRepository) UpdateDecision(ctx context.Context, transactionID string, decision model.Decision, expectedVersion *int64) error {
	query := r.DB(ctx).
		Model(&model.RiskAssessment{}).
		Where("transaction_id = ?", transactionID)
	if expectedVersion != nil {
		query = query.Where("version = ?", *expectedVersion)
	}

	result := query.Updates(map[string]interface{}{
		"decision":   decision,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UnixMilli(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if expectedVersion != nil {
			return ErrVersionConflict
		}
		return ErrAssessmentNotFound
	}
	return nil
}

// ListQueue 按创建时间倒序查询待人工审核的评估
func (r *AssessmentRepository) ListQueue(ctx context.Context, pagination *Pagination) ([]*QueueItem, error) {
	var items []*QueueItem
	err := r.DB(ctx).
		Table(model.RiskAssessment{}.TableName()+" AS ra").
		Select("ra.transaction_id, ra.risk_score, ra.fraud_probability, ra.decision, ra.version, ra.created_at, " +
			"t.user_id, t.amount, t.merchant, t.country, t.timestamp").
		Joins("JOIN " + model.Transaction{}.TableName() + " AS t ON t.transaction_id = ra.transaction_id").
		Where("ra.decision = ?", model.DecisionManualReview).
		Order("ra.created_at DESC, ra.transaction_id ASC").
		Offset(pagination.Offset).
		Limit(pagination.Limit).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
