package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

// ReviewActionRepository 审核记录仓储，只追加
type ReviewActionRepository struct {
	*Repository
}

// NewReviewActionRepository 创建审核记录仓储
func NewReviewActionRepository(db *gorm.DB) *ReviewActionRepository {
	return &ReviewActionRepository{Repository: NewRepository(db)}
}

// Create 追加审核记录
func (r *ReviewActionRepository) Create(ctx context.Context, action *model.ReviewAction) error {
	if action.CreatedAt == 0 {
		action.CreatedAt = time.Now().UnixMilli()
	}
	return r.DB(ctx).Create(action).Error
}

// ListByTransaction 查询交易的审核历史，最新的在前
func (r *ReviewActionRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*model.ReviewAction, error) {
	var actions []*model.ReviewAction
	err := r.DB(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at DESC, id DESC").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// CountApplied 统计交易已生效的审核记录数
func (r *ReviewActionRepository) CountApplied(ctx context.Context, transactionID string) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.ReviewAction{}).
		Where("transaction_id = ? AND outcome = ?", transactionID, model.ReviewOutcomeApplied).
		Count(&count).Error
	return count, err
}
