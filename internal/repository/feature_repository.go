package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

var ErrFeatureRecordNotFound = errors.New("feature record not found")

// featureColumns upsert 时覆盖的列
var featureColumns = []string{
	"tx_count_5m", "tx_count_1h", "tx_count_24h",
	"user_avg_amount", "amount_vs_user_avg",
	"is_foreign_country", "device_user_count",
	"merchant_fraud_rate", "category_fraud_rate",
	"as_of",
}

// FeatureRepository 特征仓储
type FeatureRepository struct {
	*Repository
}

// NewFeatureRepository 创建特征仓储
func NewFeatureRepository(db *gorm.DB) *FeatureRepository {
	return &FeatureRepository{Repository: NewRepository(db)}
}

// Upsert 按交易ID写入特征，已存在则覆盖
func (r *FeatureRepository) Upsert(ctx context.Context, record *model.FeatureRecord) error {
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoUpdates: clause.AssignmentColumns(featureColumns),
		}).
		Create(record).Error
}

// GetByTransactionID 根据交易ID获取特征
func (r *FeatureRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.FeatureRecord, error) {
	var record model.FeatureRecord
	err := r.DB(ctx).
		Where("transaction_id = ?", transactionID).
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeatureRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}
