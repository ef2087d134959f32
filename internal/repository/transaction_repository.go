package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrTransactionDuplicate = errors.New("transaction already exists")
)

// TransactionFilter 交易列表过滤条件
type TransactionFilter struct {
	IsFraud  *bool
	UserID   string
	CardID   string
	Merchant string
}

// VelocityCounts 滑动窗口交易数
type VelocityCounts struct {
	Count5m  int64 `gorm:"column:c5m"`
	Count1h  int64 `gorm:"column:c1h"`
	Count24h int64 `gorm:"column:c24h"`
}

// FraudCounts 欺诈交易计数
type FraudCounts struct {
	Total int64 `gorm:"column:total"`
	Fraud int64 `gorm:"column:fraud"`
}

// Rate 欺诈率，无交易时为 0
func (c FraudCounts) Rate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Fraud) / float64(c.Total)
}

// TransactionRepository 交易仓储
type TransactionRepository struct {
	*Repository
}

// NewTransactionRepository 创建交易仓储
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{Repository: NewRepository(db)}
}

// Create 创建交易
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	result := r.DB(ctx).Create(tx)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrTransactionDuplicate
		}
		return result.Error
	}
	return nil
}

// GetByID 根据交易ID获取
func (r *TransactionRepository) GetByID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	var tx model.Transaction
	err := r.DB(ctx).
		Where("transaction_id = ?", transactionID).
		First(&tx).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// List 按时间倒序查询交易
func (r *TransactionRepository) List(ctx context.Context, filter *TransactionFilter, pagination *Pagination) ([]*model.Transaction, error) {
	query := r.DB(ctx).Model(&model.Transaction{})
	if filter != nil {
		if filter.IsFraud != nil {
			query = query.Where("is_fraud = ?", *filter.IsFraud)
		}
		if filter.UserID != "" {
			query = query.Where("user_id = ?", filter.UserID)
		}
		if filter.CardID != "" {
			query = query.Where("card_id = ?", filter.CardID)
		}
		if filter.Merchant != "" {
			query = query.Where("merchant = ?", filter.Merchant)
		}
	}

	var txs []*model.Transaction
	err := query.
		Order("timestamp DESC, transaction_id DESC").
		Offset(pagination.Offset).
		Limit(pagination.Limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// MarkConfirmedFraud 审核确认欺诈
func (r *TransactionRepository) MarkConfirmedFraud(ctx context.Context, transactionID string) error {
	result := r.DB(ctx).
		Model(&model.Transaction{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"is_fraud":     true,
			"fraud_reason": model.FraudReasonConfirmedByReview,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// CountVelocity 统计用户在 [t-window, t] 内的交易数，包含锚点交易
func (r *TransactionRepository) CountVelocity(ctx context.Context, userID string, anchor, from5m, from1h, from24h int64) (*VelocityCounts, error) {
	var counts VelocityCounts
	err := r.DB(ctx).
		Model(&model.Transaction{}).
		Select(
			"COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0) AS c5m, "+
				"COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0) AS c1h, "+
				"COUNT(*) AS c24h",
			from5m, from1h,
		).
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", userID, from24h, anchor).
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return &counts, nil
}

// UserAverageAmount 用户截至 upTo (含) 的平均交易金额，无交易时为 0
func (r *TransactionRepository) UserAverageAmount(ctx context.Context, userID string, upTo int64) (decimal.Decimal, error) {
	var row struct {
		Total decimal.NullDecimal `gorm:"column:total"`
		Cnt   int64               `gorm:"column:cnt"`
	}
	err := r.DB(ctx).
		Model(&model.Transaction{}).
		Select("SUM(amount) AS total, COUNT(*) AS cnt").
		Where("user_id = ? AND timestamp <= ?", userID, upTo).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	if row.Cnt == 0 || !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal.Div(decimal.NewFromInt(row.Cnt)), nil
}

// DeviceUserCount 设备上出现过的不同用户数，upTo 为 nil 时统计全部历史
func (r *TransactionRepository) DeviceUserCount(ctx context.Context, deviceID string, upTo *int64) (int64, error) {
	var count int64
	query := r.DB(ctx).
		Model(&model.Transaction{}).
		Where("device_id = ?", deviceID)
	if upTo != nil {
		query = query.Where("timestamp <= ?", *upTo)
	}
	err := query.Distinct("user_id").Count(&count).Error
	return count, err
}

// MerchantFraudCounts 商户欺诈计数，upTo 为 nil 时统计全部历史
func (r *TransactionRepository) MerchantFraudCounts(ctx context.Context, merchant string, upTo *int64) (FraudCounts, error) {
	return r.fraudCounts(ctx, "merchant", merchant, upTo)
}

// CategoryFraudCounts 类目欺诈计数，upTo 为 nil 时统计全部历史
func (r *TransactionRepository) CategoryFraudCounts(ctx context.Context, category string, upTo *int64) (FraudCounts, error) {
	return r.fraudCounts(ctx, "merchant_category", category, upTo)
}

func (r *TransactionRepository) fraudCounts(ctx context.Context, column, value string, upTo *int64) (FraudCounts, error) {
	var counts FraudCounts
	query := r.DB(ctx).
		Model(&model.Transaction{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN is_fraud THEN 1 ELSE 0 END), 0) AS fraud").
		Where(column+" = ?", value)
	if upTo != nil {
		query = query.Where("timestamp <= ?", *upTo)
	}
	err := query.Scan(&counts).Error
	return counts, err
}

// ModeCountry 用户出现次数最多的交易国家，并列时取最早出现的
// 用户没有交易时返回空字符串
func (r *TransactionRepository) ModeCountry(ctx context.Context, userID string) (string, error) {
	var rows []struct {
		Country   string `gorm:"column:country"`
		Cnt       int64  `gorm:"column:cnt"`
		FirstSeen int64  `gorm:"column:first_seen"`
	}
	err := r.DB(ctx).
		Model(&model.Transaction{}).
		Select("country, COUNT(*) AS cnt, MIN(timestamp) AS first_seen").
		Where("user_id = ?", userID).
		Group("country").
		Order("cnt DESC, first_seen ASC, country ASC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Country, nil
}

// ListMissingFeatures 按时间升序查询尚未计算特征的交易
func (r *TransactionRepository) ListMissingFeatures(ctx context.Context, limit int) ([]*model.Transaction, error) {
	var txs []*model.Transaction
	err := r.DB(ctx).
		Table(model.Transaction{}.TableName()+" AS t").
		Select("t.*").
		Joins("LEFT JOIN "+model.FeatureRecord{}.TableName()+" AS f ON f.transaction_id = t.transaction_id").
		Where("f.transaction_id IS NULL").
		Order("t.timestamp ASC, t.transaction_id ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// FraudTotals 全量欺诈统计
func (r *TransactionRepository) FraudTotals(ctx context.Context) (FraudCounts, error) {
	var counts FraudCounts
	err := r.DB(ctx).
		Model(&model.Transaction{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN is_fraud THEN 1 ELSE 0 END), 0) AS fraud").
		Scan(&counts).Error
	return counts, err
}
