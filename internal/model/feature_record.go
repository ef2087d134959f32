package model

// 特征列名，与模型包的 feature_columns 对应
const (
	FeatureTxCount5m         = "tx_count_5m"
	FeatureTxCount1h         = "tx_count_1h"
	FeatureTxCount24h        = "tx_count_24h"
	FeatureUserAvgAmount     = "user_avg_amount"
	FeatureAmountVsUserAvg   = "amount_vs_user_avg"
	FeatureIsForeignCountry  = "is_foreign_country"
	FeatureDeviceUserCount   = "device_user_count"
	FeatureMerchantFraudRate = "merchant_fraud_rate"
	FeatureCategoryFraudRate = "category_fraud_rate"
)

// FeatureRecord 交易特征，与交易一一对应，可重复计算覆盖
type FeatureRecord struct {
	TransactionID     string  `gorm:"column:transaction_id;type:varchar(64);primaryKey" json:"transaction_id"`
	TxCount5m         int64   `gorm:"column:tx_count_5m;type:bigint;not null" json:"tx_count_5m"`
	TxCount1h         int64   `gorm:"column:tx_count_1h;type:bigint;not null" json:"tx_count_1h"`
	TxCount24h        int64   `gorm:"column:tx_count_24h;type:bigint;not null" json:"tx_count_24h"`
	UserAvgAmount     float64 `gorm:"column:user_avg_amount;not null" json:"user_avg_amount"`
	AmountVsUserAvg   float64 `gorm:"column:amount_vs_user_avg;not null" json:"amount_vs_user_avg"`
	IsForeignCountry  bool    `gorm:"column:is_foreign_country;not null" json:"is_foreign_country"`
	DeviceUserCount   int64   `gorm:"column:device_user_count;type:bigint;not null" json:"device_user_count"`
	MerchantFraudRate float64 `gorm:"column:merchant_fraud_rate;not null" json:"merchant_fraud_rate"`
	CategoryFraudRate float64 `gorm:"column:category_fraud_rate;not null" json:"category_fraud_rate"`
	// AsOf 特征对应的时间点，即交易时间(毫秒)，同一交易重复计算结果不变
	AsOf int64 `gorm:"column:as_of;type:bigint;not null" json:"as_of"`
}

// TableName 返回表名
func (FeatureRecord) TableName() string {
	return "fraud_transaction_features"
}

// Value 按列名取特征值，bool 转为 0/1
func (f *FeatureRecord) Value(column string) (float64, bool) {
	switch column {
	case FeatureTxCount5m:
		return float64(f.TxCount5m), true
	case FeatureTxCount1h:
		return float64(f.TxCount1h), true
	case FeatureTxCount24h:
		return float64(f.TxCount24h), true
	case FeatureUserAvgAmount:
		return f.UserAvgAmount, true
	case FeatureAmountVsUserAvg:
		return f.AmountVsUserAvg, true
	case FeatureIsForeignCountry:
		if f.IsForeignCountry {
			return 1, true
		}
		return 0, true
	case FeatureDeviceUserCount:
		return float64(f.DeviceUserCount), true
	case FeatureMerchantFraudRate:
		return f.MerchantFraudRate, true
	case FeatureCategoryFraudRate:
		return f.CategoryFraudRate, true
	default:
		return 0, false
	}
}
