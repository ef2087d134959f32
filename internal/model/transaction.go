package model

import "github.com/shopspring/decimal"

// FraudReasonConfirmedByReview 人工审核确认欺诈
const FraudReasonConfirmedByReview = "confirmed_by_review"

// Transaction 交易记录
// IsFraud / FraudReason 只由人工审核流程修改
type Transaction struct {
	TransactionID    string          `gorm:"column:transaction_id;type:varchar(64);primaryKey" json:"transaction_id"`
	UserID           string          `gorm:"column:user_id;type:varchar(64);not null;index:idx_fraud_tx_user_ts,priority:1" json:"user_id"`
	CardID           string          `gorm:"column:card_id;type:varchar(64);not null" json:"card_id"`
	DeviceID         string          `gorm:"column:device_id;type:varchar(64);not null;index" json:"device_id"`
	Amount           decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Currency         string          `gorm:"column:currency;type:varchar(8);not null;default:'USD'" json:"currency"`
	Merchant         string          `gorm:"column:merchant;type:varchar(128);not null;index" json:"merchant"`
	MerchantCategory string          `gorm:"column:merchant_category;type:varchar(64);not null;index" json:"merchant_category"`
	Country          string          `gorm:"column:country;type:varchar(8);not null" json:"country"`
	Timestamp        int64           `gorm:"column:timestamp;type:bigint;not null;index:idx_fraud_tx_user_ts,priority:2" json:"timestamp"` // 毫秒
	IsFraud          bool            `gorm:"column:is_fraud;not null;default:false" json:"is_fraud"`
	FraudReason      *string         `gorm:"column:fraud_reason;type:varchar(64)" json:"fraud_reason"`
}

// TableName 返回表名
func (Transaction) TableName() string {
	return "fraud_transactions"
}

// MarkConfirmedFraud 标记为审核确认的欺诈交易
func (t *Transaction) MarkConfirmedFraud() {
	reason := FraudReasonConfirmedByReview
	t.IsFraud = true
	t.FraudReason = &reason
}
