package model

import "github.com/shopspring/decimal"

// 新用户维度默认值
const (
	DefaultAccountAgeDays = 30
	DefaultCardIssuer     = "Visa"
	DefaultDeviceType     = "mobile"
)

// DefaultAvgTransactionAmount 新用户历史均额默认值
var DefaultAvgTransactionAmount = decimal.NewFromInt(100)

// User 用户维度
type User struct {
	UserID               string          `gorm:"column:user_id;type:varchar(64);primaryKey" json:"user_id"`
	HomeCountry          string          `gorm:"column:home_country;type:varchar(8)" json:"home_country"` // 出现次数最多的交易国家
	AccountAgeDays       int             `gorm:"column:account_age_days;type:int;not null" json:"account_age_days"`
	AvgTransactionAmount decimal.Decimal `gorm:"column:avg_transaction_amount;type:decimal(18,2);not null" json:"avg_transaction_amount"`
	// HomeCountryRefreshedAt 常驻国家最近一次重新计算时间(毫秒)
	HomeCountryRefreshedAt int64 `gorm:"column:home_country_refreshed_at;type:bigint;not null;default:0" json:"home_country_refreshed_at"`
	CreatedAt              int64 `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (User) TableName() string {
	return "fraud_users"
}

// HasHomeCountry 是否已知常驻国家
func (u *User) HasHomeCountry() bool {
	return u.HomeCountry != ""
}

// IsHomeCountryStale 常驻国家是否超过刷新间隔
func (u *User) IsHomeCountryStale(now int64, maxStalenessMs int64) bool {
	return now-u.HomeCountryRefreshedAt > maxStalenessMs
}

// Card 卡维度
type Card struct {
	CardID    string `gorm:"column:card_id;type:varchar(64);primaryKey" json:"card_id"`
	UserID    string `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Issuer    string `gorm:"column:issuer;type:varchar(32)" json:"issuer"`
	IsStolen  bool   `gorm:"column:is_stolen;not null;default:false" json:"is_stolen"`
	CreatedAt int64  `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (Card) TableName() string {
	return "fraud_cards"
}

// Device 设备维度
type Device struct {
	DeviceID   string `gorm:"column:device_id;type:varchar(64);primaryKey" json:"device_id"`
	DeviceType string `gorm:"column:device_type;type:varchar(32)" json:"device_type"`
	CreatedAt  int64  `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (Device) TableName() string {
	return "fraud_devices"
}
