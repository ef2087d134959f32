// Package testutil 测试辅助：SQLite 内存库与数据构造
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

var testDBCounter int64

// BaseTime 测试用固定锚点时间(毫秒)
const BaseTime int64 = 1_700_000_000_000

// Minute 一分钟的毫秒数
const Minute int64 = 60_000

// OpenSQLite 创建独立的命名内存数据库并迁移全部表
// 单连接模式，防止多个连接看到不同的数据库状态
func OpenSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	counter := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:frauddb_%d?mode=memory&cache=shared&_busy_timeout=5000", counter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	err = db.AutoMigrate(
		&model.Transaction{},
		&model.User{},
		&model.Card{},
		&model.Device{},
		&model.FeatureRecord{},
		&model.RiskAssessment{},
		&model.ReviewAction{},
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// TxOption 修改测试交易
type TxOption func(*model.Transaction)

// WithAmount 设置金额
func WithAmount(amount int64) TxOption {
	return func(tx *model.Transaction) { tx.Amount = decimal.NewFromInt(amount) }
}

// WithCountry 设置国家
func WithCountry(country string) TxOption {
	return func(tx *model.Transaction) { tx.Country = country }
}

// WithDevice 设置设备
func WithDevice(deviceID string) TxOption {
	return func(tx *model.Transaction) { tx.DeviceID = deviceID }
}

// WithMerchant 设置商户与类目
func WithMerchant(merchant, category string) TxOption {
	return func(tx *model.Transaction) {
		tx.Merchant = merchant
		tx.MerchantCategory = category
	}
}

// WithFraud 标记为欺诈
func WithFraud() TxOption {
	return func(tx *model.Transaction) { tx.IsFraud = true }
}

// NewTransaction 构造测试交易
func NewTransaction(id, userID string, ts int64, opts ...TxOption) *model.Transaction {
	tx := &model.Transaction{
		TransactionID:    id,
		UserID:           userID,
		CardID:           "card_" + userID,
		DeviceID:         "dev_" + userID,
		Amount:           decimal.NewFromInt(100),
		Currency:         "USD",
		Merchant:         "Amazon",
		MerchantCategory: "electronics",
		Country:          "US",
		Timestamp:        ts,
	}
	for _, opt := range opts {
		opt(tx)
	}
	return tx
}

// InsertTransactions 直接写入交易
func InsertTransactions(t testing.TB, db *gorm.DB, txs ...*model.Transaction) {
	t.Helper()
	for _, tx := range txs {
		require.NoError(t, db.WithContext(context.Background()).Create(tx).Error)
	}
}

// InsertUser 写入用户维度
func InsertUser(t testing.TB, db *gorm.DB, userID, homeCountry string, refreshedAt int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.User{
		UserID:                 userID,
		HomeCountry:            homeCountry,
		AccountAgeDays:         model.DefaultAccountAgeDays,
		AvgTransactionAmount:   model.DefaultAvgTransactionAmount,
		HomeCountryRefreshedAt: refreshedAt,
	}).Error)
}
