// Package features 从交易历史计算风险特征
package features

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// 速度特征窗口
const (
	Window5m  = 5 * time.Minute
	Window1h  = time.Hour
	Window24h = 24 * time.Hour
)

// TransactionReader 特征计算所需的交易查询
type TransactionReader interface {
	GetByID(ctx context.Context, transactionID string) (*model.Transaction, error)
	CountVelocity(ctx context.Context, userID string, anchor, from5m, from1h, from24h int64) (*repository.VelocityCounts, error)
	UserAverageAmount(ctx context.Context, userID string, upTo int64) (decimal.Decimal, error)
	DeviceUserCount(ctx context.Context, deviceID string, upTo *int64) (int64, error)
	MerchantFraudCounts(ctx context.Context, merchant string, upTo *int64) (repository.FraudCounts, error)
	CategoryFraudCounts(ctx context.Context, category string, upTo *int64) (repository.FraudCounts, error)
	ListMissingFeatures(ctx context.Context, limit int) ([]*model.Transaction, error)
}

// UserReader 用户维度查询
type UserReader interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// FeatureStore 特征持久化
type FeatureStore interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	Upsert(ctx context.Context, record *model.FeatureRecord) error
}

// Options 特征引擎选项
type Options struct {
	// PointInTime 设备关联用户数与商户/类目欺诈率只统计 timestamp <= t 的交易
	PointInTime bool
}

// Engine 特征引擎
type Engine struct {
	txs   TransactionReader
	users UserReader
	store FeatureStore
	opts  Options
}

// NewEngine 创建特征引擎
func NewEngine(txs TransactionReader, users UserReader, store FeatureStore, opts Options) *Engine {
	return &Engine{
		txs:   txs,
		users: users,
		store: store,
		opts:  opts,
	}
}

// Derive 计算交易特征并写入特征表
// 交易不存在返回 NotFound
func (e *Engine) Derive(ctx context.Context, transactionID string) (*model.FeatureRecord, error) {
	start := time.Now()

	var record *model.FeatureRecord
	err := e.store.Transaction(ctx, func(txCtx context.Context) error {
		tx, err := e.txs.GetByID(txCtx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return apperrors.ErrNotFound.WithMessagef("transaction %s not found", transactionID)
			}
			return err
		}

		record, err = e.Compute(txCtx, tx)
		if err != nil {
			return err
		}
		return e.store.Upsert(txCtx, record)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	metrics.RecordFeatureDerivation(time.Since(start).Seconds())
	return record, nil
}

// Compute 只读计算特征，不落库
func (e *Engine) Compute(ctx context.Context, tx *model.Transaction) (*model.FeatureRecord, error) {
	t := tx.Timestamp

	velocity, err := e.txs.CountVelocity(ctx, tx.UserID, t,
		t-Window5m.Milliseconds(), t-Window1h.Milliseconds(), t-Window24h.Milliseconds())
	if err != nil {
		return nil, err
	}

	avg, err := e.txs.UserAverageAmount(ctx, tx.UserID, t)
	if err != nil {
		return nil, err
	}
	ratio := decimal.Zero
	if avg.IsPositive() {
		ratio = tx.Amount.Div(avg)
	}

	home, err := e.homeCountry(ctx, tx.UserID)
	if err != nil {
		return nil, err
	}

	var upTo *int64
	if e.opts.PointInTime {
		upTo = &t
	}

	deviceUsers, err := e.txs.DeviceUserCount(ctx, tx.DeviceID, upTo)
	if err != nil {
		return nil, err
	}
	merchant, err := e.txs.MerchantFraudCounts(ctx, tx.Merchant, upTo)
	if err != nil {
		return nil, err
	}
	category, err := e.txs.CategoryFraudCounts(ctx, tx.MerchantCategory, upTo)
	if err != nil {
		return nil, err
	}

	return &model.FeatureRecord{
		TransactionID:     tx.TransactionID,
		TxCount5m:         velocity.Count5m,
		TxCount1h:         velocity.Count1h,
		TxCount24h:        velocity.Count24h,
		UserAvgAmount:     avg.InexactFloat64(),
		AmountVsUserAvg:   ratio.InexactFloat64(),
		IsForeignCountry:  home != "" && tx.Country != home,
		DeviceUserCount:   deviceUsers,
		MerchantFraudRate: merchant.Rate(),
		CategoryFraudRate: category.Rate(),
		AsOf:              t,
	}, nil
}

// homeCountry 用户常驻国家，未知时返回空字符串
func (e *Engine) homeCountry(ctx context.Context, userID string) (string, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}
	return user.HomeCountry, nil
}

// Backfill 按时间升序为缺少特征的交易补算特征，最多处理 limit 笔
func (e *Engine) Backfill(ctx context.Context, limit, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = limit
	}

	processed := 0
	for processed < limit {
		size := batchSize
		if remaining := limit - processed; remaining < size {
			size = remaining
		}

		pending, err := e.txs.ListMissingFeatures(ctx, size)
		if err != nil {
			return processed, wrapStorage(err)
		}
		for _, tx := range pending {
			if _, err := e.Derive(ctx, tx.TransactionID); err != nil {
				logger.Error("backfill feature derivation failed",
					"transaction_id", tx.TransactionID,
					"processed", processed,
					"error", err,
				)
				return processed, err
			}
			processed++
		}
		if len(pending) < size {
			break
		}
	}

	metrics.RecordBackfill(processed)
	logger.Info("feature backfill finished", "processed", processed)
	return processed, nil
}

// wrapStorage 业务错误原样返回，其余视为存储错误
func wrapStorage(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrStorageFailure, err)
}
