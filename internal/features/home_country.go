package features

import (
	"context"
	"time"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// 刷新触发来源
const (
	RefreshTriggerInline      = "inline"
	RefreshTriggerMaintenance = "maintenance"
)

// CountryReader 用户国家分布查询
type CountryReader interface {
	ModeCountry(ctx context.Context, userID string) (string, error)
}

// UserStore 用户维度读写
type UserStore interface {
	UpdateHomeCountry(ctx context.Context, userID, country string, refreshedAt int64) error
	ListUsersAfter(ctx context.Context, afterUserID string, limit int) ([]*model.User, error)
}

// RefreshResult 批量刷新结果
type RefreshResult struct {
	Scanned int `json:"scanned"`
	Changed int `json:"changed"`
}

// HomeCountryRefresher 常驻国家重新计算
// 只基于已提交的交易，调用方保证当前交易尚未写入
type HomeCountryRefresher struct {
	txs          CountryReader
	users        UserStore
	maxStaleness time.Duration
	now          func() time.Time
}

// NewHomeCountryRefresher 创建常驻国家刷新器
func NewHomeCountryRefresher(txs CountryReader, users UserStore, maxStaleness time.Duration) *HomeCountryRefresher {
	return &HomeCountryRefresher{
		txs:          txs,
		users:        users,
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// RefreshIfStale 超过刷新间隔时重新计算
func (r *HomeCountryRefresher) RefreshIfStale(ctx context.Context, user *model.User) (bool, error) {
	if !user.IsHomeCountryStale(r.now().UnixMilli(), r.maxStaleness.Milliseconds()) {
		return false, nil
	}
	return r.Refresh(ctx, user, RefreshTriggerInline)
}

// Refresh 重新计算常驻国家，返回是否发生变化
// 用户没有任何交易时保留原值，只更新刷新时间
func (r *HomeCountryRefresher) Refresh(ctx context.Context, user *model.User, trigger string) (bool, error) {
	country, err := r.txs.ModeCountry(ctx, user.UserID)
	if err != nil {
		return false, err
	}
	if country == "" {
		country = user.HomeCountry
	}

	now := r.now().UnixMilli()
	if err := r.users.UpdateHomeCountry(ctx, user.UserID, country, now); err != nil {
		return false, err
	}

	changed := country != user.HomeCountry
	if changed {
		logger.Info("home country changed",
			"user_id", user.UserID,
			"from", user.HomeCountry,
			"to", country,
			"trigger", trigger,
		)
	}
	user.HomeCountry = country
	user.HomeCountryRefreshedAt = now

	metrics.RecordHomeCountryRefresh(trigger, changed)
	return changed, nil
}

// RefreshAll 按 user_id 游标遍历全部用户重新计算
func (r *HomeCountryRefresher) RefreshAll(ctx context.Context, batchSize int) (*RefreshResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	result := &RefreshResult{}
	cursor := ""
	for {
		users, err := r.users.ListUsersAfter(ctx, cursor, batchSize)
		if err != nil {
			return result, wrapStorage(err)
		}
		for _, user := range users {
			changed, err := r.Refresh(ctx, user, RefreshTriggerMaintenance)
			if err != nil {
				return result, wrapStorage(err)
			}
			result.Scanned++
			if changed {
				result.Changed++
			}
		}
		if len(users) < batchSize {
			break
		}
		cursor = users[len(users)-1].UserID
	}

	logger.Info("home country refresh finished",
		"scanned", result.Scanned,
		"changed", result.Changed,
	)
	return result, nil
}
