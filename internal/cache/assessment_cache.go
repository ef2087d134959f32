// Package cache 提供 Redis 评估结果缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

const (
	assessmentKeyPrefix = "fraud:assessment:"

	fieldVersion = "v"
	fieldData    = "d"
)

// setIfNotOlderScript 仅当缓存为空或缓存版本不高于写入版本时写入
// KEYS[1]: 缓存键
// ARGV[1]: 评估版本
// ARGV[2]: 评估 JSON
// ARGV[3]: 过期时间 (毫秒)，0 表示不过期
// 返回: 1 写入, 0 缓存中已有更新版本
var setIfNotOlderScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'v'))
if cur and cur > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'd', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
else
	redis.call('PERSIST', KEYS[1])
end
return 1
`)

// AssessmentCache 风险评估读穿缓存
// 写入按评估版本单调递增，旧版本不会覆盖新版本
type AssessmentCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewAssessmentCache 创建评估缓存
func NewAssessmentCache(client redis.UniversalClient, ttl time.Duration) *AssessmentCache {
	return &AssessmentCache{client: client, ttl: ttl}
}

// Get 获取缓存，未命中返回 nil, nil
func (c *AssessmentCache) Get(ctx context.Context, transactionID string) (*model.RiskAssessment, error) {
	data, err := c.client.HGet(ctx, assessmentKey(transactionID), fieldData).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheRequest("miss")
			return nil, nil
		}
		metrics.RecordCacheRequest("error")
		return nil, err
	}

	var a model.RiskAssessment
	if err := json.Unmarshal(data, &a); err != nil {
		metrics.RecordCacheRequest("error")
		return nil, err
	}
	metrics.RecordCacheRequest("hit")
	return &a, nil
}

// Set 写入缓存，缓存中已有更高版本时忽略
func (c *AssessmentCache) Set(ctx context.Context, a *model.RiskAssessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}

	written, err := setIfNotOlderScript.Run(ctx, c.client,
		[]string{assessmentKey(a.TransactionID)},
		a.Version, data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return err
	}
	if written == 0 {
		metrics.RecordCacheRequest("stale_write")
	}
	return nil
}

// Invalidate 删除缓存
func (c *AssessmentCache) Invalidate(ctx context.Context, transactionID string) error {
	return c.client.Del(ctx, assessmentKey(transactionID)).Err()
}

// TTL 获取剩余过期时间
func (c *AssessmentCache) TTL(ctx context.Context, transactionID string) (time.Duration, error) {
	return c.client.TTL(ctx, assessmentKey(transactionID)).Result()
}

func assessmentKey(transactionID string) string {
	return assessmentKeyPrefix + transactionID
}
