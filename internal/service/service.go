// Package service 反欺诈业务服务：评分、人工审核、监控与维护
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// AssessmentCache 评估缓存，Redis 未启用时为 nil
// Set 按版本写入，旧版本不覆盖新版本
type AssessmentCache interface {
	Get(ctx context.Context, transactionID string) (*model.RiskAssessment, error)
	Set(ctx context.Context, a *model.RiskAssessment) error
	Invalidate(ctx context.Context, transactionID string) error
}

// DecisionEvent 评分决策事件
type DecisionEvent struct {
	TransactionID    string         `json:"transaction_id"`
	UserID           string         `json:"user_id"`
	Merchant         string         `json:"merchant"`
	FraudProbability float64        `json:"fraud_probability"`
	RiskScore        int            `json:"risk_score"`
	Decision         model.Decision `json:"decision"`
	Reasons          []model.Reason `json:"reasons"`
	Source           string         `json:"source"` // create/rescore
	Version          int64          `json:"version"`
	CreatedAt        int64          `json:"created_at"`
}

// ReviewEvent 人工审核事件
type ReviewEvent struct {
	ActionID         int64                  `json:"action_id"`
	TransactionID    string                 `json:"transaction_id"`
	Action           model.ReviewActionType `json:"action"`
	Analyst          string                 `json:"analyst"`
	Outcome          model.ReviewOutcome    `json:"outcome"`
	PreviousDecision model.Decision         `json:"previous_decision"`
	Decision         model.Decision         `json:"decision"`
	CreatedAt        int64                  `json:"created_at"`
}

// NewTransactionID 生成交易ID: tx_<32位十六进制>
func NewTransactionID() string {
	return "tx_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// refreshCache 写入提交后的评估，写入失败时删除缓存
func refreshCache(ctx context.Context, cache AssessmentCache, a *model.RiskAssessment) {
	if cache == nil {
		return
	}
	err := cache.Set(ctx, a)
	if err == nil {
		return
	}
	logger.WithContext(ctx).Warnw("failed to refresh assessment cache",
		"transaction_id", a.TransactionID,
		"version", a.Version,
		"error", err,
	)
	if err := cache.Invalidate(ctx, a.TransactionID); err != nil {
		logger.WithContext(ctx).Warnw("failed to invalidate assessment cache",
			"transaction_id", a.TransactionID,
			"error", err,
		)
	}
}

// wrapStorage 业务错误原样返回，其余视为存储错误
func wrapStorage(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrStorageFailure, err)
}
