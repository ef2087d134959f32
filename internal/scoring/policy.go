package scoring

import (
	"fmt"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

// Policy 决策分级阈值
type Policy struct {
	ReviewThreshold int
	BlockThreshold  int
}

// NewPolicy 创建决策策略
func NewPolicy(reviewThreshold, blockThreshold int) (*Policy, error) {
	if reviewThreshold < 0 || blockThreshold > 100 || reviewThreshold > blockThreshold {
		return nil, fmt.Errorf("invalid thresholds: review=%d block=%d", reviewThreshold, blockThreshold)
	}
	return &Policy{ReviewThreshold: reviewThreshold, BlockThreshold: blockThreshold}, nil
}

// Decide 风险分转决策
// >= BlockThreshold 拦截，>= ReviewThreshold 人工审核，否则放行
func (p *Policy) Decide(riskScore int) model.Decision {
	switch {
	case riskScore >= p.BlockThreshold:
		return model.DecisionBlock
	case riskScore >= p.ReviewThreshold:
		return model.DecisionManualReview
	default:
		return model.DecisionApprove
	}
}
