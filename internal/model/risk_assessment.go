package model

import "encoding/json"

// Decision 风险决策
type Decision string

const (
	DecisionApprove      Decision = "approve"       // 放行
	DecisionManualReview Decision = "manual_review" // 人工审核
	DecisionBlock        Decision = "block"         // 拦截
)

// IsValid 是否为合法决策
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApprove, DecisionManualReview, DecisionBlock:
		return true
	}
	return false
}

// Reason 单个特征对风险分的贡献
type Reason struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"` // 带符号的 log-odds 贡献
}

// RiskAssessment 风险评估结果，与交易一一对应
type RiskAssessment struct {
	TransactionID    string   `gorm:"column:transaction_id;type:varchar(64);primaryKey" json:"transaction_id"`
	FraudProbability float64  `gorm:"column:fraud_probability;not null" json:"fraud_probability"`
	RiskScore        int      `gorm:"column:risk_score;type:int;not null" json:"risk_score"` // 0-100
	Decision         Decision `gorm:"column:decision;type:varchar(20);not null;index:idx_fraud_assess_decision_created,priority:1" json:"decision"`
	Reasons          string   `gorm:"column:reasons;type:jsonb;not null" json:"-"` // JSON 数组
	Version          int64    `gorm:"column:version;type:bigint;not null;default:1" json:"version"`
	CreatedAt        int64    `gorm:"column:created_at;type:bigint;not null;index:idx_fraud_assess_decision_created,priority:2" json:"created_at"`
	UpdatedAt        int64    `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (RiskAssessment) TableName() string {
	return "fraud_risk_assessments"
}

// ReasonList 解析原因列表
func (a *RiskAssessment) ReasonList() ([]Reason, error) {
	if a.Reasons == "" {
		return []Reason{}, nil
	}
	var reasons []Reason
	if err := json.Unmarshal([]byte(a.Reasons), &reasons); err != nil {
		return nil, err
	}
	return reasons, nil
}

// SetReasons 序列化原因列表
func (a *RiskAssessment) SetReasons(reasons []Reason) error {
	if reasons == nil {
		reasons = []Reason{}
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return err
	}
	a.Reasons = string(data)
	return nil
}

// IsPendingReview 是否待人工审核
func (a *RiskAssessment) IsPendingReview() bool {
	return a.Decision == DecisionManualReview
}

// MarshalJSON 输出时展开原因列表
func (a RiskAssessment) MarshalJSON() ([]byte, error) {
	type alias RiskAssessment
	reasons, err := a.ReasonList()
	if err != nil {
		return nil, err
	}
	return json.Marshal(&struct {
		alias
		Reasons []Reason `json:"reasons"`
	}{
		alias:   alias(a),
		Reasons: reasons,
	})
}

// UnmarshalJSON 与 MarshalJSON 对称，用于缓存反序列化
func (a *RiskAssessment) UnmarshalJSON(data []byte) error {
	type alias RiskAssessment
	aux := &struct {
		*alias
		Reasons []Reason `json:"reasons"`
	}{
		alias: (*alias)(a),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	return a.SetReasons(aux.Reasons)
}
