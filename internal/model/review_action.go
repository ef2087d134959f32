package model

// ReviewActionType 审核动作
type ReviewActionType string

const (
	ReviewActionApprove ReviewActionType = "approve" // 确认正常
	ReviewActionReject  ReviewActionType = "reject"  // 确认欺诈
)

// IsValid 是否为合法动作
func (a ReviewActionType) IsValid() bool {
	return a == ReviewActionApprove || a == ReviewActionReject
}

// ResultingDecision 审核动作对应的最终决策
func (a ReviewActionType) ResultingDecision() Decision {
	if a == ReviewActionReject {
		return DecisionBlock
	}
	return DecisionApprove
}

// ReviewOutcome 审核动作的处理结果
type ReviewOutcome string

const (
	ReviewOutcomeApplied            ReviewOutcome = "applied"             // 已生效
	ReviewOutcomeConflict           ReviewOutcome = "conflict"            // 版本冲突
	ReviewOutcomeRejectedTransition ReviewOutcome = "rejected_transition" // 当前决策不可审核
)

// ReviewAction 审核记录，只追加
type ReviewAction struct {
	ID            int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID string           `gorm:"column:transaction_id;type:varchar(64);not null;index" json:"transaction_id"`
	Action        ReviewActionType `gorm:"column:action;type:varchar(16);not null" json:"action"`
	Analyst       string           `gorm:"column:analyst;type:varchar(64);not null" json:"analyst"`
	Notes         *string          `gorm:"column:notes;type:varchar(1000)" json:"notes"`
	Outcome       ReviewOutcome    `gorm:"column:outcome;type:varchar(24);not null" json:"outcome"`
	// PreviousDecision 审核前的决策
	PreviousDecision Decision `gorm:"column:previous_decision;type:varchar(20);not null" json:"previous_decision"`
	CreatedAt        int64    `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
}

// TableName 返回表名
func (ReviewAction) TableName() string {
	return "fraud_review_actions"
}

// IsApplied 是否已生效
func (r *ReviewAction) IsApplied() bool {
	return r.Outcome == ReviewOutcomeApplied
}
