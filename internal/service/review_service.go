package service

import (
	"context"
	"errors"
	"strings"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// ReviewTransition 审核状态转换
type ReviewTransition struct {
	From   model.Decision
	Action model.ReviewActionType
	To     model.Decision
}

// 待审核评估的合法转换
var validTransitions = []ReviewTransition{
	{From: model.DecisionManualReview, Action: model.ReviewActionApprove, To: model.DecisionApprove},
	{From: model.DecisionManualReview, Action: model.ReviewActionReject, To: model.DecisionBlock},
}

// 已结案评估再次审核时的转换，最后一次生效
var reReviewTransitions = []ReviewTransition{
	{From: model.DecisionApprove, Action: model.ReviewActionApprove, To: model.DecisionApprove},
	{From: model.DecisionApprove, Action: model.ReviewActionReject, To: model.DecisionBlock},
	{From: model.DecisionBlock, Action: model.ReviewActionApprove, To: model.DecisionApprove},
	{From: model.DecisionBlock, Action: model.ReviewActionReject, To: model.DecisionBlock},
}

// ReviewActionRequest 审核动作请求
type ReviewActionRequest struct {
	Action  model.ReviewActionType `json:"action" binding:"required"`
	Analyst string                 `json:"analyst"`
	Notes   *string                `json:"notes"`
	// ExpectedVersion 可选的乐观锁版本
	ExpectedVersion *int64 `json:"expected_version"`
}

// CaseView 审核案件详情
type CaseView struct {
	Transaction   *model.Transaction    `json:"transaction"`
	Features      *model.FeatureRecord  `json:"features"`
	Assessment    *model.RiskAssessment `json:"assessment"`
	ReviewHistory []*model.ReviewAction `json:"review_history"`
}

// ReviewService 人工审核流程
type ReviewService struct {
	txRepo      *repository.TransactionRepository
	featureRepo *repository.FeatureRepository
	assessRepo  *repository.AssessmentRepository
	actionRepo  *repository.ReviewActionRepository

	allowReReview  bool
	defaultAnalyst string

	cache          AssessmentCache
	onReviewAction func(ctx context.Context, event *ReviewEvent) error
}

// NewReviewService 创建审核服务
func NewReviewService(
	txRepo *repository.TransactionRepository,
	featureRepo *repository.FeatureRepository,
	assessRepo *repository.AssessmentRepository,
	actionRepo *repository.ReviewActionRepository,
	allowReReview bool,
	defaultAnalyst string,
) *ReviewService {
	return &ReviewService{
		txRepo:         txRepo,
		featureRepo:    featureRepo,
		assessRepo:     assessRepo,
		actionRepo:     actionRepo,
		allowReReview:  allowReReview,
		defaultAnalyst: defaultAnalyst,
	}
}

// SetCache 设置评估缓存
func (s *ReviewService) SetCache(cache AssessmentCache) {
	s.cache = cache
}

// SetOnReviewAction 设置审核事件回调
func (s *ReviewService) SetOnReviewAction(fn func(ctx context.Context, event *ReviewEvent) error) {
	s.onReviewAction = fn
}

// Queue 待人工审核队列，按创建时间倒序
func (s *ReviewService) Queue(ctx context.Context, pagination *repository.Pagination) ([]*repository.QueueItem, error) {
	items, err := s.assessRepo.ListQueue(ctx, pagination)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return items, nil
}

// Case 查询案件详情，特征与评估可能为空
func (s *ReviewService) Case(ctx context.Context, transactionID string) (*CaseView, error) {
	tx, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("transaction not found")
		}
		return nil, wrapStorage(err)
	}

	view := &CaseView{Transaction: tx}

	view.Features, err = s.featureRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if !errors.Is(err, repository.ErrFeatureRecordNotFound) {
			return nil, wrapStorage(err)
		}
		view.Features = nil
	}

	view.Assessment, err = s.assessRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if !errors.Is(err, repository.ErrAssessmentNotFound) {
			return nil, wrapStorage(err)
		}
		view.Assessment = nil
	}

	view.ReviewHistory, err = s.actionRepo.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return view, nil
}

// SubmitAction 提交审核动作
// 审核记录与决策更新、欺诈标记在同一事务中提交
// 未生效的动作(版本冲突、不允许再次审核)同样写入审核记录，并返回 Conflict
func (s *ReviewService) SubmitAction(ctx context.Context, transactionID string, req *ReviewActionRequest) (*model.ReviewAction, error) {
	if !req.Action.IsValid() {
		return nil, apperrors.ErrInvalidArgument.WithMessage("action must be 'approve' or 'reject'")
	}
	analyst := strings.TrimSpace(req.Analyst)
	if analyst == "" {
		analyst = s.defaultAnalyst
	}

	var action *model.ReviewAction
	var to model.Decision
	var updated *model.RiskAssessment
	err := s.assessRepo.Transaction(ctx, func(txCtx context.Context) error {
		assessment, err := s.assessRepo.GetByTransactionID(txCtx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrAssessmentNotFound) {
				return apperrors.ErrNotFound.WithMessage("assessment not found for transaction")
			}
			return err
		}

		action = &model.ReviewAction{
			TransactionID:    transactionID,
			Action:           req.Action,
			Analyst:          analyst,
			Notes:            req.Notes,
			PreviousDecision: assessment.Decision,
		}

		reviewed, err := s.reviewed(txCtx, assessment)
		if err != nil {
			return err
		}

		var ok bool
		to, ok = s.transition(assessment.Decision, req.Action, reviewed)
		switch {
		case !ok:
			action.Outcome = model.ReviewOutcomeRejectedTransition
		case req.ExpectedVersion != nil && *req.ExpectedVersion != assessment.Version:
			action.Outcome = model.ReviewOutcomeConflict
		default:
			action.Outcome, err = s.apply(txCtx, transactionID, req, to)
			if err != nil {
				return err
			}
			if action.IsApplied() {
				updated, err = s.assessRepo.GetByTransactionID(txCtx, transactionID)
				if err != nil {
					return err
				}
			}
		}

		return s.actionRepo.Create(txCtx, action)
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		logger.WithContext(ctx).Errorw("failed to submit review action",
			"transaction_id", transactionID,
			"action", req.Action,
			"error", err,
		)
		return nil, wrapStorage(err)
	}

	metrics.RecordReviewAction(string(action.Action), string(action.Outcome))
	logger.WithContext(ctx).Infow("review action recorded",
		"transaction_id", transactionID,
		"action", action.Action,
		"analyst", action.Analyst,
		"outcome", action.Outcome,
		"previous_decision", action.PreviousDecision,
	)

	if action.IsApplied() {
		refreshCache(ctx, s.cache, updated)
	} else {
		to = action.PreviousDecision
	}
	s.publish(ctx, action, to)

	details := map[string]string{
		"outcome":           string(action.Outcome),
		"previous_decision": string(action.PreviousDecision),
	}
	switch action.Outcome {
	case model.ReviewOutcomeConflict:
		return action, apperrors.ErrConflict.WithMessage("assessment version changed, reload the case and retry").WithDetails(details)
	case model.ReviewOutcomeRejectedTransition:
		if !s.allowReReview {
			return action, apperrors.ErrConflict.WithMessagef("assessment already resolved as %s", action.PreviousDecision).WithDetails(details)
		}
		return action, apperrors.ErrConflict.WithMessagef("assessment decided as %s by policy is not under review", action.PreviousDecision).WithDetails(details)
	}
	return action, nil
}

// apply 更新决策，拒绝时标记交易为确认欺诈
func (s *ReviewService) apply(ctx context.Context, transactionID string, req *ReviewActionRequest, to model.Decision) (model.ReviewOutcome, error) {
	err := s.assessRepo.UpdateDecision(ctx, transactionID, to, req.ExpectedVersion)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return model.ReviewOutcomeConflict, nil
		}
		return "", err
	}

	if req.Action == model.ReviewActionReject {
		if err := s.txRepo.MarkConfirmedFraud(ctx, transactionID); err != nil {
			return "", err
		}
	}
	return model.ReviewOutcomeApplied, nil
}

// reviewed 评估是否已由分析师处理过，仅在允许再次审核时查询
func (s *ReviewService) reviewed(ctx context.Context, assessment *model.RiskAssessment) (bool, error) {
	if !s.allowReReview || assessment.Decision == model.DecisionManualReview {
		return false, nil
	}
	applied, err := s.actionRepo.CountApplied(ctx, assessment.TransactionID)
	if err != nil {
		return false, err
	}
	return applied > 0, nil
}

// transition 查找转换
// 只有待审核评估可由分析师操作，策略直接给出的 approve/block 不可审核
// 允许再次审核时，已由分析师结案的评估可以再次操作
func (s *ReviewService) transition(from model.Decision, action model.ReviewActionType, reviewed bool) (model.Decision, bool) {
	for _, t := range validTransitions {
		if t.From == from && t.Action == action {
			return t.To, true
		}
	}
	if !s.allowReReview || !reviewed {
		return "", false
	}
	for _, t := range reReviewTransitions {
		if t.From == from && t.Action == action {
			return t.To, true
		}
	}
	return "", false
}

func (s *ReviewService) publish(ctx context.Context, action *model.ReviewAction, decision model.Decision) {
	if s.onReviewAction == nil {
		return
	}

	event := &ReviewEvent{
		ActionID:         action.ID,
		TransactionID:    action.TransactionID,
		Action:           action.Action,
		Analyst:          action.Analyst,
		Outcome:          action.Outcome,
		PreviousDecision: action.PreviousDecision,
		Decision:         decision,
		CreatedAt:        action.CreatedAt,
	}
	if err := s.onReviewAction(ctx, event); err != nil {
		logger.WithContext(ctx).Errorw("onReviewAction callback failed",
			"transaction_id", action.TransactionID,
			"error", err,
		)
	}
}

