package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/features"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/scoring"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// 评分来源
const (
	SourceCreate  = "create"
	SourceRescore = "rescore"
)

// CreateTransactionRequest 新交易评分请求
type CreateTransactionRequest struct {
	UserID           string          `json:"user_id" binding:"required"`
	CardID           string          `json:"card_id" binding:"required"`
	DeviceID         string          `json:"device_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	Currency         string          `json:"currency"`
	Merchant         string          `json:"merchant" binding:"required"`
	MerchantCategory string          `json:"merchant_category" binding:"required"`
	Country          string          `json:"country" binding:"required"`
}

// Validate 校验请求
func (r *CreateTransactionRequest) Validate() error {
	required := map[string]string{
		"user_id":           r.UserID,
		"card_id":           r.CardID,
		"device_id":         r.DeviceID,
		"merchant":          r.Merchant,
		"merchant_category": r.MerchantCategory,
		"country":           r.Country,
	}
	for field, v := range required {
		if strings.TrimSpace(v) == "" {
			return apperrors.ErrInvalidArgument.WithMessagef("%s is required", field).WithDetail("field", field)
		}
	}
	if !r.Amount.IsPositive() {
		return apperrors.ErrInvalidArgument.WithMessage("amount must be greater than 0").WithDetail("field", "amount")
	}
	if r.Currency == "" {
		r.Currency = "USD"
	}
	return nil
}

// ScoreResult 评分结果
type ScoreResult struct {
	TransactionID    string         `json:"transaction_id"`
	FraudProbability float64        `json:"fraud_probability"`
	RiskScore        int            `json:"risk_score"`
	Decision         model.Decision `json:"decision"`
	Reasons          []model.Reason `json:"reasons"`
}

// ScoringService 交易写入、特征计算、评分与决策
type ScoringService struct {
	txRepo      *repository.TransactionRepository
	dimRepo     *repository.DimensionRepository
	assessRepo  *repository.AssessmentRepository
	actionRepo  *repository.ReviewActionRepository
	featureRepo *repository.FeatureRepository
	engine      *features.Engine
	homeCountry *features.HomeCountryRefresher
	scorer      *scoring.Scorer
	policy      *scoring.Policy

	cache      AssessmentCache
	onDecision func(ctx context.Context, event *DecisionEvent) error
	now        func() time.Time
}

// NewScoringService 创建评分服务
func NewScoringService(
	txRepo *repository.TransactionRepository,
	dimRepo *repository.DimensionRepository,
	assessRepo *repository.AssessmentRepository,
	actionRepo *repository.ReviewActionRepository,
	featureRepo *repository.FeatureRepository,
	engine *features.Engine,
	homeCountry *features.HomeCountryRefresher,
	scorer *scoring.Scorer,
	policy *scoring.Policy,
) *ScoringService {
	return &ScoringService{
		txRepo:      txRepo,
		dimRepo:     dimRepo,
		assessRepo:  assessRepo,
		actionRepo:  actionRepo,
		featureRepo: featureRepo,
		engine:      engine,
		homeCountry: homeCountry,
		scorer:      scorer,
		policy:      policy,
		now:         time.Now,
	}
}

// SetCache 设置评估缓存
func (s *ScoringService) SetCache(cache AssessmentCache) {
	s.cache = cache
}

// SetOnDecision 设置决策回调
func (s *ScoringService) SetOnDecision(fn func(ctx context.Context, event *DecisionEvent) error) {
	s.onDecision = fn
}

// CreateAndScore 写入新交易并评分
// 维度行与交易在同一事务中提交，提交后才开始计算特征
func (s *ScoringService) CreateAndScore(ctx context.Context, req *CreateTransactionRequest) (*ScoreResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	tx := &model.Transaction{
		TransactionID:    NewTransactionID(),
		UserID:           req.UserID,
		CardID:           req.CardID,
		DeviceID:         req.DeviceID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Merchant:         req.Merchant,
		MerchantCategory: req.MerchantCategory,
		Country:          req.Country,
		Timestamp:        now,
	}

	if err := s.createTransaction(ctx, tx, now); err != nil {
		logger.WithContext(ctx).Errorw("failed to create transaction",
			"user_id", tx.UserID,
			"error", err,
		)
		return nil, wrapStorage(err)
	}

	return s.score(ctx, tx.TransactionID, SourceCreate)
}

// createTransaction 维度行幂等写入、常驻国家按需刷新、交易写入
func (s *ScoringService) createTransaction(ctx context.Context, tx *model.Transaction, now int64) error {
	return s.txRepo.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.dimRepo.EnsureUser(txCtx, &model.User{
			UserID:                 tx.UserID,
			HomeCountry:            tx.Country,
			AccountAgeDays:         model.DefaultAccountAgeDays,
			AvgTransactionAmount:   model.DefaultAvgTransactionAmount,
			HomeCountryRefreshedAt: now,
		}); err != nil {
			return err
		}
		if err := s.dimRepo.EnsureCard(txCtx, &model.Card{
			CardID: tx.CardID,
			UserID: tx.UserID,
			Issuer: model.DefaultCardIssuer,
		}); err != nil {
			return err
		}
		if err := s.dimRepo.EnsureDevice(txCtx, &model.Device{
			DeviceID:   tx.DeviceID,
			DeviceType: model.DefaultDeviceType,
		}); err != nil {
			return err
		}

		// 在写入当前交易之前刷新，常驻国家不受未提交交易影响
		user, err := s.dimRepo.GetUser(txCtx, tx.UserID)
		if err != nil {
			return err
		}
		if _, err := s.homeCountry.RefreshIfStale(txCtx, user); err != nil {
			return err
		}

		return s.txRepo.Create(txCtx, tx)
	})
}

// Rescore 重新计算已有交易的特征与评估
func (s *ScoringService) Rescore(ctx context.Context, transactionID string) (*ScoreResult, error) {
	return s.score(ctx, transactionID, SourceRescore)
}

func (s *ScoringService) score(ctx context.Context, transactionID, source string) (*ScoreResult, error) {
	start := time.Now()

	record, err := s.engine.Derive(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	result, err := s.scorer.Evaluate(record)
	if err != nil {
		logger.WithContext(ctx).Errorw("failed to score transaction",
			"transaction_id", transactionID,
			"error", err,
		)
		return nil, err
	}
	decision := s.policy.Decide(result.RiskScore)

	assessment := &model.RiskAssessment{
		TransactionID:    transactionID,
		FraudProbability: result.Probability,
		RiskScore:        result.RiskScore,
		Decision:         decision,
	}
	if err := assessment.SetReasons(result.Reasons); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, err)
	}

	err = s.assessRepo.Transaction(ctx, func(txCtx context.Context) error {
		// 已有生效审核的评估保留分析师决策
		applied, err := s.actionRepo.CountApplied(txCtx, transactionID)
		if err != nil {
			return err
		}
		if applied > 0 {
			existing, err := s.assessRepo.GetByTransactionID(txCtx, transactionID)
			if err != nil {
				return err
			}
			assessment.Decision = existing.Decision
		}
		if err := s.assessRepo.Upsert(txCtx, assessment); err != nil {
			return err
		}
		stored, err := s.assessRepo.GetByTransactionID(txCtx, transactionID)
		if err != nil {
			return err
		}
		assessment = stored
		return nil
	})
	if err != nil {
		logger.WithContext(ctx).Errorw("failed to persist assessment",
			"transaction_id", transactionID,
			"error", err,
		)
		return nil, wrapStorage(err)
	}

	refreshCache(ctx, s.cache, assessment)
	metrics.RecordScoring(string(assessment.Decision), source, assessment.RiskScore, time.Since(start).Seconds())

	logger.WithContext(ctx).Infow("transaction scored",
		"transaction_id", transactionID,
		"risk_score", assessment.RiskScore,
		"decision", assessment.Decision,
		"source", source,
	)

	s.publishDecision(ctx, assessment, result.Reasons, source)

	return &ScoreResult{
		TransactionID:    transactionID,
		FraudProbability: assessment.FraudProbability,
		RiskScore:        assessment.RiskScore,
		Decision:         assessment.Decision,
		Reasons:          result.Reasons,
	}, nil
}

func (s *ScoringService) publishDecision(ctx context.Context, a *model.RiskAssessment, reasons []model.Reason, source string) {
	if s.onDecision == nil {
		return
	}

	event := &DecisionEvent{
		TransactionID:    a.TransactionID,
		FraudProbability: a.FraudProbability,
		RiskScore:        a.RiskScore,
		Decision:         a.Decision,
		Reasons:          reasons,
		Source:           source,
		Version:          a.Version,
		CreatedAt:        a.UpdatedAt,
	}
	if tx, err := s.txRepo.GetByID(ctx, a.TransactionID); err == nil {
		event.UserID = tx.UserID
		event.Merchant = tx.Merchant
	}

	if err := s.onDecision(ctx, event); err != nil {
		logger.WithContext(ctx).Errorw("onDecision callback failed",
			"transaction_id", a.TransactionID,
			"error", err,
		)
	}
}

// GetTransaction 查询交易
func (s *ScoringService) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	tx, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("transaction not found")
		}
		return nil, wrapStorage(err)
	}
	return tx, nil
}

// ListTransactions 按时间倒序查询交易
func (s *ScoringService) ListTransactions(ctx context.Context, filter *repository.TransactionFilter, pagination *repository.Pagination) ([]*model.Transaction, error) {
	txs, err := s.txRepo.List(ctx, filter, pagination)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return txs, nil
}

// GetFeatures 查询交易特征
func (s *ScoringService) GetFeatures(ctx context.Context, transactionID string) (*model.FeatureRecord, error) {
	rec, err := s.featureRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrFeatureRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("features not found for this transaction")
		}
		return nil, wrapStorage(err)
	}
	return rec, nil
}

// GetAssessment 查询评估，优先读缓存
func (s *ScoringService) GetAssessment(ctx context.Context, transactionID string) (*model.RiskAssessment, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, transactionID)
		if err != nil {
			logger.WithContext(ctx).Warnw("assessment cache read failed",
				"transaction_id", transactionID,
				"error", err,
			)
		} else if cached != nil {
			return cached, nil
		}
	}

	a, err := s.assessRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrAssessmentNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("assessment not found")
		}
		return nil, wrapStorage(err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, a); err != nil {
			logger.WithContext(ctx).Warnw("assessment cache write failed",
				"transaction_id", transactionID,
				"error", err,
			)
		}
	}
	return a, nil
}
