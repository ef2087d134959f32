package service

import (
	"context"
	"time"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
)

const (
	monitoringWindow        = 24 * time.Hour
	defaultTopMerchantLimit = 10
	maxTopMerchantLimit     = 50
)

// scoreBucketOrder 固定输出顺序，空桶计 0
var scoreBucketOrder = []string{"0-29", "30-59", "60-89", "90-100"}

// FraudStats 全量欺诈统计
type FraudStats struct {
	Total     int64   `json:"total"`
	Fraud     int64   `json:"fraud"`
	FraudRate float64 `json:"fraud_rate"`
}

// MonitoringService 最近 24 小时的只读汇总
type MonitoringService struct {
	repo   *repository.MonitoringRepository
	txRepo *repository.TransactionRepository
	now    func() time.Time
}

// NewMonitoringService 创建监控服务
func NewMonitoringService(repo *repository.MonitoringRepository, txRepo *repository.TransactionRepository) *MonitoringService {
	return &MonitoringService{
		repo:   repo,
		txRepo: txRepo,
		now:    time.Now,
	}
}

func (s *MonitoringService) since() int64 {
	return s.now().Add(-monitoringWindow).UnixMilli()
}

// Summary 决策分布
func (s *MonitoringService) Summary(ctx context.Context) (*repository.DecisionSummary, error) {
	summary, err := s.repo.Summary(ctx, s.since())
	if err != nil {
		return nil, wrapStorage(err)
	}
	return summary, nil
}

// ScoreBuckets 风险分分桶
func (s *MonitoringService) ScoreBuckets(ctx context.Context) ([]*repository.ScoreBucket, error) {
	rows, err := s.repo.ScoreBuckets(ctx, s.since())
	if err != nil {
		return nil, wrapStorage(err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Bucket] = row.Count
	}
	buckets := make([]*repository.ScoreBucket, 0, len(scoreBucketOrder))
	for _, name := range scoreBucketOrder {
		buckets = append(buckets, &repository.ScoreBucket{Bucket: name, Count: counts[name]})
	}
	return buckets, nil
}

// TopMerchants 平均风险分最高的商户，limit 默认 10，最大 50
func (s *MonitoringService) TopMerchants(ctx context.Context, limit int) ([]*repository.MerchantRisk, error) {
	if limit <= 0 {
		limit = defaultTopMerchantLimit
	}
	if limit > maxTopMerchantLimit {
		limit = maxTopMerchantLimit
	}

	merchants, err := s.repo.TopMerchants(ctx, s.since(), limit)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return merchants, nil
}

// FraudStats 全部交易的欺诈数量与比例
func (s *MonitoringService) FraudStats(ctx context.Context) (*FraudStats, error) {
	counts, err := s.txRepo.FraudTotals(ctx)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &FraudStats{
		Total:     counts.Total,
		Fraud:     counts.Fraud,
		FraudRate: counts.Rate(),
	}, nil
}
