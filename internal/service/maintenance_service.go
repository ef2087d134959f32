package service

import (
	"context"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/features"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

const maxBackfillLimit = 100000

// BackfillResult 特征补算结果
type BackfillResult struct {
	Processed int `json:"processed"`
}

// MaintenanceService 运维操作：常驻国家刷新、特征补算
type MaintenanceService struct {
	homeCountry *features.HomeCountryRefresher
	engine      *features.Engine
	batchSize   int
}

// NewMaintenanceService 创建运维服务
func NewMaintenanceService(homeCountry *features.HomeCountryRefresher, engine *features.Engine, batchSize int) *MaintenanceService {
	return &MaintenanceService{
		homeCountry: homeCountry,
		engine:      engine,
		batchSize:   batchSize,
	}
}

// RefreshHomeCountries 重新计算全部用户的常驻国家
func (s *MaintenanceService) RefreshHomeCountries(ctx context.Context) (*features.RefreshResult, error) {
	result, err := s.homeCountry.RefreshAll(ctx, 0)
	if err != nil {
		logger.WithContext(ctx).Errorw("home country refresh failed",
			"scanned", result.Scanned,
			"error", err,
		)
		return nil, err
	}
	return result, nil
}

// BackfillFeatures 为缺少特征的交易补算特征
func (s *MaintenanceService) BackfillFeatures(ctx context.Context, limit int) (*BackfillResult, error) {
	if limit <= 0 || limit > maxBackfillLimit {
		return nil, apperrors.ErrInvalidArgument.WithMessagef("limit must be within [1,%d]", maxBackfillLimit)
	}

	processed, err := s.engine.Backfill(ctx, limit, s.batchSize)
	if err != nil {
		return nil, err
	}
	return &BackfillResult{Processed: processed}, nil
}
