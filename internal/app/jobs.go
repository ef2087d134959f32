package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// homeCountryRefreshTimeout 单次全量刷新超时
const homeCountryRefreshTimeout = 30 * time.Minute

// newJobScheduler 注册周期性运维任务，expr 为空时返回 nil
func newJobScheduler(expr string, maintenance *service.MaintenanceService) (*cron.Cron, error) {
	if expr == "" {
		return nil, nil
	}

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), homeCountryRefreshTimeout)
		defer cancel()

		start := time.Now()
		result, err := maintenance.RefreshHomeCountries(ctx)
		if err != nil {
			logger.Error("scheduled home country refresh failed", "error", err)
			return
		}
		logger.Info("scheduled home country refresh finished",
			"scanned", result.Scanned,
			"changed", result.Changed,
			"duration", time.Since(start),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid home_country.refresh_cron %q: %w", expr, err)
	}

	logger.Info("job registered", "job", "home_country_refresh", "cron", expr)
	return c, nil
}
