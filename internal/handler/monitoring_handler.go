package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
)

// MonitoringHandler 监控汇总接口
type MonitoringHandler struct {
	monitoringService *service.MonitoringService
}

// NewMonitoringHandler 创建监控处理器
func NewMonitoringHandler(monitoringService *service.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{monitoringService: monitoringService}
}

// Summary 最近 24 小时决策分布
// @Router /api/v1/monitoring/summary [get]
func (h *MonitoringHandler) Summary(c *gin.Context) {
	summary, err := h.monitoringService.Summary(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, summary)
}

// ScoreBuckets 最近 24 小时风险分分桶
// @Router /api/v1/monitoring/score-buckets [get]
func (h *MonitoringHandler) ScoreBuckets(c *gin.Context) {
	buckets, err := h.monitoringService.ScoreBuckets(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, buckets)
}

// TopMerchants 最近 24 小时平均风险最高的商户
// @Param limit query int false "数量" default(10)
// @Router /api/v1/monitoring/top-merchants [get]
func (h *MonitoringHandler) TopMerchants(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > 50 {
		BadRequest(c, "limit must be within [1,50]")
		return
	}

	merchants, err := h.monitoringService.TopMerchants(c.Request.Context(), limit)
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, merchants)
}
