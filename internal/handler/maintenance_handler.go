package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
)

// MaintenanceHandler 运维接口
type MaintenanceHandler struct {
	maintenanceService *service.MaintenanceService
}

// NewMaintenanceHandler 创建运维处理器
func NewMaintenanceHandler(maintenanceService *service.MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{maintenanceService: maintenanceService}
}

// RefreshHomeCountries 重新计算全部用户常驻国家
// @Router /api/v1/maintenance/home-country/refresh [post]
func (h *MaintenanceHandler) RefreshHomeCountries(c *gin.Context) {
	result, err := h.maintenanceService.RefreshHomeCountries(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, result)
}

// BackfillFeatures 为缺少特征的交易补算特征
// @Param limit query int false "最多处理数量" default(1000)
// @Router /api/v1/maintenance/features/backfill [post]
func (h *MaintenanceHandler) BackfillFeatures(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "1000"))
	if err != nil {
		BadRequest(c, "limit must be an integer")
		return
	}

	result, err := h.maintenanceService.BackfillFeatures(c.Request.Context(), limit)
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, result)
}
