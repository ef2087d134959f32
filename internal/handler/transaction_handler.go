package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
)

// TransactionHandler 交易与评分接口
type TransactionHandler struct {
	scoringService    *service.ScoringService
	monitoringService *service.MonitoringService
}

// NewTransactionHandler 创建交易处理器
func NewTransactionHandler(scoringService *service.ScoringService, monitoringService *service.MonitoringService) *TransactionHandler {
	return &TransactionHandler{
		scoringService:    scoringService,
		monitoringService: monitoringService,
	}
}

// CreateAndScore 写入新交易并返回评分
// @Router /api/v1/transactions/score [post]
func (h *TransactionHandler) CreateAndScore(c *gin.Context) {
	var req service.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.scoringService.CreateAndScore(c.Request.Context(), &req)
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, result)
}

// Rescore 重新评分已有交易
// @Router /api/v1/transactions/{id}/score [post]
func (h *TransactionHandler) Rescore(c *gin.Context) {
	result, err := h.scoringService.Rescore(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, result)
}

// Get 查询交易
// @Router /api/v1/transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, err := h.scoringService.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, tx)
}

// List 按时间倒序查询交易
// @Param limit query int false "数量" default(50)
// @Param offset query int false "偏移" default(0)
// @Param is_fraud query bool false "是否欺诈"
// @Router /api/v1/transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}

	filter := &repository.TransactionFilter{
		UserID:   c.Query("user_id"),
		CardID:   c.Query("card_id"),
		Merchant: c.Query("merchant"),
	}
	if v := c.Query("is_fraud"); v != "" {
		isFraud, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(c, "is_fraud must be a boolean")
			return
		}
		filter.IsFraud = &isFraud
	}

	txs, err := h.scoringService.ListTransactions(c.Request.Context(), filter, repository.NewPagination(limit, offset))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, txs)
}

// GetFeatures 查询交易特征
// @Router /api/v1/transactions/{id}/features [get]
func (h *TransactionHandler) GetFeatures(c *gin.Context) {
	rec, err := h.scoringService.GetFeatures(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, rec)
}

// GetAssessment 查询风险评估
// @Router /api/v1/transactions/{id}/assessment [get]
func (h *TransactionHandler) GetAssessment(c *gin.Context) {
	a, err := h.scoringService.GetAssessment(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, a)
}

// FraudStats 欺诈统计
// @Router /api/v1/stats/fraud [get]
func (h *TransactionHandler) FraudStats(c *gin.Context) {
	stats, err := h.monitoringService.FraudStats(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, stats)
}

// parsePage 解析 limit/offset，limit 1..500，offset >= 0
func parsePage(c *gin.Context) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		BadRequest(c, "limit must be within [1,500]")
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		BadRequest(c, "offset must be >= 0")
		return 0, 0, false
	}
	return limit, offset, true
}
