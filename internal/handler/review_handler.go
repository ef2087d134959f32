package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
)

// ReviewHandler 人工审核接口
type ReviewHandler struct {
	reviewService *service.ReviewService
}

// NewReviewHandler 创建审核处理器
func NewReviewHandler(reviewService *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// Queue 待人工审核队列
// @Param limit query int false "数量" default(50)
// @Param offset query int false "偏移" default(0)
// @Router /api/v1/review/queue [get]
func (h *ReviewHandler) Queue(c *gin.Context) {
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}

	items, err := h.reviewService.Queue(c.Request.Context(), repository.NewPagination(limit, offset))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, items)
}

// Case 案件详情
// @Router /api/v1/review/cases/{id} [get]
func (h *ReviewHandler) Case(c *gin.Context) {
	view, err := h.reviewService.Case(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, view)
}

// SubmitAction 提交审核动作
// 冲突时返回 409，data 为已记录的审核动作
// @Router /api/v1/review/cases/{id}/actions [post]
func (h *ReviewHandler) SubmitAction(c *gin.Context) {
	var req service.ReviewActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	action, err := h.reviewService.SubmitAction(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		if apperrors.IsConflict(err) && action != nil {
			Fail(c, err, action)
			return
		}
		Fail(c, err)
		return
	}

	Success(c, action)
}
