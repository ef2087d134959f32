// Package handler 提供反欺诈 HTTP 接口
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// BadRequest 请求参数错误
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

// Fail 按业务错误码响应，内部错误只返回通用消息
// 冲突错误附带 data，例如被记录的审核动作；未传 data 时返回错误详情
func Fail(c *gin.Context, err error, data ...interface{}) {
	appErr := apperrors.FromError(err)
	status := appErr.HTTPStatus
	if appErr.IsInternal() {
		logger.WithContext(c.Request.Context()).Errorw("request failed",
			"path", c.FullPath(),
			"code", appErr.Code,
			"error", err,
		)
		_ = c.Error(err)
	}

	resp := Response{
		Code:    status,
		Message: appErr.Message,
	}
	switch {
	case len(data) > 0:
		resp.Data = data[0]
	case len(appErr.Details) > 0:
		resp.Data = appErr.Details
	}
	c.JSON(status, resp)
}
