package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// Recovery panic 恢复，返回统一错误结构
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"panic", recovered,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "internal error",
		})
	})
}
