// Package router 注册 HTTP 路由
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/handler"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/middleware"
)

// Handlers 所有处理器
type Handlers struct {
	Transaction *handler.TransactionHandler
	Review      *handler.ReviewHandler
	Monitoring  *handler.MonitoringHandler
	Maintenance *handler.MaintenanceHandler
}

// New 创建 gin 引擎并注册中间件与路由
func New(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger(), middleware.Metrics())
	SetupRouter(r, h)
	return r
}

// SetupRouter 设置路由
func SetupRouter(r *gin.Engine, h *Handlers) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		txs := v1.Group("/transactions")
		{
			txs.GET("", h.Transaction.List)
			txs.POST("/score", h.Transaction.CreateAndScore)
			txs.GET("/:id", h.Transaction.Get)
			txs.POST("/:id/score", h.Transaction.Rescore)
			txs.GET("/:id/features", h.Transaction.GetFeatures)
			txs.GET("/:id/assessment", h.Transaction.GetAssessment)
		}

		v1.GET("/stats/fraud", h.Transaction.FraudStats)

		review := v1.Group("/review")
		{
			review.GET("/queue", h.Review.Queue)
			review.GET("/cases/:id", h.Review.Case)
			review.POST("/cases/:id/actions", h.Review.SubmitAction)
		}

		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/summary", h.Monitoring.Summary)
			monitoring.GET("/score-buckets", h.Monitoring.ScoreBuckets)
			monitoring.GET("/top-merchants", h.Monitoring.TopMerchants)
		}

		maintenance := v1.Group("/maintenance")
		{
			maintenance.POST("/home-country/refresh", h.Maintenance.RefreshHomeCountries)
			maintenance.POST("/features/backfill", h.Maintenance.BackfillFeatures)
		}
	}
}
