// Package app 提供反欺诈服务的应用入口
//
// ========================================
// eidos-fraud 服务对接总览
// ========================================
//
// ## 服务信息
// - 服务名: eidos-fraud
// - HTTP 端口: 8000 (业务 API)
// - 运维端口: 8080 (/metrics, /health/live, /health/ready)
// - gRPC 端口: 50056 (grpc.health.v1)
// - 数据库: frauddb (PostgreSQL)
//
// ## 依赖
// - PostgreSQL: 交易、特征、评估、审核记录
// - Redis (可选): 评估结果缓存
// - Kafka (可选): 决策与审核事件
// - 常驻国家定时刷新 (可选): home_country.refresh_cron
// - 模型包: model.artifact_path，缺失或损坏时拒绝启动
//
// ## Kafka 主题
// - 生产: fraud-decisions (每次评分), fraud-review-actions (每次审核)
//
// ========================================
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/cache"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/config"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/features"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/handler"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/kafka"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/router"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/scoring"
	"github.com/eidos-exchange/eidos/eidos-fraud/internal/service"
	apperrors "github.com/eidos-exchange/eidos/eidos-fraud/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/infra"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// App 反欺诈服务应用
type App struct {
	cfg *config.Config

	// 基础设施
	db          *gorm.DB
	redisClient redis.UniversalClient
	grpcServer  *grpc.Server
	apiServer   *http.Server // 业务 API (gin)
	opsServer   *http.Server // metrics + health

	kafkaProducer *kafka.Producer
	scheduler     *cron.Cron

	bundle *scoring.Bundle

	// 服务层
	scoringSvc     *service.ScoringService
	reviewSvc      *service.ReviewService
	monitoringSvc  *service.MonitoringService
	maintenanceSvc *service.MaintenanceService

	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建应用实例
func New(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run 启动应用
func (a *App) Run() error {
	// 1. 加载模型包，失败则拒绝启动
	bundle, err := scoring.Load(a.cfg.Model.ArtifactPath)
	if err != nil {
		return fmt.Errorf("failed to load model bundle: %w", err)
	}
	a.bundle = bundle

	// 2. 初始化数据库
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 3. 初始化 Redis
	if err := a.initRedis(); err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	// 4. 初始化 Kafka
	if err := a.initKafka(); err != nil {
		logger.Warn("failed to init kafka, running without kafka", "error", err)
	}

	// 5. 初始化服务层
	if err := a.initServices(); err != nil {
		return fmt.Errorf("failed to init services: %w", err)
	}

	// 6. 周期任务
	scheduler, err := newJobScheduler(a.cfg.HomeCountry.RefreshCron, a.maintenanceSvc)
	if err != nil {
		return err
	}
	if scheduler != nil {
		a.scheduler = scheduler
		a.scheduler.Start()
	}

	// 7. 启动 HTTP 服务
	a.startHTTP()

	// 8. 启动 gRPC 健康检查
	if err := a.startGRPC(); err != nil {
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	return nil
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down fraud service...")

	// 关闭顺序：周期任务 -> 服务端 -> 消息队列 -> 数据库 -> 缓存
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
	}
	if err := infra.ShutdownHTTPServer(a.apiServer, 10*time.Second); err != nil {
		logger.Error("api server shutdown error", "error", err)
	}
	if err := infra.ShutdownHTTPServer(a.opsServer, 5*time.Second); err != nil {
		logger.Error("ops server shutdown error", "error", err)
	}

	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}

	if a.kafkaProducer != nil {
		if err := a.kafkaProducer.Close(); err != nil {
			logger.Warn("close kafka producer failed", "error", err)
		}
	}

	if a.db != nil {
		sqlDB, _ := a.db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}

	if a.redisClient != nil {
		a.redisClient.Close()
	}

	a.cancel()
	logger.Info("fraud service stopped")
	return nil
}

// initDB 初始化数据库并执行迁移
func (a *App) initDB() error {
	db, err := infra.NewDatabase(databaseConfig(a.cfg))
	if err != nil {
		return err
	}
	a.db = db

	if err := AutoMigrate(a.db, a.cfg.Service.Name); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database migrated")

	return nil
}

// initRedis 初始化 Redis，未启用时不使用缓存
func (a *App) initRedis() error {
	if !a.cfg.Redis.Enabled {
		logger.Info("redis disabled, assessment cache off")
		return nil
	}

	a.redisClient = infra.NewRedisClient(&infra.RedisConfig{
		Addrs:    []string{a.cfg.Redis.Addr()},
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return a.redisClient.Ping(ctx).Err()
}

// initKafka 初始化 Kafka 生产者
func (a *App) initKafka() error {
	if !a.cfg.Kafka.Enabled || len(a.cfg.Kafka.Brokers) == 0 {
		logger.Info("kafka disabled")
		return nil
	}

	producer, err := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.ClientID, kafka.Topics{
		Decisions:     a.cfg.Kafka.DecisionTopic,
		ReviewActions: a.cfg.Kafka.ReviewTopic,
	})
	if err != nil {
		return err
	}
	a.kafkaProducer = producer

	logger.Info("kafka producer initialized",
		"brokers", a.cfg.Kafka.Brokers)

	return nil
}

// initServices 初始化服务层
func (a *App) initServices() error {
	// 创建仓储层
	txRepo := repository.NewTransactionRepository(a.db)
	dimRepo := repository.NewDimensionRepository(a.db)
	featureRepo := repository.NewFeatureRepository(a.db)
	assessRepo := repository.NewAssessmentRepository(a.db)
	actionRepo := repository.NewReviewActionRepository(a.db)
	monitoringRepo := repository.NewMonitoringRepository(a.db)

	policy, err := scoring.NewPolicy(a.cfg.Policy.ReviewThreshold, a.cfg.Policy.BlockThreshold)
	if err != nil {
		return err
	}
	scorer := scoring.NewScorer(a.bundle, a.cfg.Model.ExplainTopK)

	engine := features.NewEngine(txRepo, dimRepo, featureRepo, features.Options{
		PointInTime: a.cfg.Features.PointInTime,
	})
	refresher := features.NewHomeCountryRefresher(txRepo, dimRepo, a.cfg.HomeCountry.MaxStaleness())

	a.scoringSvc = service.NewScoringService(txRepo, dimRepo, assessRepo, actionRepo, featureRepo,
		engine, refresher, scorer, policy)
	a.reviewSvc = service.NewReviewService(txRepo, featureRepo, assessRepo, actionRepo,
		a.cfg.Review.AllowReReview, a.cfg.Review.DefaultAnalyst)
	a.monitoringSvc = service.NewMonitoringService(monitoringRepo, txRepo)
	a.maintenanceSvc = service.NewMaintenanceService(refresher, engine, a.cfg.Features.BackfillBatchSize)

	// 评估缓存
	if a.redisClient != nil {
		assessmentCache := cache.NewAssessmentCache(a.redisClient,
			time.Duration(a.cfg.Redis.AssessmentTTLSec)*time.Second)
		a.scoringSvc.SetCache(assessmentCache)
		a.reviewSvc.SetCache(assessmentCache)
	}

	// 设置 Kafka 回调
	if a.kafkaProducer != nil {
		a.scoringSvc.SetOnDecision(a.kafkaProducer.DecisionCallback())
		a.reviewSvc.SetOnReviewAction(a.kafkaProducer.ReviewActionCallback())
	}

	logger.Info("services initialized",
		"model_version", a.bundle.ModelVersion,
		"review_threshold", a.cfg.Policy.ReviewThreshold,
		"block_threshold", a.cfg.Policy.BlockThreshold,
		"point_in_time", a.cfg.Features.PointInTime,
	)
	return nil
}

// routes 创建业务 API 路由
func (a *App) routes() *gin.Engine {
	if a.cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	return router.New(&router.Handlers{
		Transaction: handler.NewTransactionHandler(a.scoringSvc, a.monitoringSvc),
		Review:      handler.NewReviewHandler(a.reviewSvc),
		Monitoring:  handler.NewMonitoringHandler(a.monitoringSvc),
		Maintenance: handler.NewMaintenanceHandler(a.maintenanceSvc),
	})
}

// startHTTP 启动业务 API 与运维 HTTP 服务
func (a *App) startHTTP() {
	a.apiServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	infra.StartHTTPServer(a.apiServer)

	a.opsServer = infra.NewHTTPServer(&infra.HTTPServerConfig{
		Port:  a.cfg.Service.OpsPort,
		DB:    a.db,
		Redis: a.redisClient,
		CustomChecker: func(ctx context.Context) error {
			if a.bundle == nil {
				return apperrors.ErrServiceUnavailable.WithMessage("model bundle not loaded")
			}
			return nil
		},
	})
	infra.StartHTTPServer(a.opsServer)
}

// startGRPC 启动 gRPC 健康检查服务
func (a *App) startGRPC() error {
	addr := fmt.Sprintf(":%d", a.cfg.Service.GRPCPort)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	a.grpcServer = grpc.NewServer()

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, healthServer)
	healthServer.SetServingStatus(a.cfg.Service.Name, grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		logger.Info("gRPC server listening", "addr", addr)
		if err := a.grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	return nil
}
