// Package infra 提供数据库、Redis、运维 HTTP 服务的统一初始化
package infra

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
)

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        gormlogger.LogLevel
}

// NewDatabase 创建 GORM 数据库连接
func NewDatabase(cfg *DatabaseConfig) (*gorm.DB, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("database config is required")
	}

	logLevel := cfg.LogLevel
	if logLevel == 0 {
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	// 连接池配置
	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 30
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 10
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 30 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info("database connected",
		"max_open_conns", maxOpenConns,
		"max_idle_conns", maxIdleConns,
	)

	return db, nil
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addrs    []string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient 创建 Redis UniversalClient，单地址为单机模式，多地址为集群模式
func NewRedisClient(cfg *RedisConfig) redis.UniversalClient {
	opts := &redis.UniversalOptions{
		Addrs:           cfg.Addrs,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    5,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}
	if len(opts.Addrs) == 0 {
		opts.Addrs = []string{"localhost:6379"}
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 50
	}

	client := redis.NewUniversalClient(opts)

	logger.Info("redis client initialized",
		"addrs", opts.Addrs,
		"pool_size", opts.PoolSize,
	)

	return client
}

// HealthCheckHandler HTTP 健康检查处理器
type HealthCheckHandler struct {
	db            *gorm.DB
	rdb           redis.UniversalClient
	customChecker func(ctx context.Context) error
}

// NewHealthCheckHandler 创建健康检查处理器，rdb 可以为 nil
func NewHealthCheckHandler(db *gorm.DB, rdb redis.UniversalClient) *HealthCheckHandler {
	return &HealthCheckHandler{db: db, rdb: rdb}
}

// WithCustomChecker 添加自定义检查函数
func (h *HealthCheckHandler) WithCustomChecker(checker func(ctx context.Context) error) *HealthCheckHandler {
	h.customChecker = checker
	return h
}

// LivenessHandler 存活检查
func (h *HealthCheckHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ReadinessHandler 就绪检查
func (h *HealthCheckHandler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DB ERROR"))
			return
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("DB NOT READY"))
			return
		}
	}

	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("REDIS NOT READY"))
			return
		}
	}

	if h.customChecker != nil {
		if err := h.customChecker(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(err.Error()))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HTTPServerConfig 运维 HTTP 服务器配置
type HTTPServerConfig struct {
	Port          int
	DB            *gorm.DB
	Redis         redis.UniversalClient
	CustomChecker func(ctx context.Context) error
}

// NewHTTPServer 创建运维 HTTP 服务器，包含 /metrics 和 /health/* 端点
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	healthHandler := NewHealthCheckHandler(cfg.DB, cfg.Redis)
	if cfg.CustomChecker != nil {
		healthHandler.WithCustomChecker(cfg.CustomChecker)
	}
	mux.HandleFunc("/health/live", healthHandler.LivenessHandler)
	mux.HandleFunc("/health/ready", healthHandler.ReadinessHandler)
	// 兼容 k8s 标准路径
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// StartHTTPServer 启动 HTTP 服务器（非阻塞）
func StartHTTPServer(server *http.Server) {
	go func() {
		logger.Info("HTTP server listening",
			"addr", server.Addr,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()
}

// ShutdownHTTPServer 优雅关闭 HTTP 服务器
func ShutdownHTTPServer(server *http.Server, timeout time.Duration) error {
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(ctx)
}
