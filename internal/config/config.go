// Package config 提供反欺诈服务配置管理
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 反欺诈服务配置
type Config struct {
	Service     ServiceConfig     `yaml:"service" json:"service"`
	Postgres    PostgresConfig    `yaml:"postgres" json:"postgres"`
	Redis       RedisConfig       `yaml:"redis" json:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka" json:"kafka"`
	Model       ModelConfig       `yaml:"model" json:"model"`
	Features    FeaturesConfig    `yaml:"features" json:"features"`
	Policy      PolicyConfig      `yaml:"policy" json:"policy"`
	Review      ReviewConfig      `yaml:"review" json:"review"`
	HomeCountry HomeCountryConfig `yaml:"home_country" json:"home_country"`
	Log         LogConfig         `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"` // 业务 API (gin)
	GRPCPort int    `yaml:"grpc_port" json:"grpc_port"` // gRPC 健康检查
	OpsPort  int    `yaml:"ops_port" json:"ops_port"`   // metrics + health
	Env      string `yaml:"env" json:"env"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host                   string `yaml:"host" json:"host"`
	Port                   int    `yaml:"port" json:"port"`
	Database               string `yaml:"database" json:"database"`
	User                   string `yaml:"user" json:"user"`
	Password               string `yaml:"password" json:"password"`
	SSLMode                string `yaml:"ssl_mode" json:"ssl_mode"`
	MaxConnections         int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns           int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
}

// DSN 返回连接字符串
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
	// AssessmentTTLSec 评估结果缓存时间(秒)
	AssessmentTTLSec int `yaml:"assessment_ttl_sec" json:"assessment_ttl_sec"`
}

// Addr 返回 host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled" json:"enabled"`
	Brokers       []string `yaml:"brokers" json:"brokers"`
	ClientID      string   `yaml:"client_id" json:"client_id"`
	DecisionTopic string   `yaml:"decision_topic" json:"decision_topic"`
	ReviewTopic   string   `yaml:"review_topic" json:"review_topic"`
}

// ModelConfig 模型包配置
type ModelConfig struct {
	// ArtifactPath 训练产物路径，支持 .json / .yaml
	ArtifactPath string `yaml:"artifact_path" json:"artifact_path"`
	// ExplainTopK 解释原因条数
	ExplainTopK int `yaml:"explain_top_k" json:"explain_top_k"`
}

// FeaturesConfig 特征计算配置
type FeaturesConfig struct {
	// PointInTime 设备关联用户数与商户/类目欺诈率只统计 timestamp <= t 的交易
	PointInTime bool `yaml:"point_in_time" json:"point_in_time"`
	// BackfillBatchSize 补算特征单批数量
	BackfillBatchSize int `yaml:"backfill_batch_size" json:"backfill_batch_size"`
}

// PolicyConfig 决策阈值
type PolicyConfig struct {
	ReviewThreshold int `yaml:"review_threshold" json:"review_threshold"` // >= 进入人工审核
	BlockThreshold  int `yaml:"block_threshold" json:"block_threshold"`   // >= 拦截
}

// ReviewConfig 人工审核配置
type ReviewConfig struct {
	// AllowReReview 已结案的评估是否允许再次审核(最后一次生效)
	AllowReReview  bool   `yaml:"allow_re_review" json:"allow_re_review"`
	DefaultAnalyst string `yaml:"default_analyst" json:"default_analyst"`
}

// HomeCountryConfig 常驻国家刷新配置
type HomeCountryConfig struct {
	// MaxStalenessMinutes 超过该时间未刷新的用户在下一笔交易入库前重新计算，负数表示每次都刷新
	MaxStalenessMinutes int `yaml:"max_staleness_minutes" json:"max_staleness_minutes"`
	// RefreshCron 全量刷新调度(六段式，含秒)，为空不启用
	RefreshCron string `yaml:"refresh_cron" json:"refresh_cron"`
}

// MaxStaleness 返回刷新间隔
func (c *HomeCountryConfig) MaxStaleness() time.Duration {
	return time.Duration(c.MaxStalenessMinutes) * time.Minute
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析 YAML 配置内容
func Parse(data []byte) (*Config, error) {
	content := expandEnvVars(string(data))

	cfg := &Config{
		Features: FeaturesConfig{PointInTime: true},
		Review:   ReviewConfig{AllowReReview: true},
	}
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, err
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	p := c.Policy
	if p.ReviewThreshold < 0 || p.ReviewThreshold > 100 {
		return fmt.Errorf("policy.review_threshold must be within [0,100], got %d", p.ReviewThreshold)
	}
	if p.BlockThreshold < 0 || p.BlockThreshold > 100 {
		return fmt.Errorf("policy.block_threshold must be within [0,100], got %d", p.BlockThreshold)
	}
	if p.ReviewThreshold > p.BlockThreshold {
		return fmt.Errorf("policy.review_threshold (%d) must not exceed policy.block_threshold (%d)",
			p.ReviewThreshold, p.BlockThreshold)
	}
	if c.Model.ArtifactPath == "" {
		return fmt.Errorf("model.artifact_path is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "eidos-fraud"
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 8000
	}
	if cfg.Service.GRPCPort == 0 {
		cfg.Service.GRPCPort = 50056
	}
	if cfg.Service.OpsPort == 0 {
		cfg.Service.OpsPort = 8080
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = "frauddb"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 30
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 10
	}
	if cfg.Postgres.ConnMaxLifetimeMinutes == 0 {
		cfg.Postgres.ConnMaxLifetimeMinutes = 60
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 50
	}
	if cfg.Redis.AssessmentTTLSec == 0 {
		cfg.Redis.AssessmentTTLSec = 300
	}

	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = cfg.Service.Name
	}
	if cfg.Kafka.DecisionTopic == "" {
		cfg.Kafka.DecisionTopic = "fraud-decisions"
	}
	if cfg.Kafka.ReviewTopic == "" {
		cfg.Kafka.ReviewTopic = "fraud-review-actions"
	}

	if cfg.Model.ArtifactPath == "" {
		cfg.Model.ArtifactPath = "models/artifacts/fraud_model.json"
	}
	if cfg.Model.ExplainTopK == 0 {
		cfg.Model.ExplainTopK = 3
	}

	if cfg.Features.BackfillBatchSize == 0 {
		cfg.Features.BackfillBatchSize = 2000
	}

	// 决策阈值默认值
	if cfg.Policy.ReviewThreshold == 0 {
		cfg.Policy.ReviewThreshold = 60
	}
	if cfg.Policy.BlockThreshold == 0 {
		cfg.Policy.BlockThreshold = 90
	}

	if cfg.Review.DefaultAnalyst == "" {
		cfg.Review.DefaultAnalyst = "analyst_1"
	}

	if cfg.HomeCountry.MaxStalenessMinutes == 0 {
		cfg.HomeCountry.MaxStalenessMinutes = 60
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
