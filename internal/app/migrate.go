package app

import (
	"time"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/config"
	"github.com/eidos-exchange/eidos/eidos-fraud/migrations"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/infra"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/logger"
	"github.com/eidos-exchange/eidos/eidos-fraud/pkg/migrate"
)

// databaseConfig 由服务配置生成连接池配置
func databaseConfig(cfg *config.Config) *infra.DatabaseConfig {
	pg := cfg.Postgres
	return &infra.DatabaseConfig{
		DSN:             pg.DSN(),
		MaxOpenConns:    pg.MaxConnections,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeMinutes) * time.Minute,
	}
}

// AutoMigrate 自动执行数据库迁移
func AutoMigrate(db *gorm.DB, serviceName string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	migrator := migrate.NewMigrator(sqlDB, serviceName, logger.L())
	if err := migrator.AutoMigrate(migrations.FS, "."); err != nil {
		logger.Error("auto migration failed", "error", err)
		return err
	}

	return nil
}

// RollbackMigration 回滚最近一个迁移版本，供 -migrate-down 使用
func RollbackMigration(cfg *config.Config) error {
	db, err := infra.NewDatabase(databaseConfig(cfg))
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	migrator := migrate.NewMigrator(sqlDB, cfg.Service.Name, logger.L())
	if err := migrator.Rollback(migrations.FS, "."); err != nil {
		logger.Error("migration rollback failed", "error", err)
		return err
	}
	return nil
}
