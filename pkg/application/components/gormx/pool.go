// Package gormx holds what the mysql and postgres gorm components share:
// pool settings, the zap bridge for gorm logs and the SQL migration runner.
package gormx

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig is embedded in each driver's datasource config.
type PoolConfig struct {
	MaxOpenConns int           `yaml:"max_open_conns" json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" json:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_life" json:"conn_max_life" toml:"conn_max_life"`
	ConnMaxIdle  time.Duration `yaml:"conn_max_idle" json:"conn_max_idle" toml:"conn_max_idle"`
	PingOnStart  bool          `yaml:"ping_on_start" json:"ping_on_start" toml:"ping_on_start"`

	SkipDefaultTransaction bool `yaml:"skip_default_tx" json:"skip_default_tx" toml:"skip_default_tx"`
	PrepareStmt            bool `yaml:"prepare_stmt" json:"prepare_stmt" toml:"prepare_stmt"`

	MigrateEnabled bool   `yaml:"migrate_enabled" json:"migrate_enabled" toml:"migrate_enabled"`
	MigrateDir     string `yaml:"migrate_dir" json:"migrate_dir" toml:"migrate_dir"`
}

// Open opens a gorm handle, applies pool limits, pings and migrates when asked.
func Open(ctx context.Context, dialector gorm.Dialector, pc PoolConfig, log logger.Interface) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   log,
		SkipDefaultTransaction:                   pc.SkipDefaultTransaction,
		PrepareStmt:                              pc.PrepareStmt,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(orDefault(pc.MaxOpenConns, 50))
	sqlDB.SetMaxIdleConns(orDefault(pc.MaxIdleConns, 10))
	if pc.ConnMaxLife > 0 {
		sqlDB.SetConnMaxLifetime(pc.ConnMaxLife)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	if pc.ConnMaxIdle > 0 {
		sqlDB.SetConnMaxIdleTime(pc.ConnMaxIdle)
	}

	if pc.PingOnStart {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := sqlDB.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
	}
	if pc.MigrateEnabled {
		if pc.MigrateDir == "" {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("migrate_enabled=true but migrate_dir is empty")
		}
		if _, err := RunMigrations(ctx, db, pc.MigrateDir); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return db, nil
}

// Close closes the pool behind db, ignoring handles that never opened.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks one handle.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
