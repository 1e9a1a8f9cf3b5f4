package postgresgorm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/gormx"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

// PostgresGormComponent keeps one *gorm.DB per named PostgreSQL datasource.
type PostgresGormComponent struct {
	*core.BaseComponent
	cfg *Config
	log logger.Interface

	mu  sync.RWMutex
	dbs map[string]*gorm.DB
}

func NewPostgresGormComponent(cfg *Config) *PostgresGormComponent {
	return &PostgresGormComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_POSTGRES_GORM, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		log:           gormx.NewLogger(consts.COMPONENT_POSTGRES_GORM, cfg.LogLevel, cfg.SlowThreshold),
		dbs:           make(map[string]*gorm.DB),
	}
}

func (c *PostgresGormComponent) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	names := make([]string, 0, len(c.cfg.DataSources))
	for k := range c.cfg.DataSources {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		ds := c.cfg.DataSources[name]
		dsn, err := BuildDSN(ds)
		if err != nil {
			return fmt.Errorf("datasource %s: %w", name, err)
		}
		db, err := gormx.Open(ctx, gormpg.Open(dsn), ds.PoolConfig, c.log)
		if err != nil {
			c.closeAll(ctx)
			return fmt.Errorf("postgres_gorm datasource %s: %w", name, err)
		}
		c.mu.Lock()
		c.dbs[name] = db
		c.mu.Unlock()
		logging.Infof(ctx, "[postgres_gorm] datasource %s ready", name)
	}
	return nil
}

func (c *PostgresGormComponent) Stop(ctx context.Context) error {
	c.closeAll(ctx)
	return c.BaseComponent.Stop(ctx)
}

func (c *PostgresGormComponent) HealthCheck() error {
	if err := c.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, db := range c.dbs {
		if err := gormx.Ping(db); err != nil {
			return fmt.Errorf("datasource %s ping failed: %w", name, err)
		}
	}
	return nil
}

func (c *PostgresGormComponent) GetDB(name string) (*gorm.DB, error) {
	c.mu.RLock()
	db, ok := c.dbs[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("postgres_gorm datasource %s not found", name)
	}
	return db, nil
}

func (c *PostgresGormComponent) closeAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, db := range c.dbs {
		if err := gormx.Close(db); err != nil {
			logging.Warnf(ctx, "[postgres_gorm] close %s: %v", name, err)
		}
		delete(c.dbs, name)
	}
}

// BuildDSN returns a validated DSN, building a keyword/value string from discrete fields when DSN is empty.
func BuildDSN(ds *DataSourceConfig) (string, error) {
	if dsn := strings.TrimSpace(ds.DSN); dsn != "" {
		if _, err := pgx.ParseConfig(dsn); err != nil {
			return "", fmt.Errorf("invalid dsn: %w", err)
		}
		return dsn, nil
	}
	if ds.Host == "" || ds.User == "" || ds.Database == "" {
		return "", errors.New("host, user and database are required when dsn is empty")
	}
	port := ds.Port
	if port == 0 {
		port = 5432
	}
	sslmode := ds.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		kv("host", ds.Host),
		kv("port", fmt.Sprint(port)),
		kv("user", ds.User),
		kv("password", ds.Password),
		kv("dbname", ds.Database),
		kv("sslmode", sslmode),
	}
	keys := make([]string, 0, len(ds.Params))
	for k := range ds.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, kv(k, ds.Params[k]))
	}
	return strings.Join(parts, " "), nil
}

// kv quotes values the way libpq keyword/value strings expect.
func kv(k, v string) string {
	if v == "" || strings.ContainsAny(v, ` '\`) {
		v = "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
	}
	return k + "=" + v
}
