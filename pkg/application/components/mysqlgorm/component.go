package mysqlgorm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	mysqlDriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/gormx"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

// GormComponent keeps one *gorm.DB per named MySQL datasource.
type GormComponent struct {
	*core.BaseComponent
	cfg *Config
	log logger.Interface

	mu  sync.RWMutex
	dbs map[string]*gorm.DB
}

func NewGormComponent(cfg *Config) *GormComponent {
	return &GormComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_MYSQL_GORM, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		log:           gormx.NewLogger(consts.COMPONENT_MYSQL_GORM, cfg.LogLevel, cfg.SlowThreshold),
		dbs:           make(map[string]*gorm.DB),
	}
}

func (c *GormComponent) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	for _, name := range c.names() {
		ds := c.cfg.DataSources[name]
		dsn, err := BuildDSN(ds)
		if err != nil {
			return fmt.Errorf("datasource %s: %w", name, err)
		}
		db, err := gormx.Open(ctx, mysqlDriver.New(mysqlDriver.Config{DSN: dsn}), ds.PoolConfig, c.log)
		if err != nil {
			c.closeAll(ctx)
			return fmt.Errorf("mysql_gorm datasource %s: %w", name, err)
		}
		c.mu.Lock()
		c.dbs[name] = db
		c.mu.Unlock()
		logging.Infof(ctx, "[mysql_gorm] datasource %s ready", name)
	}
	return nil
}

func (c *GormComponent) Stop(ctx context.Context) error {
	c.closeAll(ctx)
	return c.BaseComponent.Stop(ctx)
}

func (c *GormComponent) HealthCheck() error {
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

func (c *GormComponent) GetDB(name string) (*gorm.DB, error) {
	c.mu.RLock()
	db, ok := c.dbs[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mysql_gorm datasource %s not found", name)
	}
	return db, nil
}

func (c *GormComponent) closeAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, db := range c.dbs {
		if err := gormx.Close(db); err != nil {
			logging.Warnf(ctx, "[mysql_gorm] close %s: %v", name, err)
		}
		delete(c.dbs, name)
	}
}

func (c *GormComponent) names() []string {
	names := make([]string, 0, len(c.cfg.DataSources))
	for k := range c.cfg.DataSources {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// BuildDSN returns ds.DSN as is, or formats one from the discrete fields.
// parseTime is always on because the task tables are read into time.Time.
func BuildDSN(ds *DataSourceConfig) (string, error) {
	if strings.TrimSpace(ds.DSN) != "" {
		return ds.DSN, nil
	}
	if ds.Host == "" || ds.User == "" || ds.Database == "" {
		return "", errors.New("host, user and database are required when dsn is empty")
	}
	port := ds.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = ds.User
	mc.Passwd = ds.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(ds.Host, strconv.Itoa(port))
	mc.DBName = ds.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range ds.Params {
		mc.Params[k] = v
	}
	return mc.FormatDSN(), nil
}
