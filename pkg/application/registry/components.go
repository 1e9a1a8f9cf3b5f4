package registry

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/http_client"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/http_server"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/mysqlgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/nats"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/postgresgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/prometheus"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/redis"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/telemetry"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/config"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

// 框架内置组件: 配置缺失或 enabled=false 时跳过
func init() {
	Register(consts.COMPONENT_LOGGING, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Logging == nil || !cfg.Logging.Enabled {
			return false, nil, nil
		}
		comp, err := logging.NewFactory().Create(cfg.Logging)
		return true, comp, err
	})

	Register(consts.COMPONENT_TELEMETRY, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Telemetry == nil || !cfg.Telemetry.Enabled {
			return false, nil, nil
		}
		comp, err := telemetry.NewFactory().Create(cfg.Telemetry, appName(cfg))
		return true, comp, err
	})

	Register(consts.COMPONENT_PROMETHEUS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Prometheus == nil || !cfg.Prometheus.Enabled {
			return false, nil, nil
		}
		comp, err := prometheus.NewFactory().Create(cfg.Prometheus)
		return true, comp, err
	})

	Register(consts.COMPONENT_MYSQL_GORM, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.MySQLGORM == nil || !cfg.MySQLGORM.Enabled {
			return false, nil, nil
		}
		comp, err := mysqlgorm.NewFactory().Create(cfg.MySQLGORM)
		return true, comp, err
	})

	Register(consts.COMPONENT_POSTGRES_GORM, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.PostgresGORM == nil || !cfg.PostgresGORM.Enabled {
			return false, nil, nil
		}
		comp, err := postgresgorm.NewFactory().Create(cfg.PostgresGORM)
		return true, comp, err
	})

	Register(consts.COMPONENT_REDIS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Redis == nil || !cfg.Redis.Enabled {
			return false, nil, nil
		}
		comp, err := redis.NewFactory().Create(cfg.Redis)
		return true, comp, err
	})

	Register(consts.COMPONENT_NATS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.NATS == nil || !cfg.NATS.Enabled {
			return false, nil, nil
		}
		if cfg.NATS.Name == "" {
			cfg.NATS.Name = appName(cfg)
		}
		comp, err := nats.NewFactory().Create(cfg.NATS)
		return true, comp, err
	})

	Register(consts.COMPONENT_HTTP_CLIENTS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.HTTPClients == nil || !cfg.HTTPClients.Enabled {
			return false, nil, nil
		}
		comp, err := http_client.NewFactory().Create(cfg.HTTPClients)
		return true, comp, err
	})

	Register(consts.COMPONENT_HTTP_SERVER, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.HTTPServer == nil || !cfg.HTTPServer.Enabled {
			return false, nil, nil
		}
		if cfg.HTTPServer.ServiceName == "" {
			cfg.HTTPServer.ServiceName = appName(cfg)
		}
		comp, err := http_server.NewFactory(c).Create(cfg.HTTPServer)
		if err != nil {
			return true, nil, fmt.Errorf("http_server: %w", err)
		}
		return true, comp, nil
	})
}

func appName(cfg *config.AppConfig) string {
	if cfg.APPInfo == nil {
		return ""
	}
	return cfg.APPInfo.APPName
}
