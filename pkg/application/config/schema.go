// config/schema.go
package config

import (
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/http_client"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/http_server"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/mysqlgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/nats"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/postgresgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/prometheus"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/redis"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/telemetry"
)

// AppConfig 应用程序配置结构
type AppConfig struct {
	APPInfo      *APPInfo                       `yaml:"app_info" json:"app_info" toml:"app_info"`
	Logging      *logging.LoggingConfig         `yaml:"logging" json:"logging" toml:"logging"`
	HTTPServer   *http_server.HTTPServerConfig  `yaml:"http_server" json:"http_server" toml:"http_server"`
	HTTPClients  *http_client.HTTPClientsConfig `yaml:"http_clients" json:"http_clients" toml:"http_clients"`
	MySQLGORM    *mysqlgorm.Config              `yaml:"mysql_gorm" json:"mysql_gorm" toml:"mysql_gorm"`
	PostgresGORM *postgresgorm.Config           `yaml:"postgres_gorm" json:"postgres_gorm" toml:"postgres_gorm"`
	Redis        *redis.Config                  `yaml:"redis" json:"redis" toml:"redis"`
	Prometheus   *prometheus.Config             `yaml:"prometheus" json:"prometheus" toml:"prometheus"`
	Telemetry    *telemetry.Config              `yaml:"telemetry" json:"telemetry" toml:"telemetry"`
	NATS         *nats.Config                   `yaml:"nats" json:"nats" toml:"nats"`

	// BizConfig 业务配置; 加载后替换为业务方传入的指针
	BizConfig any `yaml:"biz_config" json:"biz_config" toml:"biz_config"`
}

type APPInfo struct {
	APPName string `yaml:"app_name" json:"app_name" toml:"app_name"`
	ENV     string `yaml:"env" json:"env" toml:"env"`
}
