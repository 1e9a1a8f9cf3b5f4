// config/loader.go
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/mysqlgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/postgresgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/redis"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
)

// Loader 配置加载器
type Loader struct {
	env        string
	configPath string
	// envFile 可选 .env 文件, 不覆盖已存在的进程环境变量
	envFile string
	// bizConfig: 业务方传入的指针, 用于填充 biz_config 小节
	bizConfig any
	lookupEnv func(string) (string, bool)
}

func NewLoader(env string, configPath string) *Loader {
	if env == "" {
		env = consts.ENV_DEVELOPMENT
	}
	if configPath == "" {
		configPath = consts.DEFAULT_CONFIG_PATH
	}
	return &Loader{env: env, configPath: configPath, lookupEnv: os.LookupEnv}
}

// SetEnvFile sets a dotenv file loaded before env overrides are applied.
func (l *Loader) SetEnvFile(path string) { l.envFile = path }

// SetBizConfig 注入业务方自定义配置结构指针 (例如: &MyBizConfig{}), 需在 LoadConfig 之前调用。
func (l *Loader) SetBizConfig(b any) {
	if b == nil {
		return
	}
	if reflect.TypeOf(b).Kind() != reflect.Ptr {
		panic("SetBizConfig expects a pointer, e.g. &MyBizConfig{}")
	}
	l.bizConfig = b
}

// LoadConfig 先整体解析 AppConfig, 再把 biz_config 子树二次反序列化到业务指针, 最后合并环境变量。
func (l *Loader) LoadConfig() (*AppConfig, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(l.configPath))
	var cfg AppConfig
	if err := unmarshal(ext, data, &cfg); err != nil {
		return nil, err
	}

	if l.bizConfig != nil {
		if cfg.BizConfig != nil {
			if err := decodeBizSection(ext, cfg.BizConfig, l.bizConfig); err != nil {
				return nil, fmt.Errorf("decode biz_config failed: %w", err)
			}
		}
		cfg.BizConfig = l.bizConfig
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", l.envFile, err)
		}
	}
	l.mergeEnvVars(&cfg)
	if cfg.APPInfo == nil {
		cfg.APPInfo = &APPInfo{}
	}
	if cfg.APPInfo.ENV == "" {
		cfg.APPInfo.ENV = l.env
	}
	return &cfg, nil
}

func unmarshal(ext string, data []byte, out any) error {
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), out); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	return nil
}

// decodeBizSection 将已解析的 interface{} 子树重新序列化后解码到业务指针, 保留指针中的默认值。
func decodeBizSection(ext string, raw any, target any) error {
	var (
		buf []byte
		err error
	)
	switch ext {
	case ".yaml", ".yml":
		buf, err = yaml.Marshal(raw)
	case ".json":
		buf, err = json.Marshal(raw)
	case ".toml":
		var b bytes.Buffer
		err = toml.NewEncoder(&b).Encode(raw)
		buf = b.Bytes()
	default:
		return fmt.Errorf("unsupported format: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("re-marshal biz_config failed: %w", err)
	}
	return unmarshal(ext, buf, target)
}

// mergeEnvVars applies OUTREACH_* overrides on top of the file.
func (l *Loader) mergeEnvVars(cfg *AppConfig) {
	get := func(key string) (string, bool) {
		v, ok := l.lookupEnv(consts.ENV_PREFIX + key)
		return v, ok && v != ""
	}
	if v, ok := get("APP_NAME"); ok {
		if cfg.APPInfo == nil {
			cfg.APPInfo = &APPInfo{}
		}
		cfg.APPInfo.APPName = v
	}
	if v, ok := get("LOG_LEVEL"); ok && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
	if v, ok := get("HTTP_ADDRESS"); ok && cfg.HTTPServer != nil {
		cfg.HTTPServer.Address = v
	}
	if v, ok := get("MYSQL_DSN"); ok && cfg.MySQLGORM != nil {
		if cfg.MySQLGORM.DataSources == nil {
			cfg.MySQLGORM.DataSources = map[string]*mysqlgorm.DataSourceConfig{}
		}
		ds := cfg.MySQLGORM.DataSources["default"]
		if ds == nil {
			ds = &mysqlgorm.DataSourceConfig{}
			cfg.MySQLGORM.DataSources["default"] = ds
		}
		ds.DSN = v
	}
	if v, ok := get("POSTGRES_DSN"); ok && cfg.PostgresGORM != nil {
		if cfg.PostgresGORM.DataSources == nil {
			cfg.PostgresGORM.DataSources = map[string]*postgresgorm.DataSourceConfig{}
		}
		ds := cfg.PostgresGORM.DataSources["default"]
		if ds == nil {
			ds = &postgresgorm.DataSourceConfig{}
			cfg.PostgresGORM.DataSources["default"] = ds
		}
		ds.DSN = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		if cfg.Redis == nil {
			cfg.Redis = &redis.Config{}
		}
		cfg.Redis.Addresses = strings.Split(v, ",")
	}
	if v, ok := get("REDIS_PASSWORD"); ok && cfg.Redis != nil {
		cfg.Redis.Password = v
	}
	if v, ok := get("NATS_URL"); ok && cfg.NATS != nil {
		cfg.NATS.URL = v
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
