package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBiz struct {
	LeaseTimeout time.Duration `yaml:"lease_timeout" json:"lease_timeout" toml:"lease_timeout"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`
	Keep         string        `yaml:"keep" json:"keep" toml:"keep"`
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const yamlCfg = `
app_info:
  app_name: outreach
  env: test
http_server:
  enabled: true
  address: ":8080"
mysql_gorm:
  enabled: true
  data_sources:
    default:
      dsn: "u:p@tcp(db:3306)/outreach"
biz_config:
  lease_timeout: 90s
  max_attempts: 5
`

func TestLoader_YAMLWithBiz(t *testing.T) {
	biz := &testBiz{Keep: "default"}
	cm := NewConfigManagerWithBiz("test", writeFile(t, "c.yaml", yamlCfg), biz)
	require.NoError(t, cm.LoadConfig())

	assert.Equal(t, "outreach", cm.GetConfig().APPInfo.APPName)
	assert.Same(t, biz, cm.BizConfig())
	assert.Equal(t, 90*time.Second, biz.LeaseTimeout)
	assert.Equal(t, 5, biz.MaxAttempts)
	assert.Equal(t, "default", biz.Keep)
}

func TestLoader_TOML(t *testing.T) {
	body := `
[app_info]
app_name = "outreach"
env = "test"

[biz_config]
max_attempts = 4
`
	biz := &testBiz{}
	cm := NewConfigManagerWithBiz("test", writeFile(t, "c.toml", body), biz)
	require.NoError(t, cm.LoadConfig())
	assert.Equal(t, 4, biz.MaxAttempts)
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := NewLoader("test", writeFile(t, "c.yaml", yamlCfg))
	env := map[string]string{
		"OUTREACH_HTTP_ADDRESS": ":9999",
		"OUTREACH_MYSQL_DSN":    "x:y@tcp(other:3306)/o",
		"OUTREACH_REDIS_ADDR":   "r1:6379,r2:6379",
	}
	l.lookupEnv = func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg, err := l.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPServer.Address)
	assert.Equal(t, "x:y@tcp(other:3306)/o", cfg.MySQLGORM.DataSources["default"].DSN)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.Redis.Addresses)
}

func TestLoader_EnvFile(t *testing.T) {
	t.Setenv("OUTREACH_NATS_URL", "")
	os.Unsetenv("OUTREACH_NATS_URL")
	cfgPath := writeFile(t, "c.yaml", yamlCfg+"nats:\n  enabled: true\n  url: nats://a:4222\n")
	l := NewLoader("test", cfgPath)
	l.SetEnvFile(writeFile(t, ".env", "OUTREACH_NATS_URL=nats://b:4222\n"))

	cfg, err := l.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "nats://b:4222", cfg.NATS.URL)
}

func TestManager_RejectsBadEnvAndMissingFile(t *testing.T) {
	require.Error(t, NewConfigManager("test", filepath.Join(t.TempDir(), "none.yaml")).LoadConfig())

	body := "app_info:\n  app_name: outreach\n  env: staging\n"
	require.ErrorContains(t, NewConfigManager("test", writeFile(t, "c.yaml", body)).LoadConfig(), "not valid")
}
