package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_SOURCE", "")
	t.Setenv("LISTEN_PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 80, cfg.ListenPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, SourceRedcap, cfg.DataSource)
	assert.True(t, cfg.FilterToComplete)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, time.Hour, cfg.Redis.CacheTTL)
	assert.Equal(t, "redcap.outliers", cfg.Notify.KafkaTopic)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 30, cfg.RateLimit.MaxValidate)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_PORT", "8080")
	t.Setenv("DATA_SOURCE", "mongo")
	t.Setenv("MONGO_DATABASE", "covid")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDCAP_TIMEOUT", "5s")
	t.Setenv("FILTER_TO_COMPLETE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ListenPort)
	assert.Equal(t, SourceMongo, cfg.DataSource)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.Redcap.Timeout)
	assert.False(t, cfg.FilterToComplete)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("LISTEN_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func validConfig(mutate func(c *Config)) Config {
	cfg := Config{
		ListenPort: 80,
		DataSource: SourceRedcap,
		Redcap:     RedcapConfig{URL: "http://x/api/", Token: "t"},
		Redis:      RedisConfig{LockTTL: 30 * time.Minute},
		RateLimit:  RateLimitConfig{Window: time.Minute},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "redcap完整", cfg: validConfig(nil)},
		{name: "redcap缺少令牌", cfg: validConfig(func(c *Config) { c.Redcap.Token = "" }), wantErr: true},
		{name: "mongo缺少库名", cfg: validConfig(func(c *Config) { c.DataSource = SourceMongo }), wantErr: true},
		{name: "未知数据源", cfg: validConfig(func(c *Config) { c.DataSource = "csv" }), wantErr: true},
		{name: "端口无效", cfg: validConfig(func(c *Config) { c.ListenPort = 0 }), wantErr: true},
		{name: "锁过期时间为零", cfg: validConfig(func(c *Config) { c.Redis.LockTTL = 0 }), wantErr: true},
		{name: "锁过期时间为负", cfg: validConfig(func(c *Config) { c.Redis.LockTTL = -time.Second }), wantErr: true},
		{name: "限流窗口为零", cfg: validConfig(func(c *Config) { c.RateLimit.Window = 0 }), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoad_RejectsZeroLockTTL(t *testing.T) {
	t.Setenv("DATA_SOURCE", "redcap")
	t.Setenv("LISTEN_PORT", "80")
	t.Setenv("REDCAP_API_URL", "http://x/api/")
	t.Setenv("REDCAP_API_TOKEN", "t")
	t.Setenv("SCHEDULER_LOCK_TTL", "0s")

	_, err := LoadAndValidate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "SCHEDULER_LOCK_TTL")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "disable", Schema: "s", TimeZone: "UTC"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable search_path=s TimeZone=UTC", cfg.DSN())

	cfg.URL = "postgres://u:p@db/n"
	assert.Equal(t, "postgres://u:p@db/n", cfg.DSN())
}
