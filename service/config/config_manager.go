/*
 * @module service/config/config_manager
 * @description 配置管理器，负责从 .env 与环境变量加载服务配置并做基本校验
 * @architecture 分层架构 - 基础设施层
 * @stateFlow .env(可选) -> 环境变量 -> Config -> 校验 -> 各服务组件
 * @rules .env 不存在时忽略；DATABASE_URL 优先于分离的数据库变量；数据源只能是 redcap 或 mongo
 * @dependencies github.com/caarlos0/env/v11, github.com/joho/godotenv
 * @refs service/init.go, main.go
 */

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 数据源类型
const (
	SourceRedcap = "redcap"
	SourceMongo  = "mongo"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("配置无效")

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	Schema   string `env:"DB_SCHEMA" envDefault:"public"`
	TimeZone string `env:"DB_TIMEZONE" envDefault:"America/Sao_Paulo"`
}

// DSN 返回 postgres 连接串
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Schema, c.TimeZone)
}

// RedcapConfig REDCap API 配置
type RedcapConfig struct {
	URL     string        `env:"REDCAP_API_URL"`
	Token   string        `env:"REDCAP_API_TOKEN"`
	Timeout time.Duration `env:"REDCAP_TIMEOUT" envDefault:"60s"`
}

// MongoConfig 文档库配置
type MongoConfig struct {
	URL      string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGO_DATABASE"`
}

// RedisConfig Redis 配置，用于字典缓存与分布式锁
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL time.Duration `env:"CODEBOOK_CACHE_TTL" envDefault:"1h"`
	LockTTL  time.Duration `env:"SCHEDULER_LOCK_TTL" envDefault:"30m"`
}

// NotifyConfig 运行结果通知配置，broker 为空表示不启用
type NotifyConfig struct {
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"redcap.outliers"`
	MQTTBroker   string   `env:"MQTT_BROKER"`
	MQTTTopic    string   `env:"MQTT_TOPIC" envDefault:"redcap/outliers"`
	MQTTClientID string   `env:"MQTT_CLIENT_ID" envDefault:"redcap-outlier-service"`
}

// RateLimitConfig 内联校验与手动运行的限流配置，依赖 Redis，最大次数为 0 表示不限流
type RateLimitConfig struct {
	Window      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	MaxValidate int           `env:"RATE_LIMIT_VALIDATE" envDefault:"30"`
	MaxRuns     int           `env:"RATE_LIMIT_RUNS" envDefault:"5"`
}

// Config 服务配置
type Config struct {
	ListenPort  int    `env:"LISTEN_PORT" envDefault:"80"`
	BaseContext string `env:"BASE_CONTEXT"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	ProjectID        string `env:"PROJECT_ID" envDefault:"default"`
	DataSource       string `env:"DATA_SOURCE" envDefault:"redcap"`
	RuleSetPath      string `env:"RULESET_PATH"`
	ReportDir        string `env:"REPORT_DIR" envDefault:"./reports"`
	FilterToComplete bool   `env:"FILTER_TO_COMPLETE" envDefault:"true"`
	Schedule         string `env:"OUTLIER_SCHEDULE"`

	Database  DatabaseConfig
	Redcap    RedcapConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
}

// Validate 校验配置组合
func (c *Config) Validate() error {
	var problems []string

	switch c.DataSource {
	case SourceRedcap:
		if c.Redcap.URL == "" || c.Redcap.Token == "" {
			problems = append(problems, "redcap 数据源需要 REDCAP_API_URL 与 REDCAP_API_TOKEN")
		}
	case SourceMongo:
		if c.Mongo.Database == "" {
			problems = append(problems, "mongo 数据源需要 MONGO_DATABASE")
		}
	default:
		problems = append(problems, fmt.Sprintf("不支持的数据源 %q", c.DataSource))
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		problems = append(problems, fmt.Sprintf("监听端口 %d 无效", c.ListenPort))
	}
	if c.Redis.LockTTL <= 0 {
		problems = append(problems, fmt.Sprintf("SCHEDULER_LOCK_TTL 必须为正数，当前为 %s", c.Redis.LockTTL))
	}
	if c.RateLimit.Window <= 0 {
		problems = append(problems, fmt.Sprintf("RATE_LIMIT_WINDOW 必须为正数，当前为 %s", c.RateLimit.Window))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

var dotenvOnce sync.Once

// Load 加载配置：先尝试读取 .env，再解析环境变量
func Load() (*Config, error) {
	dotenvOnce.Do(func() {
		// .env 可以不存在
		_ = godotenv.Load()
	})

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	return cfg, nil
}

// LoadAndValidate 加载并校验配置
func LoadAndValidate() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
