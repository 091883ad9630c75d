package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"goldex.com/internal/quotes/model"
	"goldex.com/internal/quotes/provider"
	"goldex.com/internal/quotes/provider/alphavantage"
	"goldex.com/internal/quotes/provider/finnhub"
	"goldex.com/internal/quotes/provider/iexcloud"
	"goldex.com/internal/quotes/provider/quandl"
	"goldex.com/internal/quotes/storage/influxsink"
	pkgconfig "goldex.com/pkg/config"
	"goldex.com/pkg/orm"
	"goldex.com/pkg/xredis"
)

const ServiceName = "gold-quotes"

// 总配置
type Config struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`

	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	WS         WSConfig         `mapstructure:"ws"`
	Refresh    RefreshConfig    `mapstructure:"refresh"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Historical HistoricalConfig `mapstructure:"historical"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Nats       NatsConfig       `mapstructure:"nats"`
	Influx     InfluxConfig     `mapstructure:"influx"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Trace      TraceConfig      `mapstructure:"trace"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WS 配置; Addr 为空时 /ws 挂在 HTTP 端口上
type WSConfig struct {
	Addr         string        `mapstructure:"addr"`
	QueueSize    int           `mapstructure:"queue_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
}

type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Symbols  []string      `mapstructure:"symbols"`
}

type ProviderConfig struct {
	Name       string        `mapstructure:"name"`
	Enabled    bool          `mapstructure:"enabled"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerMin int           `mapstructure:"rate_per_min"`
	Burst      int           `mapstructure:"burst"`
}

type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	FailureRate         float64       `mapstructure:"failure_rate"`
	MinRequests         uint32        `mapstructure:"min_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// 按 IP 限流
type RateLimitConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type HistoricalConfig struct {
	MaxDays int `mapstructure:"max_days"`
}

type RedisConfig struct {
	xredis.Config `mapstructure:",squash"`

	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type NatsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type InfluxConfig struct {
	influxsink.Config `mapstructure:",squash"`

	Enabled bool `mapstructure:"enabled"`
}

type MySQLConfig struct {
	orm.Config `mapstructure:",squash"`

	Enabled bool `mapstructure:"enabled"`
}

type TraceConfig struct {
	Endpoint string  `mapstructure:"endpoint"`
	Ratio    float64 `mapstructure:"ratio"`
}

type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	PprofAddr string `mapstructure:"pprof_addr"`
}

// Defaults are registered with viper before the file is read, so env
// overrides work for every key listed here.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"name":                         ServiceName,
		"env":                          "development",
		"version":                      "1.0.0",
		"log.level":                    "info",
		"log.file":                     "",
		"http.addr":                    ":4000",
		"http.read_timeout":            "10s",
		"http.write_timeout":           "15s",
		"http.shutdown_timeout":        "10s",
		"ws.addr":                      "",
		"ws.queue_size":                16,
		"ws.write_timeout":             "5s",
		"ws.ping_period":               "30s",
		"ws.pong_wait":                 "60s",
		"refresh.interval":             "30s",
		"refresh.symbols":              []string{"XAUUSD", "GC", "GLD", "GOLD"},
		"breaker.enabled":              true,
		"breaker.consecutive_failures": 5,
		"breaker.interval":             "1m",
		"breaker.open_timeout":         "30s",
		"rate_limit.max":               100,
		"rate_limit.window":            "1m",
		"rate_limit.ttl":               "10m",
		"historical.max_days":          365,
		"redis.enabled":                false,
		"redis.addr":                   "",
		"redis.ttl":                    "10m",
		"nats.enabled":                 false,
		"nats.url":                     "nats://127.0.0.1:4222",
		"influx.enabled":               false,
		"influx.url":                   "",
		"influx.token":                 "",
		"influx.org":                   "",
		"influx.bucket":                "gold",
		"mysql.enabled":                false,
		"mysql.dsn":                    "",
		"trace.endpoint":               "",
		"trace.ratio":                  1.0,
		"metrics.addr":                 "",
		"metrics.pprof_addr":           "",
	}
}

// Load reads config/gold-quotes.yaml (+ .env, GOLD_QUOTES_* env) and validates it.
func Load(paths ...string) (*Config, *viper.Viper, error) {
	cfg := &Config{}
	v, err := pkgconfig.Load(ServiceName, cfg, pkgconfig.Options{Paths: paths, Defaults: Defaults()})
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = []ProviderConfig{{Name: provider.MockName, Enabled: true}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	cfg.fillKeysFromEnv()
	return cfg, v, nil
}

// KeyEnv is the variable consulted when a provider has no api_key,
// e.g. GOLD_QUOTES_FINNHUB_API_KEY.
func KeyEnv(providerName string) string {
	return envPrefix + strings.ToUpper(providerName) + "_API_KEY"
}

const envPrefix = "GOLD_QUOTES_"

func (c *Config) fillKeysFromEnv() {
	for i := range c.Providers {
		if c.Providers[i].APIKey == "" {
			c.Providers[i].APIKey = os.Getenv(KeyEnv(c.Providers[i].Name))
		}
	}
}

var knownProviders = map[string]struct{}{
	alphavantage.Name: {},
	finnhub.Name:      {},
	iexcloud.Name:     {},
	quandl.Name:       {},
	provider.MockName: {},
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Refresh.Interval <= 0 {
		errs = append(errs, errors.New("refresh.interval must be positive"))
	}
	if len(c.Refresh.Symbols) == 0 {
		errs = append(errs, errors.New("refresh.symbols must not be empty"))
	}
	// 缓存 key 一律用规范化后的代码
	for i, raw := range c.Refresh.Symbols {
		sym, ok := model.NormalizeSymbol(raw)
		if !ok {
			errs = append(errs, fmt.Errorf("refresh.symbols[%d]: unsupported symbol %q", i, raw))
			continue
		}
		c.Refresh.Symbols[i] = sym
	}
	if c.WS.QueueSize <= 0 {
		errs = append(errs, errors.New("ws.queue_size must be positive"))
	}
	if c.WS.PingPeriod >= c.WS.PongWait {
		errs = append(errs, fmt.Errorf("ws.ping_period (%s) must be shorter than ws.pong_wait (%s)", c.WS.PingPeriod, c.WS.PongWait))
	}
	if c.Historical.MaxDays <= 0 {
		errs = append(errs, errors.New("historical.max_days must be positive"))
	}

	seen := make(map[string]bool, len(c.Providers))
	enabled := 0
	for i := range c.Providers {
		p := &c.Providers[i]
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		if _, ok := knownProviders[p.Name]; !ok {
			errs = append(errs, fmt.Errorf("providers[%d]: unknown provider %q", i, p.Name))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate provider %q", i, p.Name))
		}
		seen[p.Name] = true
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("at least one provider must be enabled"))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Org == "") {
		errs = append(errs, errors.New("influx.url and influx.org are required when influx is enabled"))
	}
	if c.MySQL.Enabled && c.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql.dsn is required when mysql is enabled"))
	}
	return errors.Join(errs...)
}

// EnabledProviders keeps configured order.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
