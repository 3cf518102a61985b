package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"bitcurrency-bot/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Rates    RatesConfig    `mapstructure:"rates"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	History  HistoryConfig  `mapstructure:"history"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects and tunes the key-value backend.
type StorageConfig struct {
	// Backend is either "bunt" (embedded, default) or "postgres".
	Backend string `mapstructure:"backend"`
	// Path is the BuntDB file; ":memory:" keeps everything ephemeral.
	Path string `mapstructure:"path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the shared backend.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RatesConfig governs rate resolution and caching.
type RatesConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	BinanceBaseURL  string        `mapstructure:"binance_base_url"`
	WhiteBITBaseURL string        `mapstructure:"whitebit_base_url"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// QuotaConfig defines the daily free-request policy.
type QuotaConfig struct {
	DailyLimit int      `mapstructure:"daily_limit"`
	AdminIDs   []string `mapstructure:"admin_ids"`
}

// HistoryConfig bounds the per-user conversion history.
type HistoryConfig struct {
	Limit int           `mapstructure:"limit"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// AlertsConfig drives the standing-alert evaluator.
type AlertsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// TelegramConfig parameterises the notification sink.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PaymentConfig covers the Crypto Pay gateway boundary.
type PaymentConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIToken     string        `mapstructure:"api_token"`
	BaseURL      string        `mapstructure:"base_url"`
	PriceUSDT    float64       `mapstructure:"price_usdt"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BITCURRENCY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "bitcurrency")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.backend", "bunt")
	v.SetDefault("storage.path", "bitcurrency.db")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("rates.cache_ttl", "300s")
	v.SetDefault("rates.request_timeout", "5s")
	v.SetDefault("rates.binance_base_url", "https://api.binance.com")
	v.SetDefault("rates.whitebit_base_url", "https://whitebit.com")
	v.SetDefault("rates.user_agent", "bitcurrency/1.0")

	v.SetDefault("quota.daily_limit", 5)
	v.SetDefault("quota.admin_ids", []string{})

	v.SetDefault("history.limit", 20)
	v.SetDefault("history.ttl", "720h")

	v.SetDefault("alerts.interval", "60s")
	v.SetDefault("alerts.ttl", "720h")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "10s")

	v.SetDefault("payment.enabled", false)
	v.SetDefault("payment.base_url", "https://pay.crypt.bot")
	v.SetDefault("payment.price_usdt", 5.0)
	v.SetDefault("payment.poll_interval", "60s")
	v.SetDefault("payment.timeout", "15s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "bunt":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the bunt backend")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be \"bunt\" or \"postgres\", got %q", c.Storage.Backend)
	}
	if c.Rates.CacheTTL <= 0 {
		return fmt.Errorf("rates.cache_ttl must be greater than zero")
	}
	if c.Rates.RequestTimeout <= 0 {
		return fmt.Errorf("rates.request_timeout must be greater than zero")
	}
	if c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("quota.daily_limit must be greater than zero")
	}
	if c.History.Limit <= 0 {
		return fmt.Errorf("history.limit must be greater than zero")
	}
	if c.Alerts.Interval <= 0 {
		return fmt.Errorf("alerts.interval must be greater than zero")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	if c.Payment.Enabled {
		if c.Payment.APIToken == "" {
			return fmt.Errorf("payment.api_token is required when payment is enabled")
		}
		if c.Payment.PriceUSDT <= 0 {
			return fmt.Errorf("payment.price_usdt must be greater than zero")
		}
		if c.Payment.PollInterval <= 0 {
			return fmt.Errorf("payment.poll_interval must be greater than zero")
		}
	}
	return nil
}
