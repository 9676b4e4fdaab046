package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Database DatabaseConfig `mapstructure:"database"`
	Quotes   QuoteConfig    `mapstructure:"quotes"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServiceConfig struct {
	Port      string `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type QuoteProvider string

const (
	ProviderIEX       QuoteProvider = "iex"
	ProviderSimulated QuoteProvider = "simulated"
	ProviderStatic    QuoteProvider = "static"
)

type QuoteConfig struct {
	Provider QuoteProvider     `mapstructure:"provider"`
	BaseURL  string            `mapstructure:"base_url"`
	APIKey   string            `mapstructure:"api_key"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Seed     int64             `mapstructure:"seed"`
	Prices   map[string]string `mapstructure:"prices"`
}

type LedgerConfig struct {
	StartingCash   int64         `mapstructure:"starting_cash"`
	MaxDeposit     int64         `mapstructure:"max_deposit"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
	RefreshWorkers int           `mapstructure:"refresh_workers"`
}

type AuthConfig struct {
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", "8080")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_format", "text")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:finance.db?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("quotes.provider", string(ProviderIEX))
	v.SetDefault("quotes.base_url", "https://cloud.iexapis.com")
	v.SetDefault("quotes.timeout", 5*time.Second)
	v.SetDefault("quotes.seed", 1)

	v.SetDefault("ledger.starting_cash", 10000)
	v.SetDefault("ledger.max_deposit", 10000)
	v.SetDefault("ledger.max_retries", 5)
	v.SetDefault("ledger.retry_base", 10*time.Millisecond)
	v.SetDefault("ledger.refresh_workers", 4)

	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
}

// Load reads defaults, then finance.yaml from path when present, then the
// environment. Nested keys map to upper-case env names with underscores
// (DATABASE_DSN); the legacy POSTGRES_URL, PORT and API_KEY are honored too.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.dsn", "DATABASE_DSN", "POSTGRES_URL")
	_ = v.BindEnv("service.port", "SERVICE_PORT", "PORT")
	_ = v.BindEnv("quotes.api_key", "QUOTES_API_KEY", "API_KEY")

	if path != "" {
		v.AddConfigPath(path)
		v.SetConfigName("finance")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be postgres, pgx or sqlite3, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	switch c.Quotes.Provider {
	case ProviderIEX:
		if c.Quotes.APIKey == "" {
			return errors.New("quotes.api_key (API_KEY) is required for the iex provider")
		}
	case ProviderSimulated:
	case ProviderStatic:
		if _, err := c.Quotes.StaticPrices(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown quotes.provider %q", c.Quotes.Provider)
	}
	if c.Quotes.Timeout <= 0 {
		return errors.New("quotes.timeout must be positive")
	}
	if c.Ledger.StartingCash < 0 {
		return errors.New("ledger.starting_cash cannot be negative")
	}
	if c.Ledger.MaxDeposit <= 0 {
		return errors.New("ledger.max_deposit must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	return nil
}

// StaticPrices parses the quotes.prices table used by the static provider.
func (q QuoteConfig) StaticPrices() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(q.Prices))
	for sym, raw := range q.Prices {
		p, err := decimal.NewFromString(raw)
		if err != nil || !p.IsPositive() {
			return nil, fmt.Errorf("quotes.prices.%s: invalid price %q", sym, raw)
		}
		out[strings.ToUpper(sym)] = p
	}
	return out, nil
}
