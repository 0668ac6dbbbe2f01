package localnet

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/runtime"

	pg "github.com/kbruccoleri/solana-bpf-program/pkg/database/postgres"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config selects where a local network keeps its accounts, how its bank
// charges and limits transactions, and where it reports metrics.
type Config struct {
	Store    string    `mapstructure:"store"`
	Postgres pg.Config `mapstructure:"postgres"`

	Runtime runtime.Config `mapstructure:"runtime"`

	Faucet FaucetConfig `mapstructure:"faucet"`

	NewRelic NewRelicConfig `mapstructure:"new_relic"`
}

type FaucetConfig struct {
	// MaxLamports caps a single airdrop request.
	MaxLamports uint64 `mapstructure:"max_lamports"`

	// RequestsPerSecond limits airdrops per recipient. Zero disables the
	// limit.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

var defaultConfig = Config{
	Store: StoreMemory,
	Postgres: pg.Config{
		User:   "postgres",
		Host:   "localhost",
		Port:   5432,
		DbName: "postgres",
	},
	Runtime: *runtime.DefaultConfig(),
	Faucet: FaucetConfig{
		MaxLamports: 10_000_000_000,
	},
	NewRelic: NewRelicConfig{
		AppName: "localnet",
	},
}

var envBindings = map[string]string{
	"store":                                    "LOCALNET_STORE",
	"postgres.user":                            "LOCALNET_POSTGRES_USER",
	"postgres.host":                            "LOCALNET_POSTGRES_HOST",
	"postgres.password":                        "LOCALNET_POSTGRES_PASSWORD",
	"postgres.port":                            "LOCALNET_POSTGRES_PORT",
	"postgres.db_name":                         "LOCALNET_POSTGRES_DB_NAME",
	"postgres.ssl_mode":                        "LOCALNET_POSTGRES_SSL_MODE",
	"postgres.max_open_connections":            "LOCALNET_POSTGRES_MAX_OPEN_CONNECTIONS",
	"postgres.max_idle_connections":            "LOCALNET_POSTGRES_MAX_IDLE_CONNECTIONS",
	"postgres.conn_max_lifetime":               "LOCALNET_POSTGRES_CONN_MAX_LIFETIME",
	"runtime.lamports_per_signature":           "LOCALNET_RUNTIME_LAMPORTS_PER_SIGNATURE",
	"runtime.rent_lamports_per_byte_year":      "LOCALNET_RUNTIME_RENT_LAMPORTS_PER_BYTE_YEAR",
	"runtime.rent_exemption_threshold":         "LOCALNET_RUNTIME_RENT_EXEMPTION_THRESHOLD",
	"runtime.rent_burn_percent":                "LOCALNET_RUNTIME_RENT_BURN_PERCENT",
	"runtime.account_lock_stripes":             "LOCALNET_RUNTIME_ACCOUNT_LOCK_STRIPES",
	"runtime.max_recent_blockhashes":           "LOCALNET_RUNTIME_MAX_RECENT_BLOCKHASHES",
	"runtime.status_cache_capacity":            "LOCALNET_RUNTIME_STATUS_CACHE_CAPACITY",
	"runtime.status_cache_false_positive_rate": "LOCALNET_RUNTIME_STATUS_CACHE_FALSE_POSITIVE_RATE",
	"runtime.max_invoke_depth":                 "LOCALNET_RUNTIME_MAX_INVOKE_DEPTH",
	"runtime.submit_workers":                   "LOCALNET_RUNTIME_SUBMIT_WORKERS",
	"runtime.submit_queue_size":                "LOCALNET_RUNTIME_SUBMIT_QUEUE_SIZE",
	"faucet.max_lamports":                      "LOCALNET_FAUCET_MAX_LAMPORTS",
	"faucet.requests_per_second":               "LOCALNET_FAUCET_REQUESTS_PER_SECOND",
	"faucet.burst":                             "LOCALNET_FAUCET_BURST",
	"new_relic.enabled":                        "LOCALNET_NEW_RELIC_ENABLED",
	"new_relic.app_name":                       "LOCALNET_NEW_RELIC_APP_NAME",
	"new_relic.license_key":                    "LOCALNET_NEW_RELIC_LICENSE_KEY",
}

// DefaultConfig returns a copy of the default configuration, which keeps
// accounts in memory.
func DefaultConfig() *Config {
	config := defaultConfig
	return &config
}

// LoadConfig reads the config file at path, if one exists, and overlays
// any LOCALNET_* environment variables on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrap(err, "failed to read config")
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to check if config exists")
		}
	}

	config := defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.Host == "" || c.Postgres.DbName == "" {
			return errors.New("postgres store requires a host and database name")
		}
	default:
		return errors.Errorf("unknown store: %q", c.Store)
	}

	if err := c.Runtime.Validate(); err != nil {
		return errors.Wrap(err, "invalid runtime config")
	}

	if c.Faucet.RequestsPerSecond < 0 {
		return errors.New("faucet requests_per_second must not be negative")
	}

	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		return errors.New("new relic requires a license key")
	}
	return nil
}
