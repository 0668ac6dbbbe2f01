package runtime

import (
	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
)

// Config controls fees, rent and the resource limits of a Bank.
type Config struct {
	LamportsPerSignature uint64 `mapstructure:"lamports_per_signature"`

	RentLamportsPerByteYear uint64  `mapstructure:"rent_lamports_per_byte_year"`
	RentExemptionThreshold  float64 `mapstructure:"rent_exemption_threshold"`
	RentBurnPercent         uint8   `mapstructure:"rent_burn_percent"`

	// AccountLockStripes is the number of locks account addresses are
	// partitioned over.
	AccountLockStripes uint `mapstructure:"account_lock_stripes"`

	// MaxRecentBlockhashes is how many blockhashes a transaction may
	// reference before it expires.
	MaxRecentBlockhashes int `mapstructure:"max_recent_blockhashes"`

	// StatusCacheCapacity sizes the per-blockhash signature bloom filters.
	StatusCacheCapacity          uint    `mapstructure:"status_cache_capacity"`
	StatusCacheFalsePositiveRate float64 `mapstructure:"status_cache_false_positive_rate"`

	MaxInvokeDepth int `mapstructure:"max_invoke_depth"`

	SubmitWorkers   uint `mapstructure:"submit_workers"`
	SubmitQueueSize uint `mapstructure:"submit_queue_size"`
}

var defaultConfig = Config{
	LamportsPerSignature: 5000,

	RentLamportsPerByteYear: system.DefaultLamportsPerByteYear,
	RentExemptionThreshold:  system.DefaultExemptionThreshold,
	RentBurnPercent:         system.DefaultBurnPercent,

	AccountLockStripes: 1024,

	MaxRecentBlockhashes: 150,

	StatusCacheCapacity:          10_000,
	StatusCacheFalsePositiveRate: 0.001,

	MaxInvokeDepth: 4,

	SubmitWorkers:   8,
	SubmitQueueSize: 256,
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() *Config {
	config := defaultConfig
	return &config
}

// Validate reports the first setting a Bank cannot run with.
func (c *Config) Validate() error {
	if c.MaxRecentBlockhashes <= 0 {
		return errors.New("max_recent_blockhashes must be positive")
	}
	if c.AccountLockStripes == 0 {
		return errors.New("account_lock_stripes must be positive")
	}
	if c.StatusCacheCapacity == 0 {
		return errors.New("status_cache_capacity must be positive")
	}
	if c.StatusCacheFalsePositiveRate <= 0 || c.StatusCacheFalsePositiveRate >= 1 {
		return errors.New("status_cache_false_positive_rate must be within (0, 1)")
	}
	if c.MaxInvokeDepth <= 0 {
		return errors.New("max_invoke_depth must be positive")
	}
	if c.SubmitWorkers == 0 {
		return errors.New("submit_workers must be positive")
	}
	var rent system.Rent
	if err := rent.Unmarshal(c.Rent().Marshal()); err != nil {
		return errors.Wrap(err, "invalid rent parameters")
	}
	return nil
}

// Rent returns the rent parameters the bank publishes in the rent sysvar.
func (c *Config) Rent() system.Rent {
	return system.Rent{
		LamportsPerByteYear: c.RentLamportsPerByteYear,
		ExemptionThreshold:  c.RentExemptionThreshold,
		BurnPercent:         c.RentBurnPercent,
	}
}
