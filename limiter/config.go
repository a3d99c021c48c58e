/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "rateLimiter"

const (
	cfgKeyMaximumRatePerClient   = "maximumRatePerClientInKiloBytes"
	cfgKeyMaximumOverAllRate     = "maximumOverAllRateInKiloBytes"
	cfgKeyClientEvictionTime     = "clientEvictionTimeInSeconds"
	cfgKeyMaxRequests            = "maxRequests"
	cfgKeyCleanupInterval        = "cleanupInterval"
	cfgKeyAllocationInterval     = "allocationInterval"
	cfgKeyFileStateLookupTimeout = "fileStateLookupTimeout"
)

const (
	defaultCleanupInterval    = 5 * time.Second
	defaultAllocationInterval = time.Second
)

// Config represents a set of configuration parameters for the upload limiter.
type Config struct {
	MaximumRatePerClientInKiloBytes int64         `mapstructure:"maximumRatePerClientInKiloBytes" yaml:"maximumRatePerClientInKiloBytes" json:"maximumRatePerClientInKiloBytes"`
	MaximumOverAllRateInKiloBytes   int64         `mapstructure:"maximumOverAllRateInKiloBytes" yaml:"maximumOverAllRateInKiloBytes" json:"maximumOverAllRateInKiloBytes"`
	ClientEvictionTimeInSeconds     int           `mapstructure:"clientEvictionTimeInSeconds" yaml:"clientEvictionTimeInSeconds" json:"clientEvictionTimeInSeconds"`
	MaxRequests                     int           `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`
	CleanupInterval                 time.Duration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`
	AllocationInterval              time.Duration `mapstructure:"allocationInterval" yaml:"allocationInterval" json:"allocationInterval"`
	FileStateLookupTimeout          time.Duration `mapstructure:"fileStateLookupTimeout" yaml:"fileStateLookupTimeout" json:"fileStateLookupTimeout"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		MaximumRatePerClientInKiloBytes: DefaultMaximumRatePerClientInKiloBytes,
		MaximumOverAllRateInKiloBytes:   DefaultMaximumOverAllRateInKiloBytes,
		ClientEvictionTimeInSeconds:     int(DefaultClientEvictionTime / time.Second),
		MaxRequests:                     DefaultMaxRequests,
		CleanupInterval:                 defaultCleanupInterval,
		AllocationInterval:              defaultAllocationInterval,
		FileStateLookupTimeout:          DefaultFileStateLookupTimeout,
		keyPrefix:                       cfgDefaultKeyPrefix,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaximumRatePerClient, DefaultMaximumRatePerClientInKiloBytes)
	dp.SetDefault(cfgKeyMaximumOverAllRate, DefaultMaximumOverAllRateInKiloBytes)
	dp.SetDefault(cfgKeyClientEvictionTime, int(DefaultClientEvictionTime/time.Second))
	dp.SetDefault(cfgKeyMaxRequests, DefaultMaxRequests)
	dp.SetDefault(cfgKeyCleanupInterval, defaultCleanupInterval)
	dp.SetDefault(cfgKeyAllocationInterval, defaultAllocationInterval)
	dp.SetDefault(cfgKeyFileStateLookupTimeout, DefaultFileStateLookupTimeout)
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	var perClient int
	if perClient, err = dp.GetInt(cfgKeyMaximumRatePerClient); err != nil {
		return err
	}
	if perClient < 0 {
		return dp.WrapKeyErr(cfgKeyMaximumRatePerClient, fmt.Errorf("should be >= 0"))
	}
	c.MaximumRatePerClientInKiloBytes = int64(perClient)

	var overall int
	if overall, err = dp.GetInt(cfgKeyMaximumOverAllRate); err != nil {
		return err
	}
	if overall < 0 {
		return dp.WrapKeyErr(cfgKeyMaximumOverAllRate, fmt.Errorf("should be >= 0"))
	}
	c.MaximumOverAllRateInKiloBytes = int64(overall)

	if c.ClientEvictionTimeInSeconds, err = dp.GetInt(cfgKeyClientEvictionTime); err != nil {
		return err
	}
	if c.ClientEvictionTimeInSeconds <= 0 {
		return dp.WrapKeyErr(cfgKeyClientEvictionTime, fmt.Errorf("should be > 0"))
	}

	if c.MaxRequests, err = dp.GetInt(cfgKeyMaxRequests); err != nil {
		return err
	}
	if c.MaxRequests <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxRequests, fmt.Errorf("should be > 0"))
	}

	if c.CleanupInterval, err = c.getPositiveDuration(dp, cfgKeyCleanupInterval); err != nil {
		return err
	}
	if c.AllocationInterval, err = c.getPositiveDuration(dp, cfgKeyAllocationInterval); err != nil {
		return err
	}
	if c.FileStateLookupTimeout, err = c.getPositiveDuration(dp, cfgKeyFileStateLookupTimeout); err != nil {
		return err
	}
	return nil
}

// ClientEvictionTime returns the eviction window as time.Duration.
func (c *Config) ClientEvictionTime() time.Duration {
	return time.Duration(c.ClientEvictionTimeInSeconds) * time.Second
}

func (c *Config) getPositiveDuration(dp config.DataProvider, key string) (time.Duration, error) {
	d, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("should be positive"))
	}
	return d, nil
}
