/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package filestate

import (
	"fmt"
	"strings"

	"github.com/acronis/go-appkit/config"
	"github.com/redis/go-redis/v9"
)

const cfgDefaultKeyPrefix = "fileState"

const (
	cfgKeyBackend        = "backend"
	cfgKeyRedisAddress   = "redis.address"
	cfgKeyRedisPassword  = "redis.password"
	cfgKeyRedisDB        = "redis.db"
	cfgKeyRedisKeyPrefix = "redis.keyPrefix"
)

// Backend defines where persisted file states are read from.
type Backend string

// Supported backends.
const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

const defaultRedisAddress = "localhost:6379"

// Config represents a set of configuration parameters for the persisted file state access.
type Config struct {
	Backend Backend     `mapstructure:"backend" yaml:"backend" json:"backend"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`

	keyPrefix string
}

// RedisConfig is a configuration for the Redis backend.
type RedisConfig struct {
	Address   string `mapstructure:"address" yaml:"address" json:"address"`
	Password  string `mapstructure:"password" yaml:"password" json:"password"`
	DB        int    `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
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
	dp.SetDefault(cfgKeyBackend, string(BackendMemory))
	dp.SetDefault(cfgKeyRedisAddress, defaultRedisAddress)
	dp.SetDefault(cfgKeyRedisKeyPrefix, DefaultRedisKeyPrefix)
}

var availableBackends = []string{string(BackendMemory), string(BackendRedis)}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	backend, err := dp.GetStringFromSet(cfgKeyBackend, availableBackends, true)
	if err != nil {
		return err
	}
	c.Backend = Backend(strings.ToLower(backend))

	if c.Redis.Address, err = dp.GetString(cfgKeyRedisAddress); err != nil {
		return err
	}
	if c.Backend == BackendRedis && c.Redis.Address == "" {
		return dp.WrapKeyErr(cfgKeyRedisAddress, fmt.Errorf("cannot be empty when %q backend is used", BackendRedis))
	}
	if c.Redis.Password, err = dp.GetString(cfgKeyRedisPassword); err != nil {
		return err
	}
	if c.Redis.DB, err = dp.GetInt(cfgKeyRedisDB); err != nil {
		return err
	}
	if c.Redis.DB < 0 {
		return dp.WrapKeyErr(cfgKeyRedisDB, fmt.Errorf("should be >= 0"))
	}
	if c.Redis.KeyPrefix, err = dp.GetString(cfgKeyRedisKeyPrefix); err != nil {
		return err
	}
	return nil
}

// NewProvider creates a Provider for the configured backend.
// The returned close function releases backend connections and is never nil.
func NewProvider(cfg *Config) (Provider, func() error, error) {
	switch cfg.Backend {
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisProvider(rdb, WithRedisKeyPrefix(cfg.Redis.KeyPrefix)), rdb.Close, nil
	case BackendMemory, "":
		return NewMemoryProvider(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown file state backend %q", cfg.Backend)
}
