/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"github.com/acronis/go-appkit/config"
	"github.com/acronis/go-appkit/httpserver"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/profserver"

	"github.com/LimJW/go-large-file-uploader/filestate"
	"github.com/LimJW/go-large-file-uploader/limiter"
)

// Environment variables override file values, e.g. UPLOAD_LIMITER_RATELIMITER_MAXREQUESTS.
const envVarsPrefix = "UPLOAD_LIMITER"

// AppConfig is a configuration of the whole daemon.
type AppConfig struct {
	Log         *log.Config
	Server      *httpserver.Config
	ProfServer  *profserver.Config
	RateLimiter *limiter.Config
	FileState   *filestate.Config
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new instance of the AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:         log.NewConfig(),
		Server:      httpserver.NewConfig(),
		ProfServer:  profserver.NewConfig(),
		RateLimiter: limiter.NewConfig(),
		FileState:   filestate.NewConfig(),
	}
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values from config.DataProvider.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfg := NewAppConfig()
	if err := config.NewDefaultLoader(envVarsPrefix).LoadFromFile(path, config.DataTypeYAML, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
