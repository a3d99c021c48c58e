/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command uploadlimiterd runs the upload limiter core with its management API.
package main

import (
	"flag"
	"fmt"
	golog "log"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/service"

	"github.com/LimJW/go-large-file-uploader/internal/buildinfo"
)

func main() {
	cfgPath := flag.String("config", "config.yml", "path to the YAML configuration file")
	flag.Parse()

	if err := runApp(*cfgPath); err != nil {
		golog.Fatal(err)
	}
}

func runApp(cfgPath string) error {
	cfg, err := loadAppConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	info := buildinfo.Get()
	logger.Info("starting upload limiter",
		log.String("version", info.Version),
		log.String("go_appkit_version", info.AppKitVersion),
		log.String("file_state_backend", string(cfg.FileState.Backend)),
		log.Int("client_eviction_time_seconds", cfg.RateLimiter.ClientEvictionTimeInSeconds))

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.Error("failed to close file state provider", log.Error(closeErr))
		}
	}()

	return service.New(logger, app.Unit).Start()
}
