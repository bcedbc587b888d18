/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/carverauto/lens-sync/cmd/lens-sync/app"
	"github.com/carverauto/lens-sync/pkg/config"
	"github.com/carverauto/lens-sync/pkg/lifecycle"
	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/version"
)

const serviceName = "lens-sync"

var errFailedToLoadConfig = errors.New("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/lens-sync/lens-sync.yaml", "Path to lens-sync config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())
		return nil
	}

	ctx := context.Background()

	var cfg app.Config

	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	if err := lifecycle.InitializeLogger(cfg.Logging); err != nil {
		return err
	}

	mainLogger, err := lifecycle.CreateComponentLogger(serviceName, cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mainLogger.Info().Str("version", version.GetFullVersion()).Msg("Starting lens-sync")

	if _, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		OTel:           &cfg.Metrics,
	}); err != nil && !errors.Is(err, logger.ErrOTelMetricsDisabled) {
		mainLogger.Warn().Err(err).Msg("Failed to initialize metrics exporter")
	}

	defer func() {
		if err := logger.ShutdownMetrics(context.Background()); err != nil {
			mainLogger.Warn().Err(err).Msg("Failed to flush metrics")
		}
	}()

	a, err := app.New(ctx, &cfg, mainLogger)
	if err != nil {
		return err
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ServiceName: serviceName,
		Service:     a,
		Logger:      mainLogger,
	})
}
