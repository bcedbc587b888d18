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

package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/lens-sync/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is anything with a blocking Start and a graceful Stop.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServerOptions configures RunServer.
type ServerOptions struct {
	ServiceName     string
	Service         Service
	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

// RunServer starts the service and blocks until it returns or the process receives
// SIGINT/SIGTERM, then stops it within the shutdown timeout.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- opts.Service.Start(ctx)
	}()

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Str("service", opts.ServiceName).Msg("Shutdown signal received")
	case runErr = <-errCh:
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer stopCancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		log.Error().Err(err).Str("service", opts.ServiceName).Msg("Error during shutdown")

		return errors.Join(runErr, err)
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	return runErr
}
