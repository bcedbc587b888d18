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

// Package app wires the lens-sync process together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/lens-sync/pkg/aggregator"
	"github.com/carverauto/lens-sync/pkg/api"
	"github.com/carverauto/lens-sync/pkg/lifecycle"
	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/natsutil"
	"github.com/carverauto/lens-sync/pkg/poller"
)

const serverStopTimeout = 5 * time.Second

// App runs the device service behind the HTTP API. It implements lifecycle.Service.
type App struct {
	service *aggregator.Service
	server  *api.Server
	nc      *nats.Conn
	logger  logger.Logger
}

// New builds the App. NATS is dialled only when cfg.NATS.URL is set.
func New(ctx context.Context, cfg *Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewTestLogger()
	}

	a := &App{logger: log}

	var observers []poller.CycleObserver

	if cfg.NATS.URL != "" {
		publisher, nc, err := natsutil.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.Subject,
			lifecycle.Component(log, "nats"))
		if err != nil {
			return nil, err
		}

		a.nc = nc
		observers = append(observers, publisher)
	}

	service, err := aggregator.New(ctx, cfg.Aggregator(), aggregator.Dependencies{Observers: observers},
		lifecycle.Component(log, "aggregator"))
	if err != nil {
		a.closeNATS()

		return nil, err
	}

	a.service = service
	a.server = api.NewServer(cfg.ListenAddr, service,
		api.WithAPIKey(cfg.APIKey),
		api.WithCORS(cfg.CORS),
		api.WithLogger(lifecycle.Component(log, "api")),
	)

	return a, nil
}

// Start serves the API until ctx is cancelled or the server fails.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()

		if err := a.server.Start(gctx); err != nil {
			return fmt.Errorf("api server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serverStopTimeout)
		defer cancel()

		return a.server.Stop(stopCtx)
	})

	return g.Wait()
}

// Stop shuts down the API, the poller and the NATS connection.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api server: %w", err))
	}

	if err := a.service.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("aggregator: %w", err))
	}

	a.closeNATS()

	return errors.Join(errs...)
}

// Handler exposes the API router.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

func (a *App) closeNATS() {
	if a.nc == nil {
		return
	}

	if err := a.nc.Drain(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
		a.nc.Close()
	}
}
