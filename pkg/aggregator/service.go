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

// Package aggregator is the synchronous face of the fleet cache: summary
// statistics, device snapshots and control actions for callers that must never
// wait on a page fetch.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/carverauto/lens-sync/pkg/devicecache"
	"github.com/carverauto/lens-sync/pkg/lens"
	"github.com/carverauto/lens-sync/pkg/lifecycle"
	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/models"
	"github.com/carverauto/lens-sync/pkg/poller"
)

// Dependencies are the collaborators behind a Service. Nil fields fall back to
// the HTTP client built from the configuration.
type Dependencies struct {
	Tokens     lens.TokenProvider
	Fetcher    lens.PageFetcher
	Summaries  lens.SummaryFetcher
	Controller lens.Controller
	Cache      *devicecache.Cache
	Mapping    *PropertyMapping
	Clock      poller.Clock
	Observers  []poller.CycleObserver
}

// Service serves summary statistics, device snapshots and controls, and owns
// the background poller that keeps the cache fresh.
type Service struct {
	cfg        Config
	tokens     lens.TokenProvider
	summaries  lens.SummaryFetcher
	controller lens.Controller
	cache      *devicecache.Cache
	mapping    *PropertyMapping
	poller     *poller.Poller
	clock      poller.Clock
	logger     logger.Logger

	// callMu serializes the caller entry points.
	callMu        sync.Mutex
	pollerStarted bool
	closed        bool

	filterMu sync.RWMutex
	filter   lens.FilterSpec

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Service. The poller is not started until the first device list request.
func New(ctx context.Context, cfg *Config, deps Dependencies, log logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	if err := deps.fill(cfg, log); err != nil {
		return nil, err
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		cfg:        *cfg,
		tokens:     deps.Tokens,
		summaries:  deps.Summaries,
		controller: deps.Controller,
		cache:      deps.Cache,
		mapping:    deps.Mapping,
		clock:      deps.Clock,
		logger:     log,
		filter:     cfg.Lens.FilterSpec(),
		ctx:        serviceCtx,
		cancel:     cancel,
	}

	s.poller = poller.New(cfg.pollerConfig(), poller.Dependencies{
		Fetcher: deps.Fetcher,
		Tokens:  deps.Tokens,
		Filter:  s.filterExpression,
		Cache:   deps.Cache,
		Clock:   deps.Clock,
	}, lifecycle.Component(log, "poller"))

	for _, o := range deps.Observers {
		s.poller.AddObserver(o)
	}

	return s, nil
}

func (d *Dependencies) fill(cfg *Config, log logger.Logger) error {
	if d.Tokens == nil || d.Fetcher == nil || d.Summaries == nil || d.Controller == nil {
		client := lens.NewDefaultClient(&cfg.Lens, lifecycle.Component(log, "lens-client"))

		if d.Tokens == nil {
			d.Tokens = lens.NewCredentialBroker(client)
		}

		if d.Fetcher == nil {
			d.Fetcher = client
		}

		if d.Summaries == nil {
			d.Summaries = client
		}

		if d.Controller == nil {
			d.Controller = client
		}
	}

	if d.Cache == nil {
		d.Cache = devicecache.New(lifecycle.Component(log, "devicecache"))
	}

	if d.Mapping == nil {
		var err error

		if cfg.MappingFile != "" {
			d.Mapping, err = LoadPropertyMappingFile(cfg.MappingFile)
		} else {
			d.Mapping, err = DefaultPropertyMapping()
		}

		if err != nil {
			return err
		}
	}

	if d.Clock == nil {
		d.Clock = poller.SystemClock()
	}

	return nil
}

// UpdateFilters replaces the caller-set filter strings. The next shard turn
// and the next summary fetch use them.
func (s *Service) UpdateFilters(modelNames, rooms, sites, excludedRooms string) {
	spec := lens.NewFilterSpec(modelNames, rooms, sites, excludedRooms)

	s.filterMu.Lock()
	s.filter = spec
	s.filterMu.Unlock()

	s.logger.Info().
		Str("models", modelNames).
		Str("rooms", rooms).
		Str("sites", sites).
		Str("excluded_rooms", excludedRooms).
		Msg("Device filters updated")
}

func (s *Service) filterExpression() lens.FilterExpression {
	s.filterMu.RLock()
	spec := s.filter
	s.filterMu.RUnlock()

	return lens.BuildFilter(spec, s.cfg.Lens.PageSize)
}

// GetSummaryStatistics fetches fleet-level statistics and resizes the poller
// shards from the filtered device count.
func (s *Service) GetSummaryStatistics(ctx context.Context) (map[string]string, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if !s.cfg.Lens.HasCredentials() {
		return nil, fmt.Errorf("%w: %w", lens.ErrConfiguration, errMissingCredentials)
	}

	token, err := s.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := s.summaries.FetchSummary(ctx, s.filterExpression(), token)
	if err != nil {
		if errors.Is(err, lens.ErrAuthentication) {
			s.tokens.Invalidate()
		}

		return nil, err
	}

	shards := s.poller.SizeShards(summary.CountDevices)

	s.logger.Debug().
		Int("count_devices", summary.CountDevices).
		Int("shards", shards).
		Msg("Fetched summary statistics")

	return summaryStatistics(summary, &s.cfg.Lens, shards), nil
}

// ListDevices returns a snapshot of the cache in caller-facing form. The first
// call starts the poller, so it may return an empty list. It never waits on
// the network.
func (s *Service) ListDevices(_ context.Context) ([]models.Device, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	return s.listDevicesLocked(), nil
}

// ListDevicesByID is ListDevices restricted to the given ids.
func (s *Service) ListDevicesByID(_ context.Context, ids []string) ([]models.Device, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	all := s.listDevicesLocked()
	out := make([]models.Device, 0, len(ids))

	for i := range all {
		if _, ok := wanted[all[i].ID]; ok {
			out = append(out, all[i])
		}
	}

	return out, nil
}

func (s *Service) listDevicesLocked() []models.Device {
	if !s.cfg.Lens.HasCredentials() {
		s.logger.Debug().Msg("No credentials configured, poller not started")
		return []models.Device{}
	}

	s.startPollerLocked()
	s.poller.Touch()

	// The cache lock is held only for the copy; mapping happens after.
	snapshot := s.cache.Snapshot()
	now := s.clock.Now()

	out := make([]models.Device, 0, len(snapshot))
	for i := range snapshot {
		out = append(out, s.mapping.publish(&snapshot[i], now))
	}

	return out
}

func (s *Service) startPollerLocked() {
	if s.pollerStarted || s.closed {
		return
	}

	s.pollerStarted = true
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if err := s.poller.Start(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Poller exited")
		}
	}()

	s.logger.Info().Msg("Started device poller")
}

// ExecuteControl runs a control action against a cached device. Only
// ControlReboot is supported.
func (s *Service) ExecuteControl(ctx context.Context, deviceID, action string) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if !s.cfg.Lens.HasCredentials() {
		return fmt.Errorf("%w: %w", lens.ErrConfiguration, errMissingCredentials)
	}

	if _, ok := s.cache.Get(deviceID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	if action != ControlReboot {
		return fmt.Errorf("%w: %s", ErrUnsupportedControl, action)
	}

	token, err := s.tokens.EnsureToken(ctx)
	if err != nil {
		return err
	}

	if err := s.controller.RebootDevice(ctx, deviceID, token); err != nil {
		if errors.Is(err, lens.ErrAuthentication) {
			s.tokens.Invalidate()
		}

		return err
	}

	s.logger.Info().Str("device_id", deviceID).Str("action", action).Msg("Control executed")

	return nil
}

// Status reports the poller's bookkeeping.
func (s *Service) Status() poller.Status {
	return s.poller.Status()
}

// Close stops the poller, waiting for an in-flight page fetch to finish.
// Device lists keep serving the cache afterwards but never restart polling.
func (s *Service) Close(ctx context.Context) error {
	s.callMu.Lock()
	s.closed = true
	s.callMu.Unlock()

	err := s.poller.Stop(ctx)

	s.cancel()
	s.wg.Wait()

	return err
}
