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

// Package poller drives the background refresh of the device cache: sharded
// page fetches on a cadence window, paused by an inactivity watchdog.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/lens-sync/pkg/devicecache"
	"github.com/carverauto/lens-sync/pkg/lens"
	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/models"
)

const (
	// InactivityTimeout pauses fetching when no caller asked for devices for this long.
	InactivityTimeout   = 3 * time.Minute
	DefaultTickInterval = 500 * time.Millisecond
	DefaultInterval     = time.Minute
	maxShardCount       = 2
)

// State is the poller's position in its state machine.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateWaiting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateWaiting:
		return "WAITING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config tunes the poller. Zero values take the defaults.
type Config struct {
	PageSize int
	// PagesPerShard caps the pages fetched in one shard turn; negative is unlimited.
	PagesPerShard     int
	Interval          time.Duration
	TickInterval      time.Duration
	InactivityTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = lens.DefaultPageSize
	}

	if c.PagesPerShard == 0 {
		c.PagesPerShard = lens.DefaultPagesPerShard
	}

	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}

	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = InactivityTimeout
	}
}

// Dependencies are the collaborators a Poller drives.
type Dependencies struct {
	Fetcher lens.PageFetcher
	Tokens  lens.TokenProvider
	// Filter is called at the start of every shard turn so filter changes apply
	// to the next turn.
	Filter func() lens.FilterExpression
	Cache  *devicecache.Cache
	Clock  Clock
}

// Status is a point-in-time view of the poller for health reporting.
type Status struct {
	State        string    `json:"state"`
	Paused       bool      `json:"paused"`
	ShardIndex   int       `json:"shard_index"`
	ShardCount   int       `json:"shard_count"`
	Cursor       string    `json:"cursor"`
	RemoteTotal  int       `json:"remote_total"`
	CacheSize    int       `json:"cache_size"`
	LastActivity time.Time `json:"last_activity"`
	NextCycleAt  time.Time `json:"next_cycle_at"`
	LastCycle    time.Time `json:"last_cycle,omitempty"`
}

// Poller is the single background worker refreshing the cache. Cursor and
// shard progress are written only by the worker; the mutex lets callers read
// them and update the watchdog and sizing without ever waiting on the network.
type Poller struct {
	cfg       Config
	fetcher   lens.PageFetcher
	tokens    lens.TokenProvider
	filter    func() lens.FilterExpression
	cache     *devicecache.Cache
	clock     Clock
	logger    logger.Logger
	observers []CycleObserver

	mu           sync.Mutex
	state        State
	paused       bool
	started      bool
	lastActivity time.Time
	nextCycleAt  time.Time
	shardIndex   int
	shardCount   int
	cursor       lens.Cursor
	remoteTotal  int
	// summaryTotal is the latest summary count not yet applied to a finalize.
	summaryTotal   int
	summaryPending bool
	pass         passStats
	lastCycle    time.Time

	done      chan struct{}
	closeOnce sync.Once
	exited    chan struct{}
}

type passStats struct {
	startedAt time.Time
	pages     int
	records   int
}

// New creates a poller in the IDLE state with a single shard.
func New(cfg *Config, deps Dependencies, log logger.Logger) *Poller {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}

	c.applyDefaults()

	if deps.Clock == nil {
		deps.Clock = realClock{}
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Poller{
		cfg:        c,
		fetcher:    deps.Fetcher,
		tokens:     deps.Tokens,
		filter:     deps.Filter,
		cache:      deps.Cache,
		clock:      deps.Clock,
		logger:     log,
		state:      StateIdle,
		paused:     true,
		shardCount: 1,
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
}

// AddObserver registers an observer for completed passes. Call before Start.
func (p *Poller) AddObserver(o CycleObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.observers = append(p.observers, o)
}

// ShardCountFor returns 1 when the whole fleet fits in one page, else 2.
func ShardCountFor(remoteTotal, pageSize int) int {
	if remoteTotal <= pageSize {
		return 1
	}

	return maxShardCount
}

// SizeShards records a fresh remote total from a summary fetch and resizes
// the shard count from it.
func (p *Poller) SizeShards(remoteTotal int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.remoteTotal = remoteTotal
	p.summaryTotal = remoteTotal
	p.summaryPending = true
	p.shardCount = ShardCountFor(remoteTotal, p.cfg.PageSize)

	if p.cache != nil {
		p.cache.SetRemoteTotal(remoteTotal)
	}

	return p.shardCount
}

// ShardCount returns the current shard count.
func (p *Poller) ShardCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.shardCount
}

// Touch records caller activity for the watchdog.
func (p *Poller) Touch() {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastActivity = now
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Status returns a snapshot of the poller's bookkeeping.
func (p *Poller) Status() Status {
	p.mu.Lock()
	s := Status{
		State:        p.state.String(),
		Paused:       p.paused,
		ShardIndex:   p.shardIndex,
		ShardCount:   p.shardCount,
		Cursor:       p.cursor.String(),
		RemoteTotal:  p.remoteTotal,
		LastActivity: p.lastActivity,
		NextCycleAt:  p.nextCycleAt,
		LastCycle:    p.lastCycle,
	}
	p.mu.Unlock()

	if p.cache != nil {
		s.CacheSize = p.cache.Len()
	}

	return s
}

// Start runs the worker loop until ctx is cancelled or Stop is called. It
// implements lifecycle.Service and may be called only once.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errAlreadyStarted
	}

	select {
	case <-p.done:
		p.mu.Unlock()
		return errStopped
	default:
	}

	p.started = true
	p.mu.Unlock()

	defer close(p.exited)

	ticker := p.clock.Ticker(p.cfg.TickInterval)
	defer ticker.Stop()

	p.logger.Info().
		Dur("interval", p.cfg.Interval).
		Dur("tick", p.cfg.TickInterval).
		Int("page_size", p.cfg.PageSize).
		Msg("Starting poller")

	for {
		select {
		case <-ctx.Done():
			p.setState(StateStopped)
			return ctx.Err()
		case <-p.done:
			p.setState(StateStopped)
			return nil
		case <-ticker.Chan():
			p.Tick(ctx)
		}
	}
}

// Stop asks the worker to exit and waits for it. A page fetch in flight is
// allowed to finish first.
func (p *Poller) Stop(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		p.setState(StateStopped)
		return nil
	}

	select {
	case <-p.exited:
		p.logger.Info().Msg("Poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) stopping() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = s
}

// Tick performs one step of the state machine: check the watchdog, wait for
// the cadence window, and run at most one shard turn.
func (p *Poller) Tick(ctx context.Context) {
	now := p.clock.Now()

	p.mu.Lock()

	if p.state == StateStopped {
		p.mu.Unlock()
		return
	}

	paused := now.Sub(p.lastActivity) > p.cfg.InactivityTimeout
	if paused != p.paused {
		p.logger.Info().Bool("paused", paused).Msg("Watchdog changed polling state")
	}

	p.paused = paused
	recordPaused(paused)

	if paused {
		p.state = StateIdle
		p.mu.Unlock()

		return
	}

	if now.Before(p.nextCycleAt) {
		p.state = StateWaiting
		p.mu.Unlock()

		return
	}

	if p.shardIndex >= p.shardCount {
		p.shardIndex = 0
		p.nextCycleAt = now.Add(p.cfg.Interval)
		p.state = StateWaiting
		p.mu.Unlock()

		return
	}

	p.state = StateFetching
	shard := p.shardIndex
	p.mu.Unlock()

	p.runShard(ctx, shard)
}

// runShard fetches up to the page budget for one shard turn. Reaching the
// terminal cursor completes the pass and forfeits the window's remaining turns.
func (p *Poller) runShard(ctx context.Context, shard int) {
	// An in-flight fetch is never cancelled by shutdown; the transport timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)

	completed := false

	defer func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if completed {
			p.shardIndex = p.shardCount
		} else {
			p.shardIndex++
		}

		if p.state != StateStopped {
			p.state = StateWaiting
		}
	}()

	token, err := p.tokens.EnsureToken(fetchCtx)
	if err != nil {
		p.logger.Warn().Err(err).Int("shard", shard).Msg("Token unavailable, skipping shard turn")
		return
	}

	filter := p.filter()

	for pages := 0; p.cfg.PagesPerShard < 0 || pages < p.cfg.PagesPerShard; pages++ {
		if pages > 0 && p.stopping() {
			return
		}

		p.mu.Lock()
		cursor := p.cursor
		if cursor.IsFirst() && p.pass.startedAt.IsZero() {
			p.pass = passStats{startedAt: p.clock.Now()}
		}
		p.mu.Unlock()

		start := p.clock.Now()
		page, err := p.fetcher.FetchPage(fetchCtx, cursor, filter, token)
		latency := p.clock.Now().Sub(start)

		if err != nil {
			recordPage(fetchCtx, outcomeError, latency)

			if errors.Is(err, lens.ErrAuthentication) {
				p.tokens.Invalidate()
			}

			p.logger.Warn().
				Err(err).
				Str("cursor", cursor.String()).
				Int("shard", shard).
				Msg("Page fetch failed, cursor kept for next turn")

			return
		}

		recordPage(fetchCtx, outcomeSuccess, latency)

		merged := p.cache.Merge(page.Devices)

		p.mu.Lock()
		p.cursor = page.Next
		p.pass.pages++
		p.pass.records += merged

		if page.TotalKnown {
			p.remoteTotal = page.TotalCount
		}
		p.mu.Unlock()

		p.logger.Debug().
			Str("cursor", cursor.String()).
			Int("shard", shard).
			Int("records", merged).
			Int("remote_total", page.TotalCount).
			Msg("Merged device page")

		if page.Next.IsTerminal() {
			p.completePass(fetchCtx)

			completed = true

			return
		}
	}
}

// completePass finalizes the cache against the remote total and resets the cursor.
// A summary count recorded since the last pass wins when it is smaller than the
// page total, so a shrink seen by a summary fetch clears the cache on this pass.
func (p *Poller) completePass(ctx context.Context) {
	p.mu.Lock()
	total := p.remoteTotal
	if p.summaryPending && p.summaryTotal < total {
		total = p.summaryTotal
	}
	p.summaryPending = false
	pass := p.pass
	p.cursor = lens.FirstPage()
	p.pass = passStats{}
	observers := append([]CycleObserver(nil), p.observers...)
	p.mu.Unlock()

	reset := p.cache.FinalizeCycle(total)
	now := p.clock.Now()

	p.mu.Lock()
	p.lastCycle = now
	p.mu.Unlock()

	recordCycle(ctx, reset)

	report := models.CycleReport{
		StartedAt:   pass.startedAt,
		CompletedAt: now,
		Pages:       pass.pages,
		Records:     pass.records,
		RemoteTotal: total,
		CacheSize:   p.cache.Len(),
		CacheReset:  reset,
	}

	p.logger.Info().
		Int("pages", report.Pages).
		Int("records", report.Records).
		Int("remote_total", report.RemoteTotal).
		Int("cache_size", report.CacheSize).
		Bool("cache_reset", report.CacheReset).
		Msg("Completed pass over remote fleet")

	for _, o := range observers {
		o.CycleCompleted(ctx, report)
	}
}
