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

package poller

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/carverauto/lens-sync/pkg/devicecache"
	"github.com/carverauto/lens-sync/pkg/lens"
	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ticker: &fakeTicker{ch: make(chan time.Time)},
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func (c *fakeClock) Ticker(time.Duration) Ticker { return c.ticker }

type fakeTicker struct {
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  { t.stopped = true }

// fakeFleet pages through a fleet of ids using the offset as the cursor token.
type fakeFleet struct {
	mu       sync.Mutex
	size     int
	failNext error
	cursors  []string
}

func (f *fakeFleet) FetchPage(_ context.Context, cursor lens.Cursor, filter lens.FilterExpression, _ lens.Token) (*lens.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cursors = append(f.cursors, cursor.String())

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil

		return nil, err
	}

	offset := 0
	if tok := cursor.Token(); tok != "" {
		offset, _ = strconv.Atoi(tok)
	}

	end := offset + filter.PageSize
	if end > f.size {
		end = f.size
	}

	devices := make([]models.Device, 0, end-offset)
	for i := offset; i < end; i++ {
		devices = append(devices, models.Device{ID: fmt.Sprintf("dev-%03d", i), Online: true})
	}

	next := lens.TerminalCursor()
	if end < f.size {
		next = lens.CursorFromToken(strconv.Itoa(end))
	}

	return &lens.Page{Devices: devices, Next: next, TotalCount: f.size, TotalKnown: true, CountOnPage: len(devices)}, nil
}

func (f *fakeFleet) setSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.size = n
}

func (f *fakeFleet) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failNext = err
}

func (f *fakeFleet) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.cursors...)
}

type staticTokens struct{ invalidated int }

func (*staticTokens) EnsureToken(context.Context) (lens.Token, error) {
	return lens.Token{Value: "tok", TTL: time.Hour}, nil
}

func (s *staticTokens) Invalidate() { s.invalidated++ }

type fixture struct {
	poller *Poller
	fleet  *fakeFleet
	cache  *devicecache.Cache
	clock  *fakeClock
}

func newFixture(t *testing.T, fleetSize, pageSize, pagesPerShard int) *fixture {
	t.Helper()

	clock := newFakeClock()
	fleet := &fakeFleet{size: fleetSize}
	cache := devicecache.New(logger.NewTestLogger())

	p := New(&Config{PageSize: pageSize, PagesPerShard: pagesPerShard, Interval: time.Minute}, Dependencies{
		Fetcher: fleet,
		Tokens:  &staticTokens{},
		Filter:  func() lens.FilterExpression { return lens.BuildFilter(lens.FilterSpec{}, pageSize) },
		Cache:   cache,
		Clock:   clock,
	}, logger.NewTestLogger())

	return &fixture{poller: p, fleet: fleet, cache: cache, clock: clock}
}

func TestShardCountFor(t *testing.T) {
	assert.Equal(t, 1, ShardCountFor(0, 99))
	assert.Equal(t, 1, ShardCountFor(45, 99))
	assert.Equal(t, 1, ShardCountFor(99, 99))
	assert.Equal(t, 2, ShardCountFor(100, 99))
	assert.Equal(t, 2, ShardCountFor(45, 15))
	assert.Equal(t, 2, ShardCountFor(100000, 99))
}

func TestPoller_SmallFleetSinglePage(t *testing.T) {
	f := newFixture(t, 45, 99, 1)
	ctx := context.Background()

	assert.Equal(t, 1, f.poller.SizeShards(45))
	f.poller.Touch()

	f.poller.Tick(ctx)

	assert.Equal(t, 45, f.cache.Len())
	assert.Equal(t, []string{"none"}, f.fleet.calls())
	assert.Equal(t, StateWaiting, f.poller.State())

	// closing tick of the window schedules the next one
	f.poller.Tick(ctx)
	status := f.poller.Status()
	assert.Equal(t, 0, status.ShardIndex)
	assert.Equal(t, f.clock.Now().Add(time.Minute), status.NextCycleAt)

	f.poller.Tick(ctx)
	assert.Len(t, f.fleet.calls(), 1, "no fetch before the window elapses")
}

func TestPoller_TwoShardsCoverFleetInTwoWindows(t *testing.T) {
	f := newFixture(t, 45, 15, 1)
	ctx := context.Background()

	require.Equal(t, 2, f.poller.SizeShards(45))
	f.poller.Touch()

	// window 1: one page per shard
	f.poller.Tick(ctx)
	f.poller.Tick(ctx)
	assert.Equal(t, 30, f.cache.Len())

	f.poller.Tick(ctx) // window closes
	f.poller.Tick(ctx) // still waiting
	assert.Len(t, f.fleet.calls(), 2)

	// window 2: the third page reaches the terminal cursor
	f.clock.Advance(time.Minute)
	f.poller.Touch()
	f.poller.Tick(ctx)

	assert.Equal(t, 45, f.cache.Len())
	assert.Equal(t, []string{"none", "15", "30"}, f.fleet.calls())

	snap := f.cache.Snapshot()
	seen := make(map[string]struct{}, len(snap))

	for _, d := range snap {
		seen[d.ID] = struct{}{}
	}

	assert.Len(t, seen, 45)

	// the pass completed, so the second shard turn is forfeited
	status := f.poller.Status()
	assert.Equal(t, 2, status.ShardIndex)
	assert.Equal(t, "none", status.Cursor)

	f.poller.Tick(ctx)
	assert.Len(t, f.fleet.calls(), 3)
}

func TestPoller_UnlimitedPagesPerShard(t *testing.T) {
	f := newFixture(t, 45, 15, -1)

	f.poller.SizeShards(45)
	f.poller.Touch()
	f.poller.Tick(context.Background())

	assert.Equal(t, 45, f.cache.Len())
	assert.Equal(t, []string{"none", "15", "30"}, f.fleet.calls())
}

func TestPoller_WatchdogPausesAndResumes(t *testing.T) {
	f := newFixture(t, 10, 99, 1)
	ctx := context.Background()

	// no caller activity yet
	f.poller.Tick(ctx)
	assert.Equal(t, StateIdle, f.poller.State())
	assert.Empty(t, f.fleet.calls())

	f.poller.Touch()
	f.clock.Advance(InactivityTimeout + time.Second)

	f.poller.Tick(ctx)
	assert.Equal(t, StateIdle, f.poller.State())
	assert.True(t, f.poller.Status().Paused)
	assert.Empty(t, f.fleet.calls())

	f.poller.Touch()
	f.poller.Tick(ctx)

	assert.False(t, f.poller.Status().Paused)
	assert.Len(t, f.fleet.calls(), 1)
	assert.Equal(t, 10, f.cache.Len())
}

func TestPoller_WatchdogBoundary(t *testing.T) {
	f := newFixture(t, 10, 99, 1)

	f.poller.Touch()
	f.clock.Advance(InactivityTimeout)
	f.poller.Tick(context.Background())

	// exactly the timeout is not yet inactive
	assert.False(t, f.poller.Status().Paused)
	assert.Len(t, f.fleet.calls(), 1)
}

func TestPoller_FetchErrorKeepsCursor(t *testing.T) {
	f := newFixture(t, 45, 15, 1)
	ctx := context.Background()

	f.poller.SizeShards(45)
	f.poller.Touch()

	f.poller.Tick(ctx)
	assert.Equal(t, "15", f.poller.Status().Cursor)

	f.fleet.fail(fmt.Errorf("%w: missing pageInfo", lens.ErrProtocol))
	f.poller.Tick(ctx)

	status := f.poller.Status()
	assert.Equal(t, "15", status.Cursor)
	assert.Equal(t, 2, status.ShardIndex)
	assert.Equal(t, StateWaiting, f.poller.State())
	assert.Equal(t, 15, f.cache.Len())

	f.poller.Tick(ctx) // window closes
	f.clock.Advance(time.Minute)
	f.poller.Touch()
	f.poller.Tick(ctx)

	assert.Equal(t, []string{"none", "15", "15"}, f.fleet.calls())
	assert.Equal(t, "30", f.poller.Status().Cursor)
	assert.Equal(t, 30, f.cache.Len())
}

func TestPoller_AuthFailureInvalidatesToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := lens.NewMockPageFetcher(ctrl)
	tokens := lens.NewMockTokenProvider(ctrl)
	clock := newFakeClock()

	tokens.EXPECT().EnsureToken(gomock.Any()).Return(lens.Token{Value: "stale", TTL: time.Hour}, nil)
	fetcher.EXPECT().FetchPage(gomock.Any(), lens.FirstPage(), gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: %w", lens.ErrTransport, lens.ErrAuthentication))
	tokens.EXPECT().Invalidate().Times(1)

	p := New(&Config{PageSize: 99}, Dependencies{
		Fetcher: fetcher,
		Tokens:  tokens,
		Filter:  func() lens.FilterExpression { return lens.BuildFilter(lens.FilterSpec{}, 99) },
		Cache:   devicecache.New(nil),
		Clock:   clock,
	}, nil)

	p.Touch()
	p.Tick(context.Background())

	assert.Equal(t, "none", p.Status().Cursor)
}

func TestPoller_TokenFailureSkipsTurn(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := lens.NewMockPageFetcher(ctrl)
	tokens := lens.NewMockTokenProvider(ctrl)

	tokens.EXPECT().EnsureToken(gomock.Any()).Return(lens.Token{}, lens.ErrAuthentication)

	p := New(nil, Dependencies{
		Fetcher: fetcher,
		Tokens:  tokens,
		Filter:  func() lens.FilterExpression { return lens.BuildFilter(lens.FilterSpec{}, 99) },
		Cache:   devicecache.New(nil),
		Clock:   newFakeClock(),
	}, nil)

	p.Touch()
	p.Tick(context.Background())

	assert.Equal(t, 1, p.Status().ShardIndex)
	assert.Equal(t, StateWaiting, p.State())
}

func TestPoller_ShrinkageClearsCacheThenRepopulates(t *testing.T) {
	f := newFixture(t, 45, 99, 1)
	ctx := context.Background()

	f.poller.SizeShards(45)
	f.poller.Touch()
	f.poller.Tick(ctx)
	require.Equal(t, 45, f.cache.Len())

	// five devices are decommissioned
	f.fleet.setSize(40)

	f.poller.Tick(ctx)
	f.clock.Advance(time.Minute)
	f.poller.Touch()
	f.poller.Tick(ctx)

	assert.Equal(t, 0, f.cache.Len(), "a shrinking total clears the cache")

	f.poller.Tick(ctx)
	f.clock.Advance(time.Minute)
	f.poller.Touch()
	f.poller.Tick(ctx)

	assert.Equal(t, 40, f.cache.Len())
}

func TestPoller_SummaryShrinkClearsCacheOnNextPass(t *testing.T) {
	f := newFixture(t, 45, 99, 1)
	ctx := context.Background()

	f.poller.SizeShards(45)
	f.poller.Touch()
	f.poller.Tick(ctx)
	require.Equal(t, 45, f.cache.Len())

	// the summary sees a smaller fleet before the pages do
	f.poller.SizeShards(40)

	f.poller.Tick(ctx)
	f.clock.Advance(time.Minute)
	f.poller.Touch()
	f.poller.Tick(ctx)

	assert.Equal(t, 0, f.cache.Len(), "a shrinking summary total clears the cache")

	// the summary count is applied once; the following pass repopulates
	f.poller.Tick(ctx)
	f.clock.Advance(time.Minute)
	f.poller.Touch()
	f.poller.Tick(ctx)

	assert.Equal(t, 45, f.cache.Len())
}

func TestPoller_NotifiesObservers(t *testing.T) {
	ctrl := gomock.NewController(t)
	observer := NewMockCycleObserver(ctrl)
	f := newFixture(t, 30, 15, -1)

	observer.EXPECT().CycleCompleted(gomock.Any(), gomock.Any()).Do(func(_ context.Context, report models.CycleReport) {
		assert.Equal(t, 2, report.Pages)
		assert.Equal(t, 30, report.Records)
		assert.Equal(t, 30, report.RemoteTotal)
		assert.Equal(t, 30, report.CacheSize)
		assert.False(t, report.CacheReset)
		assert.False(t, report.StartedAt.IsZero())
	})

	f.poller.AddObserver(observer)
	f.poller.SizeShards(30)
	f.poller.Touch()
	f.poller.Tick(context.Background())
}

func TestPoller_StartStop(t *testing.T) {
	f := newFixture(t, 10, 99, 1)
	f.poller.Touch()

	errCh := make(chan error, 1)

	go func() {
		errCh <- f.poller.Start(context.Background())
	}()

	// unbuffered: returns once the loop has taken the tick
	f.clock.ticker.ch <- f.clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, f.poller.Stop(ctx))
	require.NoError(t, <-errCh)

	assert.Equal(t, StateStopped, f.poller.State())
	assert.True(t, f.clock.ticker.stopped)
	assert.Equal(t, 10, f.cache.Len())

	// ticks after shutdown do nothing
	f.poller.Tick(context.Background())
	assert.Len(t, f.fleet.calls(), 1)

	require.ErrorIs(t, f.poller.Start(context.Background()), errAlreadyStarted)
}

func TestPoller_StopBeforeStart(t *testing.T) {
	f := newFixture(t, 10, 99, 1)

	require.NoError(t, f.poller.Stop(context.Background()))
	assert.Equal(t, StateStopped, f.poller.State())
	require.ErrorIs(t, f.poller.Start(context.Background()), errStopped)
}

func TestPoller_StartReturnsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := NewMockClock(ctrl)
	ticker := NewMockTicker(ctrl)
	ch := make(chan time.Time)

	clock.EXPECT().Ticker(DefaultTickInterval).Return(ticker)
	ticker.EXPECT().Chan().Return((<-chan time.Time)(ch)).AnyTimes()
	ticker.EXPECT().Stop()

	p := New(nil, Dependencies{Clock: clock, Cache: devicecache.New(nil)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() { errCh <- p.Start(ctx) }()

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, StateStopped, p.State())
}
