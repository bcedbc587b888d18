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

// Package devicecache holds the in-memory copy of the remote device fleet.
package devicecache

import (
	"context"
	"sort"
	"sync"

	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/models"
)

// Cache maps device id to the last fetched record. Only the poller writes to
// it; readers get copies. The lock is held for in-memory work only.
type Cache struct {
	mu          sync.RWMutex
	devices     map[string]models.Device
	remoteTotal int
	logger      logger.Logger
}

// New creates an empty cache.
func New(log logger.Logger) *Cache {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Cache{
		devices: make(map[string]models.Device),
		logger:  log,
	}
}

// Merge upserts each record by id. An existing entry is replaced whole, never
// patched field by field. Records without an id are ignored.
func (c *Cache) Merge(records []models.Device) int {
	merged := 0

	c.mu.Lock()
	for i := range records {
		if records[i].ID == "" {
			continue
		}

		c.devices[records[i].ID] = records[i].Clone()
		merged++
	}
	c.mu.Unlock()

	recordMerged(context.Background(), merged)

	return merged
}

// FinalizeCycle records the authoritative remote total at the end of a full
// pass. When that total is smaller than the cache the cache is cleared so the
// next pass repopulates it from scratch. It reports whether a clear happened.
func (c *Cache) FinalizeCycle(remoteTotal int) bool {
	c.mu.Lock()

	c.remoteTotal = remoteTotal

	size := len(c.devices)
	if remoteTotal >= size {
		c.mu.Unlock()

		return false
	}

	c.devices = make(map[string]models.Device)
	c.mu.Unlock()

	recordReset(context.Background())

	c.logger.Info().
		Int("remote_total", remoteTotal).
		Int("cache_size", size).
		Msg("Remote device count shrank, cache cleared")

	return true
}

// SetRemoteTotal records the latest known remote total without finalizing.
func (c *Cache) SetRemoteTotal(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remoteTotal = total
}

// RemoteTotal returns the last recorded remote total.
func (c *Cache) RemoteTotal() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.remoteTotal
}

// Len returns the number of cached devices.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.devices)
}

// Get returns a copy of one device.
func (c *Cache) Get(id string) (models.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.devices[id]
	if !ok {
		return models.Device{}, false
	}

	return d.Clone(), true
}

// Snapshot returns a copy of every cached device, ordered by id. The caller
// owns the result.
func (c *Cache) Snapshot() []models.Device {
	c.mu.RLock()
	out := make([]models.Device, 0, len(c.devices))

	for id := range c.devices {
		d := c.devices[id]
		out = append(out, d.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
