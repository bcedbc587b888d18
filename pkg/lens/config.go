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

// Package lens pkg/lens/config.go provides the configuration for the fleet API.
package lens

import (
	"fmt"
	"time"

	"github.com/carverauto/lens-sync/pkg/models"
)

const (
	DefaultPageSize               = 99
	DefaultPollingIntervalMinutes = 1
	DefaultPagesPerShard          = 1
	DefaultTimeout                = 30 * time.Second
)

// Config holds the remote API location, credentials and the caller-set filters.
type Config struct {
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	TokenURL     string `json:"token_url" yaml:"token_url"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`

	FilterModelName       string `json:"filter_model_name" yaml:"filter_model_name"`
	FilterRoomName        string `json:"filter_room_name" yaml:"filter_room_name"`
	FilterSiteName        string `json:"filter_site_name" yaml:"filter_site_name"`
	FilterExcludeRoomName string `json:"filter_exclude_room_name" yaml:"filter_exclude_room_name"`

	PageSize               int `json:"page_size" yaml:"page_size"`
	PollingIntervalMinutes int `json:"polling_interval_minutes" yaml:"polling_interval_minutes"`
	// PagesPerShard caps the pages fetched in one shard turn. Negative means
	// fetch until the terminal cursor.
	PagesPerShard     int             `json:"pages_per_shard" yaml:"pages_per_shard"`
	RequestsPerSecond float64         `json:"requests_per_second" yaml:"requests_per_second"`
	Timeout           models.Duration `json:"timeout" yaml:"timeout"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}

	if c.PollingIntervalMinutes == 0 {
		c.PollingIntervalMinutes = DefaultPollingIntervalMinutes
	}

	if c.PagesPerShard == 0 {
		c.PagesPerShard = DefaultPagesPerShard
	}

	if c.Timeout == 0 {
		c.Timeout = models.Duration(DefaultTimeout)
	}
}

// Validate checks the settings needed to reach the API at all. Credentials are
// checked lazily by HasCredentials so a service can start without them.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: %w", ErrConfiguration, errMissingEndpoint)
	}

	if c.TokenURL == "" {
		return fmt.Errorf("%w: %w", ErrConfiguration, errMissingTokenURL)
	}

	if c.PageSize < 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errInvalidPageSize)
	}

	if c.PollingIntervalMinutes < 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errInvalidInterval)
	}

	return nil
}

// HasCredentials reports whether both the client id and secret are set.
func (c *Config) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// PollingInterval returns the cadence window length.
func (c *Config) PollingInterval() time.Duration {
	minutes := c.PollingIntervalMinutes
	if minutes <= 0 {
		minutes = DefaultPollingIntervalMinutes
	}

	return time.Duration(minutes) * time.Minute
}

// FilterSpec parses the configured filter strings.
func (c *Config) FilterSpec() FilterSpec {
	return NewFilterSpec(c.FilterModelName, c.FilterRoomName, c.FilterSiteName, c.FilterExcludeRoomName)
}
