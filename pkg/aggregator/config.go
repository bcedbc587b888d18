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

package aggregator

import (
	"time"

	"github.com/carverauto/lens-sync/pkg/lens"
	"github.com/carverauto/lens-sync/pkg/models"
	"github.com/carverauto/lens-sync/pkg/poller"
)

// Config configures the Service.
type Config struct {
	Lens lens.Config `json:"lens" yaml:"lens"`
	// MappingFile optionally replaces the embedded property mapping table.
	MappingFile  string          `json:"mapping_file,omitempty" yaml:"mapping_file,omitempty"`
	TickInterval models.Duration `json:"tick_interval,omitempty" yaml:"tick_interval,omitempty"`
}

// Validate applies defaults and checks the API settings.
func (c *Config) Validate() error {
	c.Lens.ApplyDefaults()

	return c.Lens.Validate()
}

func (c *Config) pollerConfig() *poller.Config {
	return &poller.Config{
		PageSize:      c.Lens.PageSize,
		PagesPerShard: c.Lens.PagesPerShard,
		Interval:      c.Lens.PollingInterval(),
		TickInterval:  time.Duration(c.TickInterval),
	}
}
