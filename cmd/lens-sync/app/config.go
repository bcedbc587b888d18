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

package app

import (
	"fmt"

	"github.com/carverauto/lens-sync/pkg/aggregator"
	"github.com/carverauto/lens-sync/pkg/lens"
	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/models"
)

const (
	defaultListenAddr  = ":8088"
	defaultNATSSubject = "lens.devices.refreshed"
	defaultNATSStream  = "LENS_EVENTS"
)

// NATSConfig enables cycle event publishing when URL is set.
type NATSConfig struct {
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
	Stream  string `json:"stream" yaml:"stream"`
}

// Config is the lens-sync process configuration.
type Config struct {
	ListenAddr   string            `json:"listen_addr" yaml:"listen_addr"`
	APIKey       string            `json:"api_key" yaml:"api_key"`
	Lens         lens.Config       `json:"lens" yaml:"lens"`
	MappingFile  string            `json:"mapping_file" yaml:"mapping_file"`
	TickInterval models.Duration   `json:"tick_interval" yaml:"tick_interval"`
	NATS         NATSConfig        `json:"nats" yaml:"nats"`
	CORS         models.CORSConfig `json:"cors" yaml:"cors"`
	Logging      *logger.Config    `json:"logging" yaml:"logging"`
	Metrics      logger.OTelConfig `json:"metrics" yaml:"metrics"`
}

// Validate fills defaults and validates the API settings.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.NATS.Subject == "" {
		c.NATS.Subject = defaultNATSSubject
	}

	if c.NATS.Stream == "" {
		c.NATS.Stream = defaultNATSStream
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	if c.Metrics.ExportInterval == 0 {
		c.Metrics.ExportInterval = logger.DefaultOTelConfig().ExportInterval
	}

	agg := c.Aggregator()
	if err := agg.Validate(); err != nil {
		return fmt.Errorf("invalid lens configuration: %w", err)
	}

	c.Lens = agg.Lens

	return nil
}

// Aggregator returns the aggregator section of the configuration.
func (c *Config) Aggregator() *aggregator.Config {
	return &aggregator.Config{
		Lens:         c.Lens,
		MappingFile:  c.MappingFile,
		TickInterval: c.TickInterval,
	}
}
