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
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/lens-sync/pkg/lens"
)

func validConfig() *Config {
	return &Config{
		Lens: lens.Config{
			Endpoint: "https://api.example.test/graphql",
			TokenURL: "https://login.example.test/token",
		},
	}
}

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, defaultNATSSubject, cfg.NATS.Subject)
	assert.Equal(t, defaultNATSStream, cfg.NATS.Stream)
	assert.NotNil(t, cfg.Logging)
	assert.Equal(t, lens.DefaultPageSize, cfg.Lens.PageSize)
	assert.Equal(t, lens.DefaultPollingIntervalMinutes, cfg.Lens.PollingIntervalMinutes)
	assert.Positive(t, cfg.Metrics.ExportInterval)
}

func TestConfigValidate_MissingEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Lens.Endpoint = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, lens.ErrConfiguration)
}

func TestApp_WithoutCredentials(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, a.Stop(context.Background()))
	})

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/devices", http.NoBody))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))

	rr = httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/summary", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestApp_StartStopsOnCancel(t *testing.T) {
	cfg := validConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() { errCh <- a.Start(ctx) }()

	_, err = a.server.Addr(context.Background())
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-errCh)
	require.NoError(t, a.Stop(context.Background()))
}
