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

package lens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errConnectionRefused = errors.New("connection refused")

// fleetServer emulates the GraphQL endpoint over a fixed fleet of devices.
type fleetServer struct {
	t        *testing.T
	devices  int
	requests atomic.Int32
}

func (f *fleetServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	assert.Equal(f.t, "Bearer test-token", r.Header.Get("Authorization"))

	var req struct {
		Query     string `json:"query"`
		Variables struct {
			Params struct {
				PageSize  int     `json:"pageSize"`
				NextToken *string `json:"nextToken"`
			} `json:"params"`
		} `json:"variables"`
	}

	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	offset := 0
	if req.Variables.Params.NextToken != nil {
		offset, _ = strconv.Atoi(*req.Variables.Params.NextToken)
	}

	size := req.Variables.Params.PageSize
	end := offset + size

	if end > f.devices {
		end = f.devices
	}

	edges := make([]map[string]interface{}, 0, size)

	for i := offset; i < end; i++ {
		edges = append(edges, map[string]interface{}{
			"node": map[string]interface{}{
				"id":            fmt.Sprintf("dev-%03d", i),
				"name":          fmt.Sprintf("Device %d", i),
				"connected":     i%2 == 0,
				"hardwareModel": "Studio X30",
				"serialNumber":  fmt.Sprintf("SN%d", i),
				"macAddress":    "00:11:22:33:44:55",
				"room":          map[string]interface{}{"name": "Board Room"},
				"site":          nil,
				"tags":          []interface{}{},
			},
		})
	}

	var next interface{} = "null"
	if end < f.devices {
		next = strconv.Itoa(end)
	}

	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"countDevices":       f.devices + 5,
			"tenantCount":        1,
			"calculateQueryCost": map[string]interface{}{"queryCost": 10, "costUsed": 20, "costRemaining": 980, "secondsToReset": 42},
			"tenants":            []interface{}{map[string]interface{}{"id": "t-1", "name": "Acme", "type": "CUSTOMER", "memberCount": 7}},
			"deviceSearch": map[string]interface{}{
				"edges": edges,
				"pageInfo": map[string]interface{}{
					"totalCount":  f.devices,
					"countOnPage": len(edges),
					"nextToken":   next,
					"hasNextPage": end < f.devices,
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, endpoint string) *DefaultClient {
	t.Helper()

	cfg := &Config{Endpoint: endpoint, TokenURL: endpoint + "/token", ClientID: "id", ClientSecret: "secret"}
	cfg.ApplyDefaults()

	return NewDefaultClient(cfg, logger.NewTestLogger())
}

var testToken = Token{Value: "test-token"}

func TestDefaultClient_FetchPage_PaginatesToTerminal(t *testing.T) {
	tests := []struct {
		name      string
		devices   int
		pageSize  int
		wantCalls int
	}{
		{name: "single page", devices: 45, pageSize: 99, wantCalls: 1},
		{name: "three pages", devices: 45, pageSize: 15, wantCalls: 3},
		{name: "partial last page", devices: 46, pageSize: 15, wantCalls: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &fleetServer{t: t, devices: tt.devices}
			ts := httptest.NewServer(srv)
			defer ts.Close()

			client := newTestClient(t, ts.URL)
			filter := BuildFilter(client.Config.FilterSpec(), tt.pageSize)

			seen := make(map[string]struct{})
			cursor := FirstPage()
			calls := 0

			for !cursor.IsTerminal() {
				page, err := client.FetchPage(context.Background(), cursor, filter, testToken)
				require.NoError(t, err)

				calls++

				for _, d := range page.Devices {
					seen[d.ID] = struct{}{}
				}

				assert.Equal(t, tt.devices, page.TotalCount)

				cursor = page.Next

				require.LessOrEqual(t, calls, tt.wantCalls)
			}

			assert.Equal(t, tt.wantCalls, calls)
			assert.Len(t, seen, tt.devices)
		})
	}
}

func TestDefaultClient_FetchPage_MapsDevice(t *testing.T) {
	srv := &fleetServer{t: t, devices: 1}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := newTestClient(t, ts.URL)

	page, err := client.FetchPage(context.Background(), FirstPage(), BuildFilter(FilterSpec{}, 99), testToken)
	require.NoError(t, err)
	require.Len(t, page.Devices, 1)

	d := page.Devices[0]
	assert.Equal(t, "dev-000", d.ID)
	assert.True(t, d.Online)
	assert.Equal(t, "Studio X30", d.Model)
	assert.Equal(t, "Device 0", d.Name)
	assert.Equal(t, "SN0", d.SerialNumber)
	assert.Equal(t, []string{"00:11:22:33:44:55"}, d.MACAddresses)
	assert.Equal(t, "Board Room", d.Properties["room.name"])
	assert.Equal(t, "[]", d.Properties["tags"])
	assert.NotContains(t, d.Properties, "site")
	assert.True(t, page.Next.IsTerminal())
}

func TestDefaultClient_FetchPage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name:    "http failure",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantErr: ErrTransport,
		},
		{
			name:    "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			wantErr: ErrAuthentication,
		},
		{
			name:    "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<html>")) },
			wantErr: ErrProtocol,
		},
		{
			name: "graphql errors only",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"bad params"}]}`))
			},
			wantErr: ErrProtocol,
		},
		{
			name: "missing pageInfo",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"deviceSearch":{"edges":[]}}}`))
			},
			wantErr: ErrProtocol,
		},
		{
			name: "node without id",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"deviceSearch":{"edges":[{"node":{"name":"x"}}],` +
					`"pageInfo":{"totalCount":1,"countOnPage":1,"nextToken":"null","hasNextPage":false}}}}`))
			},
			wantErr: ErrProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			client := newTestClient(t, ts.URL)

			page, err := client.FetchPage(context.Background(), CursorFromToken("15"), BuildFilter(FilterSpec{}, 15), testToken)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, page)
		})
	}
}

func TestDefaultClient_FetchPage_TransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().Do(gomock.Any()).Return(nil, errConnectionRefused)

	client := newTestClient(t, "http://lens.invalid/graphql")
	client.HTTPClient = httpClient

	_, err := client.FetchPage(context.Background(), FirstPage(), BuildFilter(FilterSpec{}, 99), testToken)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, errConnectionRefused)
}

func TestDefaultClient_FetchPage_TerminalCursorIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	client := newTestClient(t, "http://lens.invalid/graphql")
	client.HTTPClient = httpClient

	page, err := client.FetchPage(context.Background(), TerminalCursor(), BuildFilter(FilterSpec{}, 99), testToken)
	require.NoError(t, err)
	assert.Empty(t, page.Devices)
	assert.True(t, page.Next.IsTerminal())
}

func TestDefaultClient_FetchSummary(t *testing.T) {
	srv := &fleetServer{t: t, devices: 45}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := newTestClient(t, ts.URL)

	summary, err := client.FetchSummary(context.Background(), BuildFilter(FilterSpec{}, 99), testToken)
	require.NoError(t, err)

	assert.Equal(t, 45, summary.CountDevices)
	require.NotNil(t, summary.FleetCount)
	assert.Equal(t, int64(50), *summary.FleetCount)
	require.NotNil(t, summary.TenantCount)
	assert.Equal(t, int64(1), *summary.TenantCount)
	require.NotNil(t, summary.QueryCost)
	assert.Equal(t, int64(980), *summary.QueryCost.CostRemaining)
	require.Len(t, summary.Tenants, 1)
	assert.Equal(t, "Acme", summary.Tenants[0].Name)
}

func TestDefaultClient_FetchSummary_MissingCount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"countDevices":3}}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)

	_, err := client.FetchSummary(context.Background(), BuildFilter(FilterSpec{}, 99), testToken)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestDefaultClient_RebootDevice(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantErr  error
		contains string
	}{
		{name: "success", body: `{"data":{"rebootDevice":{"success":true,"error":null}}}`},
		{name: "rejected", body: `{"data":{"rebootDevice":{"success":false,"error":"device offline"}}}`, wantErr: ErrControl, contains: "device offline"},
		{name: "missing result", body: `{"data":{}}`, wantErr: ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				assert.Contains(t, string(body), `"deviceId":"dev-7"`)
				assert.Contains(t, string(body), "rebootDevice")

				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client := newTestClient(t, ts.URL)

			err := client.RebootDevice(context.Background(), "dev-7", testToken)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)

			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestDefaultClient_ExchangeToken(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantToken  string
		wantExpiry int64
	}{
		{name: "success", status: http.StatusOK, body: `{"access_token":"abc","expires_in":86400,"token_type":"Bearer"}`,
			wantToken: "abc", wantExpiry: 86400},
		{name: "single error field", status: http.StatusOK, body: `{"error":"invalid_client"}`, wantErr: ErrAuthentication},
		{name: "rejected", status: http.StatusUnauthorized, body: `{"error":"access_denied"}`, wantErr: ErrAuthentication},
		{name: "missing token", status: http.StatusOK, body: `{"expires_in":10,"token_type":"Bearer"}`, wantErr: ErrAuthentication},
		{name: "garbage", status: http.StatusOK, body: `not-json`, wantErr: ErrAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)

			httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
				var body tokenRequest
				require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
				assert.Equal(t, "id", body.ClientID)
				assert.Equal(t, "secret", body.ClientSecret)
				assert.Equal(t, "client_credentials", body.GrantType)
				assert.True(t, strings.HasSuffix(req.URL.Path, "/token"))

				return &http.Response{
					StatusCode: tt.status,
					Body:       io.NopCloser(bytes.NewBufferString(tt.body)),
					Header:     make(http.Header),
				}, nil
			})

			client := newTestClient(t, "http://lens.invalid")
			client.HTTPClient = httpClient

			resp, err := client.ExchangeToken(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, resp.AccessToken)
			assert.Equal(t, tt.wantExpiry, resp.ExpiresIn)
		})
	}
}

func TestDefaultClient_ExchangeToken_MissingCredentials(t *testing.T) {
	client := newTestClient(t, "http://lens.invalid")
	client.Config.ClientSecret = ""

	_, err := client.ExchangeToken(context.Background())
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestConfig_ValidateAndDefaults(t *testing.T) {
	cfg := &Config{}
	require.ErrorIs(t, cfg.Validate(), ErrConfiguration)

	cfg.Endpoint = "https://api.example.com/graphql"
	require.ErrorIs(t, cfg.Validate(), ErrConfiguration)

	cfg.TokenURL = "https://login.example.com/oauth/token"
	require.NoError(t, cfg.Validate())

	cfg.ApplyDefaults()
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, DefaultPagesPerShard, cfg.PagesPerShard)
	assert.Equal(t, DefaultTimeout, time.Duration(cfg.Timeout))
	assert.Equal(t, "1m0s", cfg.PollingInterval().String())
	assert.False(t, cfg.HasCredentials())

	cfg.PollingIntervalMinutes = 5
	assert.Equal(t, "5m0s", cfg.PollingInterval().String())
}
