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

// Package lens talks to the device fleet GraphQL API: token exchange, filtered
// cursor pagination over devices, the system summary and device controls.
package lens

import (
	"encoding/json"
	"time"

	"github.com/carverauto/lens-sync/pkg/models"
)

// Token is a bearer token together with the window in which it may be used.
// Tokens are replaced, never mutated.
type Token struct {
	Value    string
	IssuedAt time.Time
	TTL      time.Duration
}

// Valid reports whether the token may still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Sub(t.IssuedAt) < t.TTL
}

// Cursor is the position of the next page to fetch. The zero value addresses
// the first page.
type Cursor struct {
	token    string
	terminal bool
}

// FirstPage returns the cursor for the first page of a result set.
func FirstPage() Cursor { return Cursor{} }

// TerminalCursor returns the cursor marking the end of a result set.
func TerminalCursor() Cursor { return Cursor{terminal: true} }

// CursorFromToken wraps a continuation token returned by the API.
func CursorFromToken(token string) Cursor { return Cursor{token: token} }

// IsFirst reports whether the cursor addresses the first page.
func (c Cursor) IsFirst() bool { return !c.terminal && c.token == "" }

// IsTerminal reports whether there are no more pages.
func (c Cursor) IsTerminal() bool { return c.terminal }

// Token returns the continuation token, empty for the first and terminal cursors.
func (c Cursor) Token() string { return c.token }

func (c Cursor) String() string {
	switch {
	case c.terminal:
		return "terminal"
	case c.token == "":
		return "none"
	default:
		return c.token
	}
}

// Page is one page of devices plus the cursor that follows it. TotalCount is
// only meaningful when TotalKnown is set.
type Page struct {
	Devices     []models.Device
	Next        Cursor
	TotalCount  int
	TotalKnown  bool
	CountOnPage int
}

// AccessTokenResponse is the body returned by the token endpoint.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// QueryCost reports the API's query budget. Nil fields were absent from the response.
type QueryCost struct {
	QueryCost      *int64 `json:"queryCost"`
	CostUsed       *int64 `json:"costUsed"`
	CostRemaining  *int64 `json:"costRemaining"`
	SecondsToReset *int64 `json:"secondsToReset"`
}

// Tenant identifies the account the credentials belong to.
type Tenant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	MemberCount *int64 `json:"memberCount"`
}

// Summary is the system information returned by FetchSummary. CountDevices is
// the total of the filtered device search; FleetCount is the unfiltered count.
type Summary struct {
	CountDevices int
	FleetCount   *int64
	TenantCount  *int64
	QueryCost    *QueryCost
	Tenants      []Tenant
}

type graphQLRequest struct {
	Query     string      `json:"query"`
	Variables interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type pageInfo struct {
	TotalCount  *int    `json:"totalCount"`
	CountOnPage int     `json:"countOnPage"`
	NextToken   *string `json:"nextToken"`
	HasNextPage bool    `json:"hasNextPage"`
}

type deviceEdge struct {
	Node map[string]interface{} `json:"node"`
}

type deviceSearchResult struct {
	Edges    []deviceEdge `json:"edges"`
	PageInfo *pageInfo    `json:"pageInfo"`
}

type deviceSearchData struct {
	DeviceSearch *deviceSearchResult `json:"deviceSearch"`
}

type summaryData struct {
	CountDevices       *int64              `json:"countDevices"`
	CalculateQueryCost *QueryCost          `json:"calculateQueryCost"`
	TenantCount        *int64              `json:"tenantCount"`
	Tenants            []Tenant            `json:"tenants"`
	DeviceSearch       *deviceSearchResult `json:"deviceSearch"`
}

type controlResult struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
}

type rebootData struct {
	RebootDevice *controlResult `json:"rebootDevice"`
}
