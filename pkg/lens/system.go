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
	"context"
	"fmt"
)

// summaryPageSize keeps the summary's device search to a single record; only
// its totalCount is used.
const summaryPageSize = 1

// FetchSummary reads the device count, query cost and tenant details. The
// device count is the total of the filtered search so it matches what the
// poller will page through.
func (c *DefaultClient) FetchSummary(ctx context.Context, filter FilterExpression, token Token) (*Summary, error) {
	var data summaryData

	err := c.doGraphQL(ctx, token, graphQLRequest{
		Query:     summaryQuery,
		Variables: filter.WithPageSize(summaryPageSize).variables(FirstPage()),
	}, &data)
	if err != nil {
		return nil, err
	}

	if data.DeviceSearch == nil || data.DeviceSearch.PageInfo == nil || data.DeviceSearch.PageInfo.TotalCount == nil {
		return nil, fmt.Errorf("%w: %w: deviceSearch.pageInfo.totalCount", ErrProtocol, errMissingField)
	}

	summary := &Summary{
		CountDevices: *data.DeviceSearch.PageInfo.TotalCount,
		FleetCount:   data.CountDevices,
		TenantCount:  data.TenantCount,
		QueryCost:    data.CalculateQueryCost,
		Tenants:      data.Tenants,
	}

	c.Logger.Debug().
		Int("remote_total", summary.CountDevices).
		Int("tenants", len(summary.Tenants)).
		Msg("Fetched system summary")

	return summary, nil
}
