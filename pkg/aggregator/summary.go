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
	"strconv"

	"github.com/carverauto/lens-sync/pkg/lens"
)

// Summary statistic keys.
const (
	StatCountDevices      = "CountDevices"
	StatFleetCount        = "FleetCountDevices"
	StatTenantCount       = "TenantCount"
	StatQueryCost         = "QueryCost#QueryCost"
	StatCostUsed          = "QueryCost#CostUsed"
	StatCostRemaining     = "QueryCost#CostRemaining"
	StatSecondsToReset    = "QueryCost#SecondsToReset"
	StatTenantID          = "TenantID"
	StatTenantName        = "TenantName"
	StatTenantType        = "TenantType"
	StatTenantMemberCount = "TenantMemberCount"
	StatUpdateInterval    = "UpdateInterval(minutes)"
)

func summaryStatistics(s *lens.Summary, cfg *lens.Config, shards int) map[string]string {
	stats := map[string]string{
		StatCountDevices:      strconv.Itoa(s.CountDevices),
		StatFleetCount:        optionalInt(s.FleetCount),
		StatTenantCount:       optionalInt(s.TenantCount),
		StatQueryCost:         NoneValue,
		StatCostUsed:          NoneValue,
		StatCostRemaining:     NoneValue,
		StatSecondsToReset:    NoneValue,
		StatTenantID:          NoneValue,
		StatTenantName:        NoneValue,
		StatTenantType:        NoneValue,
		StatTenantMemberCount: NoneValue,
		StatUpdateInterval:    strconv.Itoa(updateIntervalMinutes(s.CountDevices, cfg, shards)),
	}

	if qc := s.QueryCost; qc != nil {
		stats[StatQueryCost] = optionalInt(qc.QueryCost)
		stats[StatCostUsed] = optionalInt(qc.CostUsed)
		stats[StatCostRemaining] = optionalInt(qc.CostRemaining)
		stats[StatSecondsToReset] = optionalInt(qc.SecondsToReset)
	}

	if len(s.Tenants) > 0 {
		t := s.Tenants[0]
		stats[StatTenantID] = defaultValue(t.ID)
		stats[StatTenantName] = defaultValue(t.Name)
		stats[StatTenantType] = defaultValue(t.Type)
		stats[StatTenantMemberCount] = optionalInt(t.MemberCount)
	}

	return stats
}

// updateIntervalMinutes estimates how long one full pass over count devices
// takes: the number of cadence windows needed times the window length.
func updateIntervalMinutes(count int, cfg *lens.Config, shards int) int {
	if count <= 0 {
		return 0
	}

	interval := int(cfg.PollingInterval().Minutes())

	if cfg.PagesPerShard < 0 {
		return interval
	}

	perWindow := cfg.PageSize * shards * cfg.PagesPerShard
	if perWindow <= 0 {
		return interval
	}

	windows := (count + perWindow - 1) / perWindow

	return windows * interval
}

func optionalInt(v *int64) string {
	if v == nil {
		return NoneValue
	}

	return strconv.FormatInt(*v, 10)
}
