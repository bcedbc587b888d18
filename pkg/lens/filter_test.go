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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilterTokens(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty input keeps one empty token", raw: "", want: []string{""}},
		{name: "single value", raw: "Studio X30", want: []string{"Studio X30"}},
		{name: "trims whitespace", raw: " A , B ,C", want: []string{"A", "B", "C"}},
		{name: "trailing comma dropped", raw: "A,", want: []string{"A"}},
		{name: "only commas", raw: ",,", want: []string{}},
		{name: "single comma", raw: ",", want: []string{}},
		{name: "inner empty kept", raw: "A,,B", want: []string{"A", "", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilterTokens(tt.raw))
		})
	}
}

func clauseFor(t *testing.T, expr FilterExpression, field string, logic LogicOperator) Clause {
	t.Helper()

	for _, c := range expr.And {
		if c.Logic == logic && len(c.Predicates) > 0 && c.Predicates[0].Field == field {
			return c
		}
	}

	require.Failf(t, "clause not found", "%s %s", logic, field)

	return Clause{}
}

func TestBuildFilter_ModelAndUnknownSite(t *testing.T) {
	spec := NewFilterSpec("A,B", "", SiteUnsetSentinel, "")
	expr := BuildFilter(spec, 99)

	assert.Equal(t, 99, expr.PageSize)
	require.Len(t, expr.And, 4)

	model := clauseFor(t, expr, FieldHardwareModel, LogicOr)
	require.Len(t, model.Predicates, 2)
	assert.Equal(t, "A", *model.Predicates[0].Eq)
	assert.Equal(t, "B", *model.Predicates[1].Eq)

	site := clauseFor(t, expr, FieldSite, LogicOr)
	require.Len(t, site.Predicates, 1)
	assert.True(t, site.Predicates[0].IsExistence())
	assert.False(t, *site.Predicates[0].Exists)
	assert.Nil(t, site.Predicates[0].Eq)
}

func TestBuildFilter_RoomSentinels(t *testing.T) {
	spec := NewFilterSpec("", "Board Room, Not Set", "", "Not Set,Lobby")
	expr := BuildFilter(spec, 15)

	rooms := clauseFor(t, expr, FieldRoom, LogicOr)
	require.Len(t, rooms.Predicates, 2)
	assert.Equal(t, "Board Room", *rooms.Predicates[0].Eq)
	assert.True(t, rooms.Predicates[1].IsExistence())

	excluded := clauseFor(t, expr, FieldRoom, LogicNot)
	require.Len(t, excluded.Predicates, 2)
	assert.True(t, excluded.Predicates[0].IsExistence())
	assert.Equal(t, "Lobby", *excluded.Predicates[1].Eq)
}

func TestBuildFilter_CommaOnlyFilterHasNoPredicates(t *testing.T) {
	expr := BuildFilter(NewFilterSpec(",", "", "", ""), 99)

	require.Len(t, expr.And, 4)

	model := expr.And[1]
	assert.Equal(t, LogicOr, model.Logic)
	assert.Empty(t, model.Predicates)

	body, err := json.Marshal(model)
	require.NoError(t, err)
	assert.JSONEq(t, `{"OR":[]}`, string(body))

	// an empty string still sends the match-all placeholder
	site := expr.And[0]
	require.Len(t, site.Predicates, 1)
	require.NotNil(t, site.Predicates[0].Eq)
	assert.Empty(t, *site.Predicates[0].Eq)
}

func TestBuildFilter_SentinelIsPerDimension(t *testing.T) {
	// "Unknown" is only special for sites, "Not Set" only for rooms.
	spec := NewFilterSpec(SiteUnsetSentinel, SiteUnsetSentinel, RoomUnsetSentinel, "")
	expr := BuildFilter(spec, 99)

	assert.False(t, clauseFor(t, expr, FieldHardwareModel, LogicOr).Predicates[0].IsExistence())
	assert.False(t, clauseFor(t, expr, FieldRoom, LogicOr).Predicates[0].IsExistence())
	assert.False(t, clauseFor(t, expr, FieldSite, LogicOr).Predicates[0].IsExistence())
}

func TestBuildFilter_EncodesSearchParams(t *testing.T) {
	expr := BuildFilter(NewFilterSpec("A", "", "Unknown", ""), 99)

	raw, err := json.Marshal(expr.variables(CursorFromToken("abc")))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	params := decoded["params"].(map[string]interface{})
	assert.InDelta(t, 99, params["pageSize"], 0)
	assert.Equal(t, "abc", params["nextToken"])

	and := params["filter"].(map[string]interface{})["AND"].([]interface{})
	require.Len(t, and, 4)

	site := and[0].(map[string]interface{})["OR"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, false, site["exists"])
	assert.Equal(t, "site", site["field"])
	assert.NotContains(t, site, "eq")

	model := and[1].(map[string]interface{})["OR"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "A", model["eq"])
	assert.Equal(t, "hardwareModel", model["field"])

	// An empty filter string is sent as an empty equality token.
	room := and[2].(map[string]interface{})["OR"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "", room["eq"])

	notRoom := and[3].(map[string]interface{})
	assert.Contains(t, notRoom, "NOT")

	sort := params["sort"].(map[string]interface{})["fields"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "id", sort["name"])
	assert.Equal(t, "ASC", sort["direction"])
}

func TestFilterExpression_FirstPageHasNullToken(t *testing.T) {
	expr := BuildFilter(FilterSpec{}, 10)

	raw, err := json.Marshal(expr.variables(FirstPage()))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"nextToken":null`)

	// nil dimensions behave like empty filter strings
	require.Len(t, expr.And, 4)

	for _, c := range expr.And {
		require.Len(t, c.Predicates, 1)
		assert.Equal(t, "", *c.Predicates[0].Eq)
	}
}
