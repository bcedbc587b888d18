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
	"strings"
)

// Unset sentinels. A filter token equal to one of these matches devices where
// the field is absent instead of devices where it equals the token.
const (
	RoomUnsetSentinel = "Not Set"
	SiteUnsetSentinel = "Unknown"
)

// Fields the API filters on.
const (
	FieldSite          = "site"
	FieldHardwareModel = "hardwareModel"
	FieldRoom          = "room"
	FieldID            = "id"
)

// LogicOperator combines the predicates of one clause.
type LogicOperator string

const (
	LogicOr  LogicOperator = "OR"
	LogicNot LogicOperator = "NOT"
	LogicAnd LogicOperator = "AND"
)

// SortDirection orders search results.
type SortDirection string

const SortAscending SortDirection = "ASC"

// FilterSpec holds the parsed filter tokens per dimension.
type FilterSpec struct {
	ModelNames        []string
	RoomNames         []string
	SiteNames         []string
	ExcludedRoomNames []string
}

// NewFilterSpec parses the four comma-separated filter strings.
func NewFilterSpec(models, rooms, sites, excludedRooms string) FilterSpec {
	return FilterSpec{
		ModelNames:        ParseFilterTokens(models),
		RoomNames:         ParseFilterTokens(rooms),
		SiteNames:         ParseFilterTokens(sites),
		ExcludedRoomNames: ParseFilterTokens(excludedRooms),
	}
}

// ParseFilterTokens splits raw on commas and trims each token. Trailing empty
// segments are dropped. An empty string yields a single empty-string token,
// which the API treats as matching everything; input made only of commas
// yields no tokens and so no predicates.
func ParseFilterTokens(raw string) []string {
	if raw == "" {
		return []string{""}
	}

	parts := strings.Split(raw, ",")

	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}

	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, strings.TrimSpace(p))
	}

	return tokens
}

// Predicate tests one field, either for equality or for existence.
type Predicate struct {
	Eq     *string `json:"eq,omitempty"`
	Exists *bool   `json:"exists,omitempty"`
	Field  string  `json:"field"`
}

// IsExistence reports whether the predicate is an existence check.
func (p Predicate) IsExistence() bool { return p.Exists != nil }

// Clause is a set of predicates joined by one logic operator. It encodes as
// {"OR": [...]} or {"NOT": [...]}.
type Clause struct {
	Logic      LogicOperator
	Predicates []Predicate
}

// MarshalJSON implements json.Marshaler.
func (c Clause) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[LogicOperator][]Predicate{c.Logic: c.Predicates})
}

// SortField orders results by one field.
type SortField struct {
	Name      string        `json:"name"`
	Direction SortDirection `json:"direction"`
}

// FilterExpression is the structured filter sent with every device search:
// clauses joined by AND, the page size and a stable sort on device id.
type FilterExpression struct {
	PageSize int
	And      []Clause
	Sort     []SortField
}

type filterNode struct {
	And []Clause `json:"AND"`
}

type sortNode struct {
	Fields []SortField `json:"fields"`
}

type searchParams struct {
	PageSize  int        `json:"pageSize"`
	NextToken *string    `json:"nextToken"`
	Filter    filterNode `json:"filter"`
	Sort      sortNode   `json:"sort"`
}

type searchVariables struct {
	Params searchParams `json:"params"`
}

// variables renders the expression as GraphQL variables for the page at cursor.
func (f FilterExpression) variables(cursor Cursor) searchVariables {
	params := searchParams{
		PageSize: f.PageSize,
		Filter:   filterNode{And: f.And},
		Sort:     sortNode{Fields: f.Sort},
	}

	if tok := cursor.Token(); tok != "" {
		params.NextToken = &tok
	}

	return searchVariables{Params: params}
}

// WithPageSize returns a copy of the expression with a different page size.
func (f FilterExpression) WithPageSize(pageSize int) FilterExpression {
	f.PageSize = pageSize

	return f
}

type filterDimension struct {
	field    string
	logic    LogicOperator
	sentinel string
	tokens   func(FilterSpec) []string
}

//nolint:gochecknoglobals // fixed dimension order of the AND clause
var filterDimensions = []filterDimension{
	{field: FieldSite, logic: LogicOr, sentinel: SiteUnsetSentinel, tokens: func(s FilterSpec) []string { return s.SiteNames }},
	{field: FieldHardwareModel, logic: LogicOr, tokens: func(s FilterSpec) []string { return s.ModelNames }},
	{field: FieldRoom, logic: LogicOr, sentinel: RoomUnsetSentinel, tokens: func(s FilterSpec) []string { return s.RoomNames }},
	{field: FieldRoom, logic: LogicNot, sentinel: RoomUnsetSentinel, tokens: func(s FilterSpec) []string { return s.ExcludedRoomNames }},
}

// BuildFilter turns a FilterSpec into the expression sent with device searches.
// A nil dimension is treated like an empty filter string; an empty non-nil
// dimension contributes a clause without predicates.
func BuildFilter(spec FilterSpec, pageSize int) FilterExpression {
	clauses := make([]Clause, 0, len(filterDimensions))

	for _, dim := range filterDimensions {
		tokens := dim.tokens(spec)
		if tokens == nil {
			tokens = []string{""}
		}

		preds := make([]Predicate, 0, len(tokens))

		for _, tok := range tokens {
			preds = append(preds, newPredicate(dim, tok))
		}

		clauses = append(clauses, Clause{Logic: dim.logic, Predicates: preds})
	}

	return FilterExpression{
		PageSize: pageSize,
		And:      clauses,
		Sort:     []SortField{{Name: FieldID, Direction: SortAscending}},
	}
}

func newPredicate(dim filterDimension, token string) Predicate {
	if dim.sentinel != "" && token == dim.sentinel {
		exists := false

		return Predicate{Exists: &exists, Field: dim.field}
	}

	eq := token

	return Predicate{Eq: &eq, Field: dim.field}
}
