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

// Package lens pkg/lens/devices.go
package lens

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/carverauto/lens-sync/pkg/models"
)

// nullToken is what the API sends as nextToken once the last page was served.
const nullToken = "null"

// FetchPage fetches a single page of the filtered device search. No partial
// page is ever returned: any error leaves the caller's cursor where it was.
func (c *DefaultClient) FetchPage(ctx context.Context, cursor Cursor, filter FilterExpression, token Token) (*Page, error) {
	if cursor.IsTerminal() {
		return &Page{Next: TerminalCursor()}, nil
	}

	var data deviceSearchData

	err := c.doGraphQL(ctx, token, graphQLRequest{
		Query:     deviceSearchQuery,
		Variables: filter.variables(cursor),
	}, &data)
	if err != nil {
		return nil, err
	}

	if data.DeviceSearch == nil {
		return nil, fmt.Errorf("%w: %w: deviceSearch", ErrProtocol, errMissingField)
	}

	if data.DeviceSearch.PageInfo == nil {
		return nil, fmt.Errorf("%w: %w: pageInfo", ErrProtocol, errMissingField)
	}

	devices := make([]models.Device, 0, len(data.DeviceSearch.Edges))

	for i, edge := range data.DeviceSearch.Edges {
		device, err := deviceFromNode(edge.Node)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}

		devices = append(devices, device)
	}

	info := data.DeviceSearch.PageInfo

	page := &Page{
		Devices:     devices,
		Next:        nextCursor(info),
		CountOnPage: info.CountOnPage,
	}

	if info.TotalCount != nil {
		page.TotalCount = *info.TotalCount
		page.TotalKnown = true
	}

	c.Logger.Debug().
		Str("cursor", cursor.String()).
		Str("next", page.Next.String()).
		Int("records", len(devices)).
		Int("remote_total", page.TotalCount).
		Msg("Fetched device page")

	return page, nil
}

func nextCursor(info *pageInfo) Cursor {
	if !info.HasNextPage || info.NextToken == nil {
		return TerminalCursor()
	}

	tok := *info.NextToken
	if tok == "" || tok == nullToken {
		return TerminalCursor()
	}

	return CursorFromToken(tok)
}

// deviceFromNode maps a raw search node onto a Device. The typed fields are
// lifted out; every leaf is also kept in Properties under its dotted path.
func deviceFromNode(node map[string]interface{}) (models.Device, error) {
	if node == nil {
		return models.Device{}, fmt.Errorf("%w: %w: node", ErrProtocol, errMissingField)
	}

	id, ok := node["id"].(string)
	if !ok || id == "" {
		return models.Device{}, fmt.Errorf("%w: %w: id", ErrProtocol, errMissingField)
	}

	props := make(map[string]string)
	flatten("", node, props)

	device := models.Device{
		ID:           id,
		Model:        props["hardwareModel"],
		Name:         props["name"],
		SerialNumber: props["serialNumber"],
		Properties:   props,
	}

	if connected, ok := node["connected"].(bool); ok {
		device.Online = connected
	}

	device.MACAddresses = macAddresses(node["macAddress"])

	return device, nil
}

func macAddresses(v interface{}) []string {
	var out []string

	switch value := v.(type) {
	case string:
		for _, mac := range strings.Split(value, ",") {
			if mac = strings.TrimSpace(mac); mac != "" {
				out = append(out, mac)
			}
		}
	case []interface{}:
		for _, item := range value {
			if mac, ok := item.(string); ok && mac != "" {
				out = append(out, mac)
			}
		}
	}

	return out
}

// flatten writes every leaf of v into out keyed by its dotted path. Lists of
// objects are indexed ("connections.0.name"); lists of scalars are joined with
// commas; an empty list is recorded as "[]". Nulls are skipped.
func flatten(prefix string, v interface{}, out map[string]string) {
	switch value := v.(type) {
	case nil:
		return
	case map[string]interface{}:
		for k, child := range value {
			flatten(joinPath(prefix, k), child, out)
		}
	case []interface{}:
		flattenList(prefix, value, out)
	default:
		if prefix != "" {
			out[prefix] = scalarString(value)
		}
	}
}

func flattenList(prefix string, list []interface{}, out map[string]string) {
	if len(list) == 0 {
		out[prefix] = "[]"

		return
	}

	scalars := make([]string, 0, len(list))

	for i, item := range list {
		switch item.(type) {
		case map[string]interface{}, []interface{}:
			flatten(joinPath(prefix, strconv.Itoa(i)), item, out)
		case nil:
		default:
			scalars = append(scalars, scalarString(item))
		}
	}

	if len(scalars) > 0 {
		out[prefix] = strings.Join(scalars, ",")
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}

func scalarString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}
