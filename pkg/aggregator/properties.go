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
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/carverauto/lens-sync/pkg/lens"
	"github.com/carverauto/lens-sync/pkg/models"
	"gopkg.in/yaml.v3"
)

//go:embed mapping.yaml
var defaultMapping []byte

const (
	// NoneValue is published for any property the device did not report.
	NoneValue = "None"

	// ControlReboot is the only control action a device accepts.
	ControlReboot = "RebootDevice"

	rebootLabel        = "Reboot"
	rebootLabelPressed = "Rebooting"
	callStatusProperty = "CallStatus"
	inCallStatus       = "IN_CALL"
	emptyList          = "[]"
	nullValue          = "null"
	groupSeparator     = "#"

	sourceTimeLayout  = "2006-01-02T15:04:05.000Z"
	displayTimeLayout = "Mon Jan 02 15:04:05 MST 2006"
)

type transformFunc func(string) string

//nolint:gochecknoglobals // lookup table of named formatters
var transforms = map[string]transformFunc{
	"":             identity,
	"none":         identity,
	"capitalize":   capitalize,
	"status":       statusText,
	"datetime":     formatDateTime,
	"two_decimals": twoDecimals,
	"room":         func(v string) string { return orSentinel(v, lens.RoomUnsetSentinel) },
	"site":         func(v string) string { return orSentinel(v, lens.SiteUnsetSentinel) },
}

// PropertyRule publishes one flattened source path under a display name.
type PropertyRule struct {
	Name      string `yaml:"name"`
	Source    string `yaml:"source"`
	Transform string `yaml:"transform,omitempty"`

	fn transformFunc
}

// GroupRule expands a list of objects into numbered property groups.
type GroupRule struct {
	Name   string         `yaml:"name"`
	Source string         `yaml:"source"`
	Fields []PropertyRule `yaml:"fields"`
}

// PropertyMapping turns a device's raw flattened fields into display properties.
type PropertyMapping struct {
	Properties []PropertyRule `yaml:"properties"`
	Groups     []GroupRule    `yaml:"groups"`
}

// DefaultPropertyMapping returns the embedded mapping table.
func DefaultPropertyMapping() (*PropertyMapping, error) {
	return ParsePropertyMapping(defaultMapping)
}

// LoadPropertyMappingFile reads a mapping table from a YAML file.
func LoadPropertyMappingFile(path string) (*PropertyMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read property mapping %s: %w", path, err)
	}

	return ParsePropertyMapping(data)
}

// ParsePropertyMapping decodes a YAML mapping table and resolves its transforms.
func ParsePropertyMapping(data []byte) (*PropertyMapping, error) {
	var m PropertyMapping

	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to parse property mapping: %w", lens.ErrConfiguration, err)
	}

	if len(m.Properties) == 0 && len(m.Groups) == 0 {
		return nil, fmt.Errorf("%w: %w", lens.ErrConfiguration, errEmptyMapping)
	}

	seen := make(map[string]struct{}, len(m.Properties))

	for i := range m.Properties {
		if err := m.Properties[i].compile(); err != nil {
			return nil, err
		}

		if _, dup := seen[m.Properties[i].Name]; dup {
			return nil, fmt.Errorf("%w: %w: %s", lens.ErrConfiguration, errDuplicateProperty, m.Properties[i].Name)
		}

		seen[m.Properties[i].Name] = struct{}{}
	}

	for i := range m.Groups {
		for j := range m.Groups[i].Fields {
			if err := m.Groups[i].Fields[j].compile(); err != nil {
				return nil, err
			}
		}
	}

	return &m, nil
}

func (r *PropertyRule) compile() error {
	fn, ok := transforms[r.Transform]
	if !ok {
		return fmt.Errorf("%w: %w: %q on %s", lens.ErrConfiguration, errUnknownTransform, r.Transform, r.Name)
	}

	r.fn = fn

	return nil
}

// Map builds the display properties for one device. Every configured name is
// present in the result; values the device did not report are NoneValue.
func (m *PropertyMapping) Map(raw map[string]string) map[string]string {
	out := make(map[string]string, len(m.Properties)+len(m.Groups)*4)

	for i := range m.Properties {
		rule := &m.Properties[i]
		out[rule.Name] = rule.fn(defaultValue(raw[rule.Source]))
	}

	for i := range m.Groups {
		m.Groups[i].expand(raw, out)
	}

	return out
}

func (g *GroupRule) expand(raw, out map[string]string) {
	n := listLength(raw, g.Source)

	if n == 0 {
		for _, f := range g.Fields {
			out[g.Name+groupSeparator+f.Name] = NoneValue
		}

		return
	}

	for i := 0; i < n; i++ {
		group := g.Name + orderSuffix(i, n) + groupSeparator
		base := g.Source + "." + strconv.Itoa(i) + "."

		for j := range g.Fields {
			f := &g.Fields[j]
			out[group+f.Name] = f.fn(defaultValue(raw[base+f.Source]))
		}
	}
}

// listLength recovers the length of a flattened list of objects from its
// indexed keys ("connections.2.name" means at least three entries).
func listLength(raw map[string]string, source string) int {
	prefix := source + "."
	n := 0

	for key := range raw {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		rest := key[len(prefix):]
		if dot := strings.IndexByte(rest, '.'); dot >= 0 {
			rest = rest[:dot]
		}

		idx, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}

		if idx+1 > n {
			n = idx + 1
		}
	}

	return n
}

func orderSuffix(i, n int) string {
	if n == 1 {
		return ""
	}

	return fmt.Sprintf("%02d", i+1)
}

func defaultValue(v string) string {
	if v == "" || v == emptyList || v == nullValue {
		return NoneValue
	}

	return v
}

func identity(v string) string { return v }

func capitalize(v string) string {
	r, size := utf8.DecodeRuneInString(v)
	if r == utf8.RuneError {
		return v
	}

	return string(unicode.ToUpper(r)) + v[size:]
}

func statusText(v string) string {
	return capitalize(strings.ReplaceAll(v, "_", " "))
}

func formatDateTime(v string) string {
	if v == NoneValue {
		return v
	}

	t, err := time.Parse(sourceTimeLayout, v)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return NoneValue
		}
	}

	return t.UTC().Format(displayTimeLayout)
}

// twoDecimals truncates, not rounds, to two decimal places.
func twoDecimals(v string) string {
	dot := strings.IndexByte(v, '.')
	if dot >= 0 && dot+3 < len(v) {
		return v[:dot+3]
	}

	return v
}

func orSentinel(v, sentinel string) string {
	if v == NoneValue {
		return sentinel
	}

	return v
}

// publish maps a cached device into its caller-facing form: display
// properties, the in-call flag and, for online devices, the reboot control.
func (m *PropertyMapping) publish(d *models.Device, now time.Time) models.Device {
	out := d.Clone()
	props := m.Map(d.Properties)

	out.InCall = strings.EqualFold(props[callStatusProperty], inCallStatus)
	out.Controls = nil

	if d.Online {
		props[ControlReboot] = ""
		out.Controls = []models.ControlProperty{{
			Name:         ControlReboot,
			Type:         models.ControlTypeButton,
			Label:        rebootLabel,
			LabelPressed: rebootLabelPressed,
			GracePeriod:  0,
			Timestamp:    now,
		}}
	}

	out.Properties = props

	return out
}
