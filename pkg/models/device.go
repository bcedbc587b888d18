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

// Package models pkg/models/device.go
package models

import "time"

// Device is one fleet device as held by the cache and returned to callers.
type Device struct {
	ID           string            `json:"id"`
	Online       bool              `json:"online"`
	Model        string            `json:"model"`
	Name         string            `json:"name"`
	SerialNumber string            `json:"serial_number"`
	MACAddresses []string          `json:"mac_addresses,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`

	// Derived fields, filled in when a snapshot is published.
	InCall   bool              `json:"in_call"`
	Controls []ControlProperty `json:"controls,omitempty"`
}

// Clone returns a deep copy of the device. Callers may mutate the copy freely.
func (d *Device) Clone() Device {
	out := *d

	if d.MACAddresses != nil {
		out.MACAddresses = append([]string(nil), d.MACAddresses...)
	}

	if d.Properties != nil {
		out.Properties = make(map[string]string, len(d.Properties))
		for k, v := range d.Properties {
			out.Properties[k] = v
		}
	}

	if d.Controls != nil {
		out.Controls = append([]ControlProperty(nil), d.Controls...)
	}

	return out
}

// ControlType names the UI affordance backing a control.
type ControlType string

const (
	ControlTypeButton ControlType = "button"
)

// ControlProperty describes an action a caller may trigger on a device.
type ControlProperty struct {
	Name         string      `json:"name"`
	Type         ControlType `json:"type"`
	Label        string      `json:"label"`
	LabelPressed string      `json:"label_pressed"`
	GracePeriod  int64       `json:"grace_period"`
	Timestamp    time.Time   `json:"timestamp"`
	Value        string      `json:"value"`
}
