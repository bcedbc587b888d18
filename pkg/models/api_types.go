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

package models

// CORSConfig controls which browser origins may call the HTTP API.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	AllowCredentials bool     `json:"allow_credentials,omitempty" yaml:"allow_credentials,omitempty"`
}

// ErrorResponse represents an API error response.
// @Description Error information returned from the API.
type ErrorResponse struct {
	// Error message
	Message string `json:"message" example:"device does not exist"`
	// HTTP status code
	Status int `json:"status" example:"404"`
	// Request id echoed from the X-Request-ID header
	RequestID string `json:"request_id,omitempty"`
}

// FilterRequest replaces the device filters. Each field is a comma-separated list.
type FilterRequest struct {
	Models        string `json:"models"`
	Rooms         string `json:"rooms"`
	Sites         string `json:"sites"`
	ExcludedRooms string `json:"excluded_rooms"`
}

// ControlResponse acknowledges a control action.
type ControlResponse struct {
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
	Status   string `json:"status"`
}
