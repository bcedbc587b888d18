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

// Package lens pkg/lens/errors.go
package lens

import "errors"

// Error kinds returned by this package. Callers classify with errors.Is.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrAuthentication = errors.New("authentication error")
	ErrTransport      = errors.New("transport error")
	ErrProtocol       = errors.New("protocol error")
	ErrControl        = errors.New("control error")
)

var (
	errUnexpectedStatusCode = errors.New("unexpected status code")
	errMissingCredentials   = errors.New("client id and client secret are required")
	errMissingEndpoint      = errors.New("endpoint is required")
	errMissingTokenURL      = errors.New("token_url is required")
	errInvalidPageSize      = errors.New("page_size must be positive")
	errInvalidInterval      = errors.New("polling_interval_minutes must not be negative")
	errMissingField         = errors.New("response is missing an expected field")
	errGraphQL              = errors.New("graphql request returned errors")
	errControlFailed        = errors.New("device rejected the control request")
)
