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

import "errors"

var (
	// ErrUnknownDevice is returned by ExecuteControl for an id that is not cached.
	ErrUnknownDevice = errors.New("device does not exist")
	// ErrUnsupportedControl is returned by ExecuteControl for any action other than a reboot.
	ErrUnsupportedControl = errors.New("control is not supported")
)

var (
	errMissingCredentials = errors.New("client id and client secret are required")
	errUnknownTransform   = errors.New("unknown property transform")
	errEmptyMapping       = errors.New("property mapping is empty")
	errDuplicateProperty  = errors.New("duplicate property name in mapping")
)
