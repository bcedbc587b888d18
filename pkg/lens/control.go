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

type rebootVariables struct {
	DeviceID string `json:"deviceId"`
}

// RebootDevice asks the API to reboot one device. A result with success=false
// is ErrControl carrying the provider's error text.
func (c *DefaultClient) RebootDevice(ctx context.Context, deviceID string, token Token) error {
	var data rebootData

	err := c.doGraphQL(ctx, token, graphQLRequest{
		Query:     rebootDeviceMutation,
		Variables: rebootVariables{DeviceID: deviceID},
	}, &data)
	if err != nil {
		return err
	}

	if data.RebootDevice == nil {
		return fmt.Errorf("%w: %w: rebootDevice", ErrProtocol, errMissingField)
	}

	if !data.RebootDevice.Success {
		reason := "no reason given"
		if data.RebootDevice.Error != nil && *data.RebootDevice.Error != "" {
			reason = *data.RebootDevice.Error
		}

		return fmt.Errorf("%w: %w: device %s: %s", ErrControl, errControlFailed, deviceID, reason)
	}

	c.Logger.Info().Str("device_id", deviceID).Msg("Reboot requested")

	return nil
}
