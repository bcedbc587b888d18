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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	grantTypeClientCredentials = "client_credentials"
	minTokenResponseFields     = 2
)

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

// ExchangeToken obtains a new access token with the client credentials grant.
func (c *DefaultClient) ExchangeToken(ctx context.Context) (*AccessTokenResponse, error) {
	if !c.Config.HasCredentials() {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, errMissingCredentials)
	}

	payload, err := json.Marshal(tokenRequest{
		ClientID:     c.Config.ClientID,
		ClientSecret: c.Config.ClientSecret,
		GrantType:    grantTypeClientCredentials,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read token response: %w", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w: %d, response: %s", ErrAuthentication, errUnexpectedStatusCode,
			resp.StatusCode, truncate(bodyBytes))
	}

	// A rejected exchange comes back as a single error field.
	var fields map[string]json.RawMessage

	if err := json.Unmarshal(bodyBytes, &fields); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token response: %w", ErrAuthentication, err)
	}

	if len(fields) < minTokenResponseFields {
		return nil, fmt.Errorf("%w: token response has %d field(s): %s", ErrAuthentication, len(fields), truncate(bodyBytes))
	}

	var tokenResp AccessTokenResponse

	if err := json.Unmarshal(bodyBytes, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token response: %w", ErrAuthentication, err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: %w: access_token", ErrAuthentication, errMissingField)
	}

	return &tokenResp, nil
}
