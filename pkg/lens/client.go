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
	"strings"
	"time"

	"github.com/carverauto/lens-sync/pkg/logger"
	"golang.org/x/time/rate"
)

const maxLoggedBody = 512

// DefaultClient is the HTTP implementation of TokenExchanger, PageFetcher,
// SummaryFetcher and Controller.
type DefaultClient struct {
	Config     *Config
	HTTPClient HTTPClient
	// Limiter throttles GraphQL requests to stay inside the query budget. Nil means unlimited.
	Limiter *rate.Limiter
	Logger  logger.Logger
}

// NewDefaultClient builds a client with an http.Client bounded by cfg.Timeout.
func NewDefaultClient(cfg *Config, log logger.Logger) *DefaultClient {
	if log == nil {
		log = logger.NewTestLogger()
	}

	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &DefaultClient{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     log,
	}

	if cfg.RequestsPerSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return c
}

// doGraphQL posts one GraphQL document and decodes its data member into out.
// Network and HTTP status failures are ErrTransport; a body that is not a
// GraphQL response is ErrProtocol. A 401 or 403 additionally matches ErrAuthentication.
func (c *DefaultClient) doGraphQL(ctx context.Context, token Token, body graphQLRequest, out interface{}) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", ErrTransport, err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", ErrTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %w: %w: %d", ErrTransport, ErrAuthentication, errUnexpectedStatusCode, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %w: %d, response: %s", ErrTransport, errUnexpectedStatusCode,
			resp.StatusCode, truncate(bodyBytes))
	}

	var envelope graphQLResponse

	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("%w: failed to parse response: %w", ErrProtocol, err)
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		if len(envelope.Errors) > 0 {
			return fmt.Errorf("%w: %w: %s", ErrProtocol, errGraphQL, joinErrors(envelope.Errors))
		}

		return fmt.Errorf("%w: %w: data", ErrProtocol, errMissingField)
	}

	if len(envelope.Errors) > 0 {
		c.Logger.Warn().Str("errors", joinErrors(envelope.Errors)).Msg("GraphQL response carried partial errors")
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: failed to decode data: %w", ErrProtocol, err)
	}

	return nil
}

func joinErrors(errs []graphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}

	return strings.Join(msgs, "; ")
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}

	return string(b)
}
