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
	"sync"
	"time"
)

// TokenSafetyMargin is subtracted from the provider-declared lifetime so a
// token is never used close to its real expiry.
const TokenSafetyMargin = 30 * time.Minute

// CredentialBroker wraps a TokenExchanger and caches the access token until
// its lifetime minus TokenSafetyMargin has passed.
type CredentialBroker struct {
	exchanger TokenExchanger
	now       func() time.Time

	mu    sync.RWMutex
	token Token
}

// BrokerOption configures a CredentialBroker.
type BrokerOption func(*CredentialBroker)

// WithNow replaces the broker's time source.
func WithNow(now func() time.Time) BrokerOption {
	return func(b *CredentialBroker) {
		b.now = now
	}
}

// NewCredentialBroker creates a broker that refreshes lazily through exchanger.
func NewCredentialBroker(exchanger TokenExchanger, opts ...BrokerOption) *CredentialBroker {
	b := &CredentialBroker{
		exchanger: exchanger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// EnsureToken returns the held token if still valid, otherwise exchanges the
// credentials for a new one. Failures are returned as-is and never retried here.
func (b *CredentialBroker) EnsureToken(ctx context.Context) (Token, error) {
	b.mu.RLock()
	if b.token.Valid(b.now()) {
		token := b.token
		b.mu.RUnlock()

		return token, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if b.token.Valid(b.now()) {
		return b.token, nil
	}

	resp, err := b.exchanger.ExchangeToken(ctx)
	if err != nil {
		return Token{}, err
	}

	b.token = Token{
		Value:    resp.AccessToken,
		IssuedAt: b.now(),
		TTL:      time.Duration(resp.ExpiresIn)*time.Second - TokenSafetyMargin,
	}

	return b.token, nil
}

// Invalidate drops the held token so the next EnsureToken refreshes.
func (b *CredentialBroker) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.token = Token{}
}
