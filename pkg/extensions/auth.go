// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrUnauthorized is returned by an AuthProvider when the presented
// credential is missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo describes the authenticated caller of a webhook request.
//
// # Fields
//
//   - Subject: Caller identity ("dialogflow", "local-user", ...).
//   - Roles: Granted roles. The webhook only checks that auth succeeded.
type AuthInfo struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the caller holds role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates the bearer token sent with each fulfillment
// request.
//
// # Description
//
// Dialogflow ES sends static headers configured on the fulfillment
// webhook. The service extracts the bearer token from the Authorization
// header and hands it to the provider.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate returns caller info, or ErrUnauthorized for a bad token.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// =============================================================================
// Implementations
// =============================================================================

// NopAuthProvider accepts every request. Used for local development and
// when no webhook secret is configured.
type NopAuthProvider struct{}

// Validate always succeeds.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		Subject: "local-user",
		Roles:   []string{"webhook"},
	}, nil
}

// TokenAuthProvider checks the bearer token against a shared secret.
//
// # Description
//
// The secret is sealed in a memguard Enclave so the plaintext only exists
// in locked memory for the duration of a comparison. Comparison is
// constant time.
//
// # Thread Safety
//
// Safe for concurrent use.
type TokenAuthProvider struct {
	mu      sync.Mutex
	enclave *memguard.Enclave
	subject string
}

// NewTokenAuthProvider seals secret and returns a provider that accepts only
// that token. The caller's secret slice is wiped.
func NewTokenAuthProvider(secret []byte, subject string) (*TokenAuthProvider, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token auth: empty secret")
	}
	if subject == "" {
		subject = "dialogflow"
	}
	return &TokenAuthProvider{
		enclave: memguard.NewEnclave(secret),
		subject: subject,
	}, nil
}

// Validate compares token with the sealed secret.
func (p *TokenAuthProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	p.mu.Lock()
	buf, err := p.enclave.Open()
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("token auth: open enclave: %w", err)
	}
	defer buf.Destroy()

	if subtle.ConstantTimeCompare(buf.Bytes(), []byte(token)) != 1 {
		return nil, ErrUnauthorized
	}
	return &AuthInfo{Subject: p.subject, Roles: []string{"webhook"}}, nil
}

var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*TokenAuthProvider)(nil)
)
