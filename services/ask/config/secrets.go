// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// Secret names.
const (
	SecretOpenAIKey    = "openai_api_key"
	SecretAnthropicKey = "anthropic_api_key"
	SecretSlackToken   = "slack_token"
	SecretTypesenseKey = "typesense_api_key"
	SecretMCPKey       = "mcp_api_key"
	SecretFathomKey    = "fathom_api_key"
	SecretWeaviateKey  = "weaviate_api_key"
)

// secretEnv maps secret names to the environment variables they are read from.
var secretEnv = map[string][]string{
	SecretOpenAIKey:    {"OPENAI_API_KEY"},
	SecretAnthropicKey: {"ANTHROPIC_API_KEY"},
	SecretSlackToken:   {"SLACK_USER_TOKEN", "SLACK_API_KEY"},
	SecretTypesenseKey: {"TYPESENSE_API_KEY"},
	SecretMCPKey:       {"OMNI_API_KEY", "MCP_API_KEY"},
	SecretFathomKey:    {"FATHOM_API_KEY"},
	SecretWeaviateKey:  {"WEAVIATE_API_KEY"},
}

// SecretStore keeps credentials sealed in memguard enclaves. A value is only
// decrypted inside With.
//
// # Thread Safety
//
// Safe for concurrent use.
type SecretStore struct {
	mu       sync.RWMutex
	enclaves map[string]*memguard.Enclave
}

// NewSecretStore returns an empty store.
func NewSecretStore() *SecretStore {
	return &SecretStore{enclaves: make(map[string]*memguard.Enclave)}
}

// LoadSecrets seals every known secret found in the environment. For secrets
// with several variable names the first non-empty one wins.
func LoadSecrets(lookup LookupFunc) *SecretStore {
	s := NewSecretStore()
	for name, keys := range secretEnv {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				s.Set(name, v)
				break
			}
		}
	}
	return s
}

// Set seals value under name, replacing any previous value. An empty value
// removes the secret.
func (s *SecretStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.enclaves, name)
		return
	}
	// NewEnclave wipes its input, so hand it a private copy.
	s.enclaves[name] = memguard.NewEnclave([]byte(value))
}

// Has reports whether name is set.
func (s *SecretStore) Has(name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enclaves[name] != nil
}

// With opens the secret name, passes it to fn and destroys the plaintext
// buffer when fn returns. fn must not retain the string.
func (s *SecretStore) With(name string, fn func(value string) error) error {
	if s == nil {
		return fmt.Errorf("config: secret %s not set", name)
	}
	s.mu.RLock()
	enc := s.enclaves[name]
	s.mu.RUnlock()
	if enc == nil {
		return fmt.Errorf("config: secret %s not set", name)
	}
	buf, err := enc.Open()
	if err != nil {
		return fmt.Errorf("config: open secret %s: %w", name, err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// Reveal returns a plaintext copy of name, or "" when unset. Use it only for
// clients that keep the credential for their whole lifetime.
func (s *SecretStore) Reveal(name string) string {
	var out string
	_ = s.With(name, func(v string) error {
		out = string([]byte(v))
		return nil
	})
	return out
}
