// Package secrets holds provider API keys and host tokens in memory and
// allows them to be rotated without restarting the service.
package secrets

import (
	"fmt"
	"sync"
)

// Well-known secret names.
const (
	OpenAIAPIKey    = "OPENAI_API_KEY"
	AnthropicAPIKey = "ANTHROPIC_API_KEY"
	GitHubToken     = "GITHUB_TOKEN"
)

// Names lists every secret the service reads.
var Names = []string{OpenAIAPIKey, AnthropicAPIKey, GitHubToken}

// Loader retrieves secrets from a source.
type Loader func() (map[string]string, error)

// Vault is a read-mostly secret store whose contents are swapped atomically on Reload.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault and performs the initial load.
func NewVault(loader Loader) (*Vault, error) {
	v := &Vault{loader: loader}
	if err := v.Reload(); err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return v, nil
}

// Static returns a Vault over a fixed map. Used by tests and one-shot commands.
func Static(values map[string]string) *Vault {
	cp := make(map[string]string, len(values))
	for k, val := range values {
		cp[k] = val
	}
	return &Vault{values: cp, loader: func() (map[string]string, error) { return cp, nil }}
}

// Get returns the secret for key, or "" when unset.
func (v *Vault) Get(key string) string {
	if v == nil {
		return ""
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Has reports whether key holds a non-empty value.
func (v *Vault) Has(key string) bool {
	return v.Get(key) != ""
}

// Reload calls the loader and replaces all values. On error the current
// values are kept.
func (v *Vault) Reload() error {
	vals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = vals
	v.mu.Unlock()
	return nil
}
