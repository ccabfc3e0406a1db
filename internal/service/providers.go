package service

import (
	"fmt"
	"slices"

	"github.com/Strob0t/CodeTutor/internal/config"
	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/port/llm"
	"github.com/Strob0t/CodeTutor/internal/secrets"
)

// CompleterSource yields the TextCompleter a new task should use.
type CompleterSource interface {
	Completer() (llm.TextCompleter, error)
}

// ProviderStatus is reported by the health endpoint.
type ProviderStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Active     bool   `json:"active"`
}

// Providers selects a registered LLM provider from configuration and the
// secrets vault. Keys are read on every call, so a vault reload takes
// effect for the next task.
type Providers struct {
	cfg   config.LLM
	vault *secrets.Vault
}

// NewProviders creates a Providers.
func NewProviders(cfg config.LLM, vault *secrets.Vault) *Providers {
	return &Providers{cfg: cfg, vault: vault}
}

// Completer builds a TextCompleter for the configured provider, or for the
// first registered provider with a key when none is configured.
func (p *Providers) Completer() (llm.TextCompleter, error) {
	prov, err := p.active()
	if err != nil {
		return nil, err
	}
	c, err := prov.New(llm.ProviderConfig{
		APIKey:  p.vault.Get(prov.SecretKey),
		Model:   p.cfg.Model,
		BaseURL: p.cfg.BaseURLs[prov.Name],
		Timeout: p.cfg.RequestTimeout,
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindLLMProviderError, err, fmt.Sprintf("could not initialise %s provider", prov.Name))
	}
	return c, nil
}

func (p *Providers) active() (llm.Provider, error) {
	if p.cfg.Provider != "" {
		prov, ok := llm.Lookup(p.cfg.Provider)
		if !ok {
			return llm.Provider{}, domain.Errorf(domain.KindNoAPIKeyConfigured, "LLM provider %q is not available", p.cfg.Provider)
		}
		if !p.vault.Has(prov.SecretKey) {
			return llm.Provider{}, domain.Errorf(domain.KindNoAPIKeyConfigured, "%s is not set", prov.SecretKey)
		}
		return prov, nil
	}
	for _, name := range llm.Available() {
		prov, _ := llm.Lookup(name)
		if p.vault.Has(prov.SecretKey) {
			return prov, nil
		}
	}
	return llm.Provider{}, domain.Errorf(domain.KindNoAPIKeyConfigured,
		"no LLM API key configured; set one of %s", p.keyNames())
}

func (p *Providers) keyNames() string {
	var keys []string
	for _, name := range llm.Available() {
		prov, _ := llm.Lookup(name)
		if !slices.Contains(keys, prov.SecretKey) {
			keys = append(keys, prov.SecretKey)
		}
	}
	if len(keys) == 0 {
		return "(no providers registered)"
	}
	return fmt.Sprint(keys)
}

// Status lists every registered provider, whether it has a key and which
// one new tasks will use.
func (p *Providers) Status() []ProviderStatus {
	active, err := p.active()
	var out []ProviderStatus
	for _, name := range llm.Available() {
		prov, _ := llm.Lookup(name)
		out = append(out, ProviderStatus{
			Name:       name,
			Configured: p.vault.Has(prov.SecretKey),
			Active:     err == nil && active.Name == name,
		})
	}
	return out
}
