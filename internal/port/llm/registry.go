package llm

import (
	"fmt"
	"slices"
	"sync"
)

// Factory builds a TextCompleter for one provider.
type Factory func(cfg ProviderConfig) (TextCompleter, error)

// Provider is a registered backend.
type Provider struct {
	Name string
	// SecretKey names the secret holding the provider's API key.
	SecretKey string
	New       Factory
}

var (
	mu        sync.RWMutex
	providers = make(map[string]Provider)
)

// Register makes a provider available by name. It is called from an init()
// function in the adapter package.
func Register(p Provider) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := providers[p.Name]; exists {
		panic(fmt.Sprintf("llm: duplicate registration for %q", p.Name))
	}
	providers[p.Name] = p
}

// Lookup returns the registered provider with the given name.
func Lookup(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := providers[name]
	return p, ok
}

// Available returns registered provider names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
