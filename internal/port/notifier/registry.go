package notifier

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Factory builds a Notifier from provider-specific settings.
type Factory func(settings map[string]string) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a notifier factory available by name. Adapters call it from
// init(); a duplicate name panics.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("notifier: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a Notifier by provider name.
func New(name string, settings map[string]string) (Notifier, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("notifier: unknown provider %q", name)
	}
	return factory(settings)
}

// Build creates one Notifier per name, skipping duplicates. Channels that
// fail to build are left out and their errors joined, so a broken webhook
// never disables the others.
func Build(names []string, settings func(name string) map[string]string) ([]Notifier, error) {
	var (
		out  []Notifier
		errs []error
		seen = map[string]bool{}
	)
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		n, err := New(name, settings(name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, n)
	}
	return out, errors.Join(errs...)
}

// Available returns the registered provider names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
