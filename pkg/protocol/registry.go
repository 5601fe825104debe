package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/grvsrs/relaygate/pkg/logger"
)

// Registry is the process-wide catalog mapping protocol name to one live
// instance. Registration happens once at startup; there is no runtime
// re-registration or removal. Reads are concurrent-safe.
type Registry struct {
	protocols map[string]Protocol
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		protocols: make(map[string]Protocol),
	}
}

// Register inserts a protocol under its name. Duplicate names are rejected
// rather than overwritten.
func (r *Registry) Register(p Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.protocols[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrDuplicate)
	}
	r.protocols[name] = p
	logger.InfoCF("registry", "Registered protocol", map[string]interface{}{
		"name": name,
	})
	return nil
}

// Get retrieves a protocol by name.
func (r *Registry) Get(name string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[name]
	return p, ok
}

// List returns a copy of the full catalog. Callers treat it as read-only.
func (r *Registry) List() map[string]Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Protocol, len(r.protocols))
	for name, p := range r.protocols {
		out[name] = p
	}
	return out
}

// Names returns all registered protocol names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.protocols))
	for name := range r.protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll stops every running protocol. Used at process shutdown; stop
// failures are logged, not propagated, so one bad channel cannot block the
// rest from tearing down.
func (r *Registry) StopAll(ctx context.Context) {
	for name, p := range r.List() {
		if !p.Running() {
			continue
		}
		if err := p.Stop(ctx); err != nil {
			logger.ErrorCF("registry", "Failed to stop protocol", map[string]interface{}{
				"name":  name,
				"error": err.Error(),
			})
		}
	}
}
