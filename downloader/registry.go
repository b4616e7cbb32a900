package downloader

import (
	"fmt"
	"sync"
)

// Registry holds the registered platforms and dispatches URLs to the one
// that recognizes them. Registration order decides match precedence.
type Registry struct {
	mu     sync.RWMutex
	order  []Platform
	byName map[string]Platform
}

// NewRegistry creates an empty platform registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Platform)}
}

// Register adds a platform. Registering the same name twice is a
// programming error and panics.
func (r *Registry) Register(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, dup := r.byName[name]; dup {
		panic(fmt.Sprintf("downloader: Register called twice for platform %q", name))
	}
	r.byName[name] = p
	r.order = append(r.order, p)
}

// Get returns a platform by its stable name
func (r *Registry) Get(name string) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Match asks each platform in registration order to parse the URL and
// returns the first hit. (nil, nil) means no platform supports the link.
func (r *Registry) Match(raw string) (Platform, *ParsedURL) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.order {
		if parsed := p.ParseURL(raw); parsed != nil {
			return p, parsed
		}
	}
	return nil, nil
}

// Platforms returns the registered platforms in registration order
func (r *Registry) Platforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, len(r.order))
	copy(out, r.order)
	return out
}
