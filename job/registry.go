package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc runs a job from its raw JSON payload. Typed definitions are
// lowered to this shape at registration time.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Registry is a concurrency-safe map from job name to handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// RegisterDefinition installs a typed definition under its name, replacing
// any previous handler for that name. The typed handler is wrapped so the
// payload is decoded into T first; an empty payload skips decoding and
// hands the handler T's zero value.
//
// A package-level function because methods cannot introduce type
// parameters.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = func(ctx context.Context, payload []byte) error {
		var arg T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &arg); err != nil {
				return fmt.Errorf("unmarshal payload for job %q: %w", def.Name, err)
			}
		}
		return def.Handler(ctx, arg)
	}
}

// Get looks up the handler for a job name.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names lists every registered job name, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
