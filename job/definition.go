package job

import "context"

// Definition pairs a job name with a handler over a concrete payload type.
// T must round-trip through JSON.
type Definition[T any] struct {
	Name    string
	Handler func(ctx context.Context, payload T) error

	// Opts carries the enqueue defaults for this job type (queue,
	// attempts, priority, timeout).
	Opts Options
}

// NewDefinition builds a Definition with DefaultOptions overridden by opts.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{Name: name, Handler: handler, Opts: DefaultOptions()}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
