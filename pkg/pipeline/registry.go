package pipeline

import (
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/security"
)

// Factory creates a fresh Trainer for one run.
type Factory func() Trainer

// Registry maps template names to trainer factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in trainers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("TCN", func() Trainer { return NewSequenceTrainer("TCN", BuildTCN) })
	r.MustRegister("MLP", func() Trainer { return NewSequenceTrainer("MLP", BuildMLP) })
	return r
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) error {
	if err := security.ValidateTemplateName(name); err != nil {
		return err
	}
	if f == nil {
		return errors.Newf("trainer factory for %s is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup returns a new trainer for name. Unknown names are configuration errors.
func (r *Registry) Lookup(name string) (Trainer, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.AsConfigError(errors.WithHint(
			errors.Newf("unsupported model template: %s", name),
			"trainers are available for: "+strings.Join(r.Names(), ", ")))
	}
	return f(), nil
}

// Names returns the registered template names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
