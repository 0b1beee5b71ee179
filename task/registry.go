package task

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hugolhafner/go-tasks/storage"
)

// Factory creates a fresh Task for one (task, partition) instance.
type Factory func() Task

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

var defaultRegistry = NewRegistry()

// Default returns the process wide registry used by Register and Lookup.
func Default() *Registry {
	return defaultRegistry
}

// ValidateName reports whether name can identify a task. Names end up in blob names,
// so they must not contain the instance separator or a path separator.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if strings.ContainsAny(name, storage.InstanceSeparator+`/\`) {
		return fmt.Errorf("task name %q must not contain %q or path separators", name, storage.InstanceSeparator)
	}
	return nil
}

func (r *Registry) Register(name string, f Factory) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("task %q: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("task %q already registered", name)
	}

	r.factories[name] = f
	return nil
}

func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("task %q not registered", name)
	}
	return f, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Register adds a task to the default registry and panics on conflict. Meant for init().
func Register(name string, f Factory) {
	if err := defaultRegistry.Register(name, f); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Factory, error) {
	return defaultRegistry.Lookup(name)
}
