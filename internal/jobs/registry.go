package jobs

import "fmt"

// Factory reconstructs a job from its serialized parameters.
type Factory func(data Data) (Job, error)

// Registry maps factory keys to reconstruction functions. It replaces
// open-ended string-keyed polymorphism with a closed table populated at
// startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for the given key. Registering the same
// key twice panics; the table is assembled once during wiring.
func (r *Registry) Register(key string, factory Factory) {
	if _, exists := r.factories[key]; exists {
		panic(fmt.Sprintf("jobs: factory %q registered twice", key))
	}
	r.factories[key] = factory
}

// Rebuild reconstructs the job a record describes.
func (r *Registry) Rebuild(record *Record) (Job, error) {
	factory, ok := r.factories[record.FactoryKey]
	if !ok {
		return nil, fmt.Errorf("no factory registered for job kind %q", record.FactoryKey)
	}
	return factory(record.Data)
}
