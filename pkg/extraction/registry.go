package extraction

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/logger"
)

// Registry maps entity names to descriptors.
type Registry struct {
	descriptors map[string]*Descriptor
	mu          sync.RWMutex
	logger      *zap.Logger
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		logger:      logger.Get().With(zap.String("component", "descriptor_registry")),
	}
}

// Register adds d. Names are unique.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return errors.New(errors.ErrorTypeConfig, "descriptor is required")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[d.Name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "descriptor %s already registered", d.Name)
	}
	r.descriptors[d.Name] = d
	r.logger.Debug("registered descriptor",
		zap.String("entity", d.Name),
		zap.String("endpoint", d.Endpoint))
	return nil
}

// Get returns the descriptor registered as name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown entity: %s", name)
	}
	return d, nil
}

// Names lists registered entity names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds d to the global registry.
func Register(d *Descriptor) error {
	return globalRegistry.Register(d)
}

// MustRegister adds d to the global registry and panics on error. It is
// meant for package init functions.
func MustRegister(d *Descriptor) {
	if err := Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns a descriptor from the global registry.
func Lookup(name string) (*Descriptor, error) {
	return globalRegistry.Get(name)
}

// Names lists the entities in the global registry.
func Names() []string {
	return globalRegistry.Names()
}
