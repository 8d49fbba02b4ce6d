// Package entity classifies every data entity the platform stores as either
// globally shared or tenant-isolated. All downstream connection decisions are
// driven by this classification, so registration is explicit, checked once,
// and frozen before the first request is served.
package entity

import (
	"sort"
	"sync"

	dErrors "dealerdesk/pkg/domain-errors"
)

// Scope says which store an entity lives in.
type Scope string

const (
	// ScopeShared entities live in the main database visible to all tenants.
	ScopeShared Scope = "shared"
	// ScopeTenant entities live in a per-tenant isolated database.
	ScopeTenant Scope = "tenant"
)

// Descriptor is the immutable catalog record for one entity. Fields are
// unexported so handles can only be produced by the data-access core, never
// assembled ad hoc in a route handler.
type Descriptor struct {
	name  string
	scope Scope
	shape any
}

func (d Descriptor) Name() string { return d.name }
func (d Descriptor) Scope() Scope { return d.scope }

// Shape returns the opaque schema descriptor owned by the surrounding
// framework. The core never interprets it.
func (d Descriptor) Shape() any { return d.shape }

// Registry is the startup-time entity catalog. It freezes on first Resolve;
// any Register call after that is a configuration bug.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]Descriptor
	frozen   bool
	freeze   sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]Descriptor)}
}

// Register adds an entity to the catalog. Re-registering the same name with
// the same scope is a no-op; a different scope for an existing name is a fatal
// configuration error, since a misclassified entity is a cross-tenant leak.
func (r *Registry) Register(name string, scope Scope, shape any) error {
	if name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "entity name cannot be empty")
	}
	if scope != ScopeShared && scope != ScopeTenant {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown entity scope "+string(scope))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return dErrors.New(dErrors.CodeDuplicateEntity, "entity registry is frozen; register entities before serving requests")
	}
	if existing, ok := r.entities[name]; ok {
		if existing.scope == scope {
			return nil
		}
		return dErrors.New(dErrors.CodeDuplicateEntity,
			"entity "+name+" already registered with scope "+string(existing.scope))
	}

	r.entities[name] = Descriptor{name: name, scope: scope, shape: shape}
	return nil
}

// Resolve looks up an entity by name. The first call freezes the registry.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.freeze.Do(func() {
		r.mu.Lock()
		r.frozen = true
		r.mu.Unlock()
	})

	r.mu.RLock()
	d, ok := r.entities[name]
	r.mu.RUnlock()

	if !ok {
		return Descriptor{}, dErrors.New(dErrors.CodeUnknownEntity, "entity "+name+" is not registered")
	}
	return d, nil
}

// Names returns the sorted registered entity names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
