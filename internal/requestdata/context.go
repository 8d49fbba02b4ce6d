// Package requestdata is the request-scoped façade over the data-access core.
// Business code asks it for entities by name; it consults the entity registry
// for scope and the connection manager for the tenant connection, and
// guarantees the connection reference is released exactly once per request.
package requestdata

import (
	"context"
	"log/slog"
	"sync"

	"dealerdesk/internal/datastore"
	"dealerdesk/internal/entity"
	"dealerdesk/pkg/domain"
	dErrors "dealerdesk/pkg/domain-errors"
)

// Handle binds an entity descriptor to the live connection its data lives on.
// Only this package can construct one, so a tenant-scoped entity can never be
// opened outside a tenant-checked request context.
type Handle struct {
	desc entity.Descriptor
	conn datastore.Conn
}

// Descriptor returns the entity's catalog record.
func (h Handle) Descriptor() entity.Descriptor { return h.desc }

// Conn returns the connection the entity must be read and written through.
func (h Handle) Conn() datastore.Conn { return h.conn }

// Context resolves entities for one in-flight request. It is owned by that
// request's pipeline, which must call Release exactly once when the request
// ends, on every outcome.
type Context struct {
	registry *entity.Registry
	manager  *datastore.Manager
	shared   datastore.Conn
	tenantID domain.TenantID
	logger   *slog.Logger

	mu         sync.Mutex
	tenantConn datastore.Conn
	released   bool
}

// Resolve returns a usable handle for the named entity. Shared entities bind
// to the process-wide main connection; tenant entities require a tenant on the
// request and acquire (once) the tenant's connection from the manager.
func (c *Context) Resolve(ctx context.Context, name string) (Handle, error) {
	desc, err := c.registry.Resolve(name)
	if err != nil {
		return Handle{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return Handle{}, dErrors.New(dErrors.CodeContextAlreadyReleased,
			"request data context already released; entity "+name+" resolved after request end")
	}

	if desc.Scope() == entity.ScopeShared {
		return Handle{desc: desc, conn: c.shared}, nil
	}

	if c.tenantID.IsNil() {
		// Loud log: this is the primary defense against a tenant-scoped
		// entity being read without isolation.
		c.logger.Error("tenant-scoped entity resolved without tenant context",
			"entity", name,
		)
		return Handle{}, dErrors.New(dErrors.CodeTenantContextRequired,
			"entity "+name+" is tenant-scoped and the request has no tenant")
	}

	if c.tenantConn == nil {
		conn, err := c.manager.Acquire(ctx, c.tenantID)
		if err != nil {
			return Handle{}, err
		}
		c.tenantConn = conn
	}
	return Handle{desc: desc, conn: c.tenantConn}, nil
}

// TenantID returns the tenant this context is bound to (nil when shared-only).
func (c *Context) TenantID() domain.TenantID { return c.tenantID }

// Release returns the tenant connection reference, if one was acquired.
// Idempotent: only the first call decrements the manager's counter. Safe to
// call when Resolve was never invoked.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return
	}
	c.released = true

	if c.tenantConn != nil {
		c.manager.Release(c.tenantID)
		c.tenantConn = nil
	}
}

// Factory builds a Context per request from the process-wide pieces.
type Factory struct {
	registry *entity.Registry
	manager  *datastore.Manager
	shared   datastore.Conn
	logger   *slog.Logger
}

// NewFactory wires the registry, manager, and shared connection once at startup.
func NewFactory(registry *entity.Registry, manager *datastore.Manager, shared datastore.Conn, logger *slog.Logger) *Factory {
	return &Factory{
		registry: registry,
		manager:  manager,
		shared:   shared,
		logger:   logger,
	}
}

// NewContext creates the data context for one request. A nil tenant ID marks
// a shared-only request (e.g. platform administration).
func (f *Factory) NewContext(tenantID domain.TenantID) *Context {
	return &Context{
		registry: f.registry,
		manager:  f.manager,
		shared:   f.shared,
		tenantID: tenantID,
		logger:   f.logger,
	}
}
