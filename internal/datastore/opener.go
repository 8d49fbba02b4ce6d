// Package datastore owns the lifecycle of tenant-scoped store connections:
// lazy single-flight creation, reference counting, and LRU/idle eviction.
// Business code never touches it directly; it goes through requestdata.
package datastore

import (
	"context"

	"dealerdesk/pkg/domain"
)

//go:generate mockgen -source=opener.go -destination=mocks/mocks.go -package=mocks Opener,Conn

// Conn is a live connection to one store (the shared main database or one
// tenant's isolated database). Implementations are provided by store adapters
// (mongomulti for production, memory for tests and local runs).
type Conn interface {
	// Ping verifies the connection is still usable.
	Ping(ctx context.Context) error
	// Close releases the underlying connection. Only the manager calls this.
	Close(ctx context.Context) error
}

// Opener knows how to open store connections. It is the manager's only
// dependency on a concrete database.
type Opener interface {
	// OpenShared opens the process-wide main database connection.
	OpenShared(ctx context.Context) (Conn, error)
	// OpenTenant opens a connection to the given tenant's isolated database.
	OpenTenant(ctx context.Context, tenantID domain.TenantID) (Conn, error)
}
