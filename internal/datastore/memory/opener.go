// Package memory provides an in-memory store opener for the demo environment
// and for tests. Connections hold no real resources but honor the full
// open/ping/close lifecycle, including injectable open failures.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dealerdesk/internal/datastore"
	"dealerdesk/internal/sentinel"
	"dealerdesk/pkg/domain"
)

// Conn is an in-memory stand-in for a store connection.
type Conn struct {
	tenantID domain.TenantID
	shared   bool
	closed   atomic.Bool
}

// TenantID returns the tenant this connection is bound to (nil for shared).
func (c *Conn) TenantID() domain.TenantID { return c.tenantID }

// Shared reports whether this is the main-database connection.
func (c *Conn) Shared() bool { return c.shared }

// Closed reports whether the manager has closed this connection.
func (c *Conn) Closed() bool { return c.closed.Load() }

func (c *Conn) Ping(_ context.Context) error {
	if c.closed.Load() {
		return sentinel.ErrClosed
	}
	return nil
}

func (c *Conn) Close(_ context.Context) error {
	if c.closed.Swap(true) {
		return fmt.Errorf("connection already closed: %w", sentinel.ErrClosed)
	}
	return nil
}

// Opener hands out in-memory connections. Tests can inject per-tenant open
// failures and simulated handshake latency.
type Opener struct {
	mu    sync.Mutex
	opens map[string]int
	fail  map[string]error
	delay time.Duration
}

// NewOpener creates an in-memory opener.
func NewOpener() *Opener {
	return &Opener{
		opens: make(map[string]int),
		fail:  make(map[string]error),
	}
}

// FailTenant makes subsequent opens for the tenant return err.
func (o *Opener) FailTenant(tenantID domain.TenantID, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail[tenantID.String()] = err
}

// RestoreTenant clears a previously injected failure.
func (o *Opener) RestoreTenant(tenantID domain.TenantID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.fail, tenantID.String())
}

// SetDelay simulates connection handshake latency on every open.
func (o *Opener) SetDelay(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delay = d
}

// OpenCount returns how many connections were opened for the tenant.
func (o *Opener) OpenCount(tenantID domain.TenantID) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[tenantID.String()]
}

func (o *Opener) OpenShared(_ context.Context) (datastore.Conn, error) {
	return &Conn{shared: true}, nil
}

func (o *Opener) OpenTenant(ctx context.Context, tenantID domain.TenantID) (datastore.Conn, error) {
	o.mu.Lock()
	failErr := o.fail[tenantID.String()]
	delay := o.delay
	o.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}

	o.mu.Lock()
	o.opens[tenantID.String()]++
	o.mu.Unlock()

	return &Conn{tenantID: tenantID}, nil
}

var _ datastore.Opener = (*Opener)(nil)
