package datastore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"dealerdesk/internal/sentinel"
	"dealerdesk/pkg/domain"
	dErrors "dealerdesk/pkg/domain-errors"
)

// Config bounds the tenant connection cache.
type Config struct {
	// Capacity is the maximum number of cached tenant connections before
	// idle entries are evicted. Entries with in-flight requests never count
	// as evictable, so the cache can temporarily exceed Capacity when every
	// cached tenant is active.
	Capacity int
	// IdleTTL is how long an unreferenced connection may sit idle before the
	// periodic sweep closes it.
	IdleTTL time.Duration
	// SweepInterval is how often the idle sweep runs. Zero disables it.
	SweepInterval time.Duration
}

// DefaultConfig returns sensible defaults for the connection cache.
func DefaultConfig() Config {
	return Config{
		Capacity:      32,
		IdleTTL:       10 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// entry is the cached state for one tenant. Exactly zero or one entry exists
// per tenant at any time. The refcount and access stamp are atomics so the
// hot acquire/release path never takes the map's write lock.
type entry struct {
	tenantID   domain.TenantID
	conn       Conn
	refs       atomic.Int64
	lastAccess atomic.Int64 // unix nanos
	createdAt  time.Time
}

func (e *entry) touch() {
	e.lastAccess.Store(time.Now().UnixNano())
}

// Manager caches live tenant-scoped connections keyed by tenant ID.
//
// Invariants it maintains:
//   - at most one connection is ever opened per tenant at a time (single-flight),
//   - a connection with in-flight requests is never closed by eviction,
//   - a failed open leaves no cache entry behind.
type Manager struct {
	opener Opener
	logger *slog.Logger
	cfg    Config
	tracer trace.Tracer

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool

	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64

	done      chan struct{}
	sweeperWG sync.WaitGroup
}

// Stats is a read-only snapshot of the cache for health endpoints.
type Stats struct {
	CachedTenants  int     `json:"cached_tenants"`
	ActiveRequests int64   `json:"active_requests"`
	HitRate        float64 `json:"hit_rate"`
}

// NewManager creates a connection manager and starts its idle sweeper.
func NewManager(opener Opener, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	m := &Manager{
		opener:  opener,
		logger:  logger,
		cfg:     cfg,
		tracer:  otel.Tracer("dealerdesk/datastore"),
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 && cfg.IdleTTL > 0 {
		m.sweeperWG.Add(1)
		go m.sweepLoop()
	}
	return m
}

// Acquire returns a live connection for the tenant, incrementing its
// reference count. Concurrent first acquires for an uncached tenant share one
// underlying open. A failed open is surfaced as tenant_connection_failed and
// caches nothing, so the next Acquire retries cleanly.
func (m *Manager) Acquire(ctx context.Context, tenantID domain.TenantID) (Conn, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant ID is required to acquire a connection")
	}
	key := tenantID.String()
	missed := false

	for {
		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			return nil, dErrors.Wrap(sentinel.ErrClosed, dErrors.CodeTenantConnectionFailed, "connection manager is shut down")
		}
		if e, ok := m.entries[key]; ok {
			// Incrementing under the read lock excludes eviction, which
			// needs the write lock to remove an entry.
			e.refs.Add(1)
			e.touch()
			m.mu.RUnlock()
			if !missed {
				m.hits.Add(1)
				cacheHits.Inc()
			}
			activeRequests.Inc()
			return e.conn, nil
		}
		m.mu.RUnlock()

		if !missed {
			missed = true
			m.misses.Add(1)
			cacheMisses.Inc()
		}

		if _, err, _ := m.group.Do(key, func() (any, error) {
			return nil, m.openAndCache(ctx, tenantID, key)
		}); err != nil {
			return nil, err
		}
		// Entry is cached now; loop back to take a reference. In the rare
		// case another sweep already evicted it, the loop re-creates it.
	}
}

// openAndCache opens the tenant connection and inserts the cache entry.
// Runs at most once per tenant at a time (single-flight).
func (m *Manager) openAndCache(ctx context.Context, tenantID domain.TenantID, key string) error {
	ctx, span := m.tracer.Start(ctx, "datastore.open_tenant",
		trace.WithAttributes(attribute.String("tenant.id", key)))
	conn, err := m.opener.OpenTenant(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		openFailures.Inc()
		m.logger.Error("failed to open tenant store connection",
			"tenant_id", key,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeTenantConnectionFailed, "tenant data store unreachable")
	}
	span.End()
	connectionsOpened.Inc()

	e := &entry{tenantID: tenantID, conn: conn, createdAt: time.Now()}
	e.touch()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.closeConn(conn, key)
		return dErrors.Wrap(sentinel.ErrClosed, dErrors.CodeTenantConnectionFailed, "connection manager is shut down")
	}
	if _, exists := m.entries[key]; exists {
		// Single-flight should prevent this; guard anyway so we never leak
		// a second connection for the same tenant.
		m.mu.Unlock()
		m.closeConn(conn, key)
		return nil
	}
	m.entries[key] = e
	victims := m.evictLocked(key)
	openConnections.Set(float64(len(m.entries)))
	m.mu.Unlock()

	m.closeVictims(victims)
	return nil
}

// Release decrements the tenant's reference count. An unmatched release is a
// caller bug: it is logged and ignored, and never drives the counter negative.
func (m *Manager) Release(tenantID domain.TenantID) {
	key := tenantID.String()

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.logger.Warn("release for tenant with no cached connection", "tenant_id", key)
		return
	}

	for {
		cur := e.refs.Load()
		if cur == 0 {
			m.logger.Warn("release without matching acquire", "tenant_id", key)
			return
		}
		if e.refs.CompareAndSwap(cur, cur-1) {
			e.touch()
			activeRequests.Dec()
			return
		}
	}
}

// Stats returns a read-only snapshot of the cache.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	cached := len(m.entries)
	var active int64
	for _, e := range m.entries {
		active += e.refs.Load()
	}
	m.mu.RUnlock()

	hits := m.hits.Load()
	misses := m.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		CachedTenants:  cached,
		ActiveRequests: active,
		HitRate:        hitRate,
	}
}

// Close stops the sweeper and closes every cached connection. Connections
// with in-flight requests are closed too: Close is shutdown-only and must not
// be called while the request pipeline is still running.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	victims := make([]*entry, 0, len(m.entries))
	for key, e := range m.entries {
		if refs := e.refs.Load(); refs > 0 {
			m.logger.Warn("closing tenant connection with in-flight requests",
				"tenant_id", key,
				"active_requests", refs,
			)
		}
		victims = append(victims, e)
		delete(m.entries, key)
	}
	openConnections.Set(0)
	m.mu.Unlock()

	close(m.done)
	m.sweeperWG.Wait()

	for _, e := range victims {
		if err := e.conn.Close(ctx); err != nil {
			m.logger.Warn("failed to close tenant connection on shutdown",
				"tenant_id", e.tenantID.String(),
				"error", err,
			)
		}
	}
}

// evictLocked removes least-recently-accessed idle entries until the cache is
// back under capacity. Entries with active requests are never candidates,
// regardless of age. The protected key (the entry just inserted) is skipped so
// a fresh connection cannot be evicted before its acquirer takes a reference.
// Caller must hold the write lock; returned victims are closed by the caller
// after unlocking.
func (m *Manager) evictLocked(protect string) []*entry {
	var victims []*entry
	for len(m.entries) > m.cfg.Capacity {
		var (
			oldestKey string
			oldest    *entry
		)
		for key, e := range m.entries {
			if key == protect || e.refs.Load() > 0 {
				continue
			}
			if oldest == nil || e.lastAccess.Load() < oldest.lastAccess.Load() {
				oldestKey, oldest = key, e
			}
		}
		if oldest == nil {
			// Everything left is in use; capacity is a soft bound here.
			break
		}
		delete(m.entries, oldestKey)
		victims = append(victims, oldest)
		evictions.Inc()
	}
	return victims
}

// sweepLoop periodically closes idle connections older than IdleTTL.
func (m *Manager) sweepLoop() {
	defer m.sweeperWG.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle removes every zero-refcount entry idle for longer than IdleTTL.
func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTTL).UnixNano()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var victims []*entry
	for key, e := range m.entries {
		if e.refs.Load() == 0 && e.lastAccess.Load() < cutoff {
			delete(m.entries, key)
			victims = append(victims, e)
			evictions.Inc()
		}
	}
	openConnections.Set(float64(len(m.entries)))
	m.mu.Unlock()

	m.closeVictims(victims)
}

func (m *Manager) closeVictims(victims []*entry) {
	for _, e := range victims {
		m.closeConn(e.conn, e.tenantID.String())
	}
}

func (m *Manager) closeConn(conn Conn, tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		m.logger.Warn("failed to close evicted tenant connection",
			"tenant_id", tenantID,
			"error", err,
		)
	}
}
