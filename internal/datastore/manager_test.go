package datastore_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dealerdesk/internal/datastore"
	"dealerdesk/internal/datastore/memory"
	"dealerdesk/internal/datastore/mocks"
	"dealerdesk/pkg/domain"
	dErrors "dealerdesk/pkg/domain-errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTenantID(t *testing.T) domain.TenantID {
	t.Helper()
	return domain.TenantID(uuid.New())
}

// noSweep disables the background sweeper so tests control eviction timing.
func noSweep(capacity int) datastore.Config {
	return datastore.Config{Capacity: capacity}
}

func TestAcquire_ReusesCachedConnection(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, noSweep(8), testLogger())
	defer m.Close(context.Background())

	tenant := newTenantID(t)

	c1, err := m.Acquire(context.Background(), tenant)
	require.NoError(t, err)
	c2, err := m.Acquire(context.Background(), tenant)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, opener.OpenCount(tenant))

	stats := m.Stats()
	assert.Equal(t, 1, stats.CachedTenants)
	assert.Equal(t, int64(2), stats.ActiveRequests)

	m.Release(tenant)
	m.Release(tenant)
	assert.Equal(t, int64(0), m.Stats().ActiveRequests)
}

func TestAcquire_NilTenantFails(t *testing.T) {
	m := datastore.NewManager(memory.NewOpener(), noSweep(8), testLogger())
	defer m.Close(context.Background())

	_, err := m.Acquire(context.Background(), domain.TenantID{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestAcquire_SingleFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	opener := mocks.NewMockOpener(ctrl)
	conn := mocks.NewMockConn(ctrl)
	conn.EXPECT().Close(gomock.Any()).Return(nil)

	// Exactly one physical open, no matter how many concurrent acquirers.
	opener.EXPECT().
		OpenTenant(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.TenantID) (datastore.Conn, error) {
			time.Sleep(20 * time.Millisecond) // widen the race window
			return conn, nil
		}).
		Times(1)

	m := datastore.NewManager(opener, noSweep(8), testLogger())
	defer m.Close(context.Background())

	tenant := newTenantID(t)
	const concurrency = 32

	var wg sync.WaitGroup
	errs := make([]error, concurrency)
	for i := 0; i < concurrency; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Acquire(context.Background(), tenant)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(concurrency), m.Stats().ActiveRequests)

	for i := 0; i < concurrency; i++ {
		m.Release(tenant)
	}
	assert.Equal(t, int64(0), m.Stats().ActiveRequests)
}

func TestAcquire_OpenFailureLeavesNoEntry(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, noSweep(8), testLogger())
	defer m.Close(context.Background())

	tenant := newTenantID(t)
	opener.FailTenant(tenant, errors.New("connection refused"))

	_, err := m.Acquire(context.Background(), tenant)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantConnectionFailed))
	assert.Equal(t, 0, m.Stats().CachedTenants)

	// Store comes back: the next acquire retries cleanly.
	opener.RestoreTenant(tenant)

	_, err = m.Acquire(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, opener.OpenCount(tenant))
	assert.Equal(t, 1, m.Stats().CachedTenants)
	m.Release(tenant)
}

func TestRelease_UnmatchedNeverGoesNegative(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, noSweep(8), testLogger())
	defer m.Close(context.Background())

	tenant := newTenantID(t)

	// Release with no entry at all: warning no-op.
	m.Release(tenant)

	_, err := m.Acquire(context.Background(), tenant)
	require.NoError(t, err)

	m.Release(tenant)
	m.Release(tenant) // unmatched, floored at zero
	assert.Equal(t, int64(0), m.Stats().ActiveRequests)
}

func TestConcurrentAcquireRelease_CounterAccounting(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, noSweep(8), testLogger())
	defer m.Close(context.Background())

	tenant := newTenantID(t)
	const workers = 16
	const iterations = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if _, err := m.Acquire(context.Background(), tenant); err != nil {
					t.Error(err)
					return
				}
				stats := m.Stats()
				if stats.ActiveRequests < 1 {
					t.Errorf("active count %d while holding a reference", stats.ActiveRequests)
					return
				}
				m.Release(tenant)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), m.Stats().ActiveRequests)
	assert.Equal(t, 1, opener.OpenCount(tenant))
}

func TestEviction_NeverEvictsActiveEntries(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, noSweep(1), testLogger())
	defer m.Close(context.Background())

	tenantA := newTenantID(t)
	tenantB := newTenantID(t)
	tenantC := newTenantID(t)

	connA, err := m.Acquire(context.Background(), tenantA)
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), tenantB)
	require.NoError(t, err)

	// Both tenants are active: capacity 1 is exceeded but nothing is evictable.
	assert.Equal(t, 2, m.Stats().CachedTenants)
	assert.False(t, connA.(*memory.Conn).Closed())

	// Idle A, then force another overflow: only A may go.
	m.Release(tenantA)
	connC, err := m.Acquire(context.Background(), tenantC)
	require.NoError(t, err)

	assert.True(t, connA.(*memory.Conn).Closed())
	assert.False(t, connC.(*memory.Conn).Closed())
	assert.Equal(t, 2, m.Stats().CachedTenants)
}

func TestEviction_LeastRecentlyAccessedFirst(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, noSweep(2), testLogger())
	defer m.Close(context.Background())

	tenantA := newTenantID(t)
	tenantB := newTenantID(t)
	tenantC := newTenantID(t)

	connA, err := m.Acquire(context.Background(), tenantA)
	require.NoError(t, err)
	m.Release(tenantA)

	time.Sleep(time.Millisecond) // distinct access stamps

	connB, err := m.Acquire(context.Background(), tenantB)
	require.NoError(t, err)
	m.Release(tenantB)

	time.Sleep(time.Millisecond)

	// Third tenant overflows capacity 2: A is the LRU candidate, B stays.
	_, err = m.Acquire(context.Background(), tenantC)
	require.NoError(t, err)
	m.Release(tenantC)

	assert.True(t, connA.(*memory.Conn).Closed())
	assert.False(t, connB.(*memory.Conn).Closed())
	assert.Equal(t, 2, m.Stats().CachedTenants)

	// B is still served from cache.
	_, err = m.Acquire(context.Background(), tenantB)
	require.NoError(t, err)
	assert.Equal(t, 1, opener.OpenCount(tenantB))
	m.Release(tenantB)
}

func TestSweep_ClosesIdleConnections(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, datastore.Config{
		Capacity:      8,
		IdleTTL:       5 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	}, testLogger())
	defer m.Close(context.Background())

	tenant := newTenantID(t)
	conn, err := m.Acquire(context.Background(), tenant)
	require.NoError(t, err)
	m.Release(tenant)

	require.Eventually(t, func() bool {
		return m.Stats().CachedTenants == 0
	}, time.Second, 2*time.Millisecond)
	assert.True(t, conn.(*memory.Conn).Closed())
}

func TestSweep_SkipsActiveConnections(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, datastore.Config{
		Capacity:      8,
		IdleTTL:       time.Millisecond,
		SweepInterval: time.Millisecond,
	}, testLogger())
	defer m.Close(context.Background())

	tenant := newTenantID(t)
	conn, err := m.Acquire(context.Background(), tenant)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond) // several sweep cycles

	assert.False(t, conn.(*memory.Conn).Closed())
	assert.Equal(t, 1, m.Stats().CachedTenants)
	m.Release(tenant)
}

func TestStats_HitRate(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, noSweep(8), testLogger())
	defer m.Close(context.Background())

	tenant := newTenantID(t)

	_, err := m.Acquire(context.Background(), tenant) // miss
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), tenant) // hit
	require.NoError(t, err)

	assert.InDelta(t, 0.5, m.Stats().HitRate, 0.001)
	m.Release(tenant)
	m.Release(tenant)
}

func TestClose_ClosesEverythingAndRejectsAcquires(t *testing.T) {
	opener := memory.NewOpener()
	m := datastore.NewManager(opener, noSweep(8), testLogger())

	tenantA := newTenantID(t)
	tenantB := newTenantID(t)

	connA, err := m.Acquire(context.Background(), tenantA)
	require.NoError(t, err)
	connB, err := m.Acquire(context.Background(), tenantB)
	require.NoError(t, err)
	m.Release(tenantA)
	m.Release(tenantB)

	m.Close(context.Background())

	assert.True(t, connA.(*memory.Conn).Closed())
	assert.True(t, connB.(*memory.Conn).Closed())
	assert.Equal(t, 0, m.Stats().CachedTenants)

	_, err = m.Acquire(context.Background(), tenantA)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantConnectionFailed))
}
