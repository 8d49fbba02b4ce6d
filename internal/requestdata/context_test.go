package requestdata

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerdesk/internal/datastore"
	"dealerdesk/internal/datastore/memory"
	"dealerdesk/internal/entity"
	"dealerdesk/pkg/domain"
	dErrors "dealerdesk/pkg/domain-errors"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 2 * time.Millisecond
)

type fixture struct {
	opener  *memory.Opener
	manager *datastore.Manager
	shared  datastore.Conn
	factory *Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := entity.NewRegistry()
	require.NoError(t, entity.RegisterCatalog(registry))

	opener := memory.NewOpener()
	manager := datastore.NewManager(opener, datastore.Config{Capacity: 8}, logger)
	t.Cleanup(func() { manager.Close(context.Background()) })

	shared, err := opener.OpenShared(context.Background())
	require.NoError(t, err)

	return &fixture{
		opener:  opener,
		manager: manager,
		shared:  shared,
		factory: NewFactory(registry, manager, shared, logger),
	}
}

func TestResolve_SharedEntityNeedsNoTenant(t *testing.T) {
	f := newFixture(t)

	// Shared-only request: no tenant on the context at all.
	rc := f.factory.NewContext(domain.TenantID{})
	defer rc.Release()

	h, err := rc.Resolve(context.Background(), "MasterAdmin")
	require.NoError(t, err)
	assert.Equal(t, entity.ScopeShared, h.Descriptor().Scope())
	assert.Same(t, f.shared, h.Conn())

	// No tenant connection was created.
	assert.Equal(t, 0, f.manager.Stats().CachedTenants)
}

func TestResolve_TenantEntityWithoutTenantFails(t *testing.T) {
	f := newFixture(t)

	rc := f.factory.NewContext(domain.TenantID{})
	defer rc.Release()

	_, err := rc.Resolve(context.Background(), "Vehicle")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantContextRequired))
}

func TestResolve_TenantEntityBindsTenantConnection(t *testing.T) {
	f := newFixture(t)
	tenant := domain.TenantID(uuid.New())

	rc := f.factory.NewContext(tenant)
	defer rc.Release()

	h, err := rc.Resolve(context.Background(), "Vehicle")
	require.NoError(t, err)
	assert.Equal(t, entity.ScopeTenant, h.Descriptor().Scope())
	assert.Equal(t, tenant, h.Conn().(*memory.Conn).TenantID())
}

func TestResolve_ReusesOneTenantConnectionPerRequest(t *testing.T) {
	f := newFixture(t)
	tenant := domain.TenantID(uuid.New())

	rc := f.factory.NewContext(tenant)
	defer rc.Release()

	h1, err := rc.Resolve(context.Background(), "Vehicle")
	require.NoError(t, err)
	h2, err := rc.Resolve(context.Background(), "Inspection")
	require.NoError(t, err)
	h3, err := rc.Resolve(context.Background(), "WorkshopQuote")
	require.NoError(t, err)

	assert.Same(t, h1.Conn(), h2.Conn())
	assert.Same(t, h1.Conn(), h3.Conn())
	assert.Equal(t, 1, f.opener.OpenCount(tenant))
	// One request holds exactly one reference no matter how many resolves.
	assert.Equal(t, int64(1), f.manager.Stats().ActiveRequests)
}

func TestResolve_MixedScopesUseDistinctConnections(t *testing.T) {
	f := newFixture(t)
	tenant := domain.TenantID(uuid.New())

	rc := f.factory.NewContext(tenant)
	defer rc.Release()

	sharedHandle, err := rc.Resolve(context.Background(), "CatalogMake")
	require.NoError(t, err)
	tenantHandle, err := rc.Resolve(context.Background(), "Appraisal")
	require.NoError(t, err)

	assert.Same(t, f.shared, sharedHandle.Conn())
	assert.NotSame(t, sharedHandle.Conn(), tenantHandle.Conn())
}

func TestResolve_UnknownEntityFails(t *testing.T) {
	f := newFixture(t)

	rc := f.factory.NewContext(domain.TenantID(uuid.New()))
	defer rc.Release()

	_, err := rc.Resolve(context.Background(), "Spaceship")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownEntity))
}

func TestRelease_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	tenant := domain.TenantID(uuid.New())

	rc := f.factory.NewContext(tenant)

	_, err := rc.Resolve(context.Background(), "Vehicle")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.manager.Stats().ActiveRequests)

	rc.Release()
	rc.Release()
	rc.Release()

	assert.Equal(t, int64(0), f.manager.Stats().ActiveRequests)
}

func TestRelease_WithoutResolveIsNoOp(t *testing.T) {
	f := newFixture(t)

	rc := f.factory.NewContext(domain.TenantID(uuid.New()))
	rc.Release()

	assert.Equal(t, int64(0), f.manager.Stats().ActiveRequests)
	assert.Equal(t, 0, f.manager.Stats().CachedTenants)
}

func TestResolve_AfterReleaseFails(t *testing.T) {
	f := newFixture(t)

	rc := f.factory.NewContext(domain.TenantID(uuid.New()))
	rc.Release()

	_, err := rc.Resolve(context.Background(), "Vehicle")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContextAlreadyReleased))

	_, err = rc.Resolve(context.Background(), "MasterAdmin")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContextAlreadyReleased))
}

// Two concurrent requests for the same tenant share one physical connection;
// the counter reaches two and falls back to zero after both release.
func TestConcurrentRequests_ShareOneTenantConnection(t *testing.T) {
	f := newFixture(t)
	tenant := domain.TenantID(uuid.New())

	barrier := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc := f.factory.NewContext(tenant)
			_, err := rc.Resolve(context.Background(), "Vehicle")
			assert.NoError(t, err)
			<-barrier // hold the reference until both requests resolved
			rc.Release()
		}()
	}

	require.Eventually(t, func() bool {
		return f.manager.Stats().ActiveRequests == 2
	}, testTimeout, testTick)
	assert.Equal(t, 1, f.opener.OpenCount(tenant))

	close(barrier)
	wg.Wait()

	assert.Equal(t, int64(0), f.manager.Stats().ActiveRequests)
	assert.Equal(t, 1, f.manager.Stats().CachedTenants)
}

func TestResolve_TenantConnectionFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	tenant := domain.TenantID(uuid.New())
	f.opener.FailTenant(tenant, assert.AnError)

	rc := f.factory.NewContext(tenant)
	defer rc.Release()

	_, err := rc.Resolve(context.Background(), "Vehicle")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantConnectionFailed))

	// The failed resolve left nothing to release and nothing cached.
	rc.Release()
	assert.Equal(t, 0, f.manager.Stats().CachedTenants)
	assert.Equal(t, int64(0), f.manager.Stats().ActiveRequests)
}
