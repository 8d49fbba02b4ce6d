// Package mongomulti opens MongoDB connections for the data-access core: one
// client for the shared main database and one dedicated client per tenant
// database, so tenant isolation holds at the connection level rather than
// relying on query discipline.
package mongomulti

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"dealerdesk/internal/datastore"
	"dealerdesk/internal/entity"
	"dealerdesk/pkg/domain"
)

const (
	// DefaultConnectTimeout bounds the initial handshake per connection.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxPoolSize caps the driver-level socket pool per tenant client.
	// Tenant clients serve one dealer each, so this stays far below the
	// shared client's pool.
	DefaultMaxPoolSize = 16
	// DefaultMinPoolSize keeps a warm socket per tenant client.
	DefaultMinPoolSize = 1
)

// Config holds MongoDB connection configuration.
type Config struct {
	URI            string
	SharedDatabase string
	TenantPrefix   string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
}

// DefaultConfig returns sensible defaults; the URI must still be provided.
func DefaultConfig() Config {
	return Config{
		SharedDatabase: "dealerdesk_main",
		TenantPrefix:   "dealerdesk_tenant_",
		ConnectTimeout: DefaultConnectTimeout,
		MaxPoolSize:    DefaultMaxPoolSize,
		MinPoolSize:    DefaultMinPoolSize,
	}
}

// Conn is a live MongoDB connection bound to one database.
type Conn struct {
	client *mongo.Client
	db     *mongo.Database
}

// Database returns the bound database for query operations.
func (c *Conn) Database() *mongo.Database { return c.db }

// CollectionFor resolves the collection an entity persists to, using the
// shape descriptor attached at registration time.
func (c *Conn) CollectionFor(d entity.Descriptor) (*mongo.Collection, error) {
	shape, ok := d.Shape().(entity.CollectionShape)
	if !ok {
		return nil, fmt.Errorf("entity %s has no collection shape", d.Name())
	}
	return c.db.Collection(shape.Collection), nil
}

func (c *Conn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *Conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Opener opens MongoDB connections per the datastore.Opener contract.
type Opener struct {
	cfg Config
}

// NewOpener creates a MongoDB opener. Returns an error if the URI is empty.
func NewOpener(cfg Config) (*Opener, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if cfg.SharedDatabase == "" {
		cfg.SharedDatabase = DefaultConfig().SharedDatabase
	}
	if cfg.TenantPrefix == "" {
		cfg.TenantPrefix = DefaultConfig().TenantPrefix
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = DefaultMaxPoolSize
	}
	return &Opener{cfg: cfg}, nil
}

// OpenShared opens the main database connection.
func (o *Opener) OpenShared(ctx context.Context) (datastore.Conn, error) {
	return o.open(ctx, o.cfg.SharedDatabase)
}

// OpenTenant opens a dedicated connection to the tenant's database.
func (o *Opener) OpenTenant(ctx context.Context, tenantID domain.TenantID) (datastore.Conn, error) {
	return o.open(ctx, o.cfg.TenantPrefix+tenantDBSuffix(tenantID))
}

func (o *Opener) open(ctx context.Context, dbName string) (datastore.Conn, error) {
	clientOpts := options.Client().
		ApplyURI(o.cfg.URI).
		SetMaxPoolSize(o.cfg.MaxPoolSize).
		SetMinPoolSize(o.cfg.MinPoolSize).
		SetConnectTimeout(o.cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dbName, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background()) // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping %s: %w", dbName, err)
	}

	return &Conn{client: client, db: client.Database(dbName)}, nil
}

// tenantDBSuffix derives a mongo-safe database name fragment from the tenant UUID.
func tenantDBSuffix(tenantID domain.TenantID) string {
	return strings.ReplaceAll(tenantID.String(), "-", "")
}

var _ datastore.Opener = (*Opener)(nil)
