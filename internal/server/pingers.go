package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/opencamphq/campd/internal/provider"
	"github.com/opencamphq/campd/internal/store"
)

// StorePinger probes the registration database. It satisfies the Pinger
// interface and is used by GET /api/ready.
type StorePinger struct {
	// store is the SQLite store to probe.
	store *store.SQLiteStore
}

// NewStorePinger constructs a StorePinger for the given store.
func NewStorePinger(s *store.SQLiteStore) *StorePinger {
	return &StorePinger{store: s}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "sqlite" }

// Ping verifies the database connection.
func (p *StorePinger) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// ProviderPinger probes an external provider through the registry. An
// unconfigured provider reports healthy — absence is a valid deployment
// state, not an outage.
type ProviderPinger struct {
	// registry hands out the provider to probe.
	registry *provider.Registry
	// typ is the provider type to probe.
	typ provider.Type
}

// NewProviderPinger constructs a ProviderPinger for the given type.
func NewProviderPinger(r *provider.Registry, typ provider.Type) *ProviderPinger {
	return &ProviderPinger{registry: r, typ: typ}
}

// Name returns the provider type label used in readiness responses.
func (p *ProviderPinger) Name() string { return string(p.typ) }

// Ping probes the provider when it is configured.
func (p *ProviderPinger) Ping(ctx context.Context) error {
	prov := p.registry.Get(ctx, p.typ)
	if prov == nil {
		return nil
	}
	if err := prov.Ping(ctx); err != nil {
		return fmt.Errorf("%s probe failed: %w", prov.Name(), err)
	}
	return nil
}
