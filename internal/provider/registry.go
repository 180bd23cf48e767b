package provider

import (
	"context"
	"log/slog"
	"sync"
)

// Constructor builds a concrete provider. It must return a
// Configuration-kind typed error when required configuration is absent, so
// the registry can record the slot as unavailable without raising.
type Constructor func(ctx context.Context) (Provider, error)

// entryState tracks the lifecycle of one registry slot.
type entryState int

const (
	// stateReady means the instance was constructed and initialized.
	stateReady entryState = iota
	// stateUnavailable means construction was declined or failed; the slot
	// stays unavailable until Reset.
	stateUnavailable
)

// entry is one registered provider slot. Owned exclusively by the Registry.
type entry struct {
	state    entryState
	instance Provider
}

// Registry owns one lazily-constructed provider instance per Type for the
// lifetime of the process. It is populated with constructors at startup and
// cleared only by test teardown. Safe for concurrent use: insertion is
// serialized, and two callers racing on the same type observe the same
// resulting instance.
type Registry struct {
	// mu serializes construction and map access.
	mu sync.Mutex
	// constructors maps each known type to its builder.
	constructors map[Type]Constructor
	// entries caches construction outcomes per type.
	entries map[Type]*entry
	// log is the structured logger for registry events.
	log *slog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		constructors: make(map[Type]Constructor),
		entries:      make(map[Type]*entry),
		log:          log,
	}
}

// Register installs the constructor for a provider type. Registering twice
// for the same type replaces the constructor but keeps any existing instance.
func (r *Registry) Register(t Type, build Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[t] = build
}

// Get returns the provider instance for the given type, constructing it on
// first use. When the type is unknown, its configuration is missing, or
// construction fails, Get logs a warning and returns nil — it never raises.
// Callers must nil-check (or use IsAvailable) before invoking capability
// methods.
func (r *Registry) Get(ctx context.Context, t Type) Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[t]; ok {
		return e.instance // nil when stateUnavailable
	}

	build, ok := r.constructors[t]
	if !ok {
		r.log.Warn("provider: unknown type requested", slog.String("type", string(t)))
		r.entries[t] = &entry{state: stateUnavailable}
		return nil
	}

	instance, err := build(ctx)
	if err != nil {
		classified := Classify(err)
		r.log.Warn("provider: unavailable",
			slog.String("type", string(t)),
			slog.String("kind", string(classified.Kind)),
			slog.String("reason", classified.Message),
		)
		r.entries[t] = &entry{state: stateUnavailable}
		return nil
	}

	r.entries[t] = &entry{state: stateReady, instance: instance}
	r.log.Info("provider: ready",
		slog.String("type", string(t)),
		slog.String("name", instance.Name()),
	)
	return instance
}

// VectorStore returns the vector-store provider, or nil when unavailable.
func (r *Registry) VectorStore(ctx context.Context) VectorStore {
	if p, ok := r.Get(ctx, TypeVectorStore).(VectorStore); ok {
		return p
	}
	return nil
}

// ObjectStorage returns the object-storage provider, or nil when unavailable.
func (r *Registry) ObjectStorage(ctx context.Context) ObjectStorage {
	if p, ok := r.Get(ctx, TypeObjectStorage).(ObjectStorage); ok {
		return p
	}
	return nil
}

// Mailer returns the mail provider, or nil when unavailable.
func (r *Registry) Mailer(ctx context.Context) Mailer {
	if p, ok := r.Get(ctx, TypeMail).(Mailer); ok {
		return p
	}
	return nil
}

// IsAvailable reports whether Get for the type returns a ready instance.
func (r *Registry) IsAvailable(ctx context.Context, t Type) bool {
	return r.Get(ctx, t) != nil
}

// Available returns the registered types that are currently available, in
// stable order.
func (r *Registry) Available(ctx context.Context) []Type {
	known := []Type{TypeVectorStore, TypeObjectStorage, TypeMail}
	var out []Type
	for _, t := range known {
		if r.IsAvailable(ctx, t) {
			out = append(out, t)
		}
	}
	return out
}

// Reset clears all cached instances and availability outcomes so the next
// Get re-runs construction. For test teardown only — never call this in
// normal operation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[Type]*entry)
}
