package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"lab-monitor-bridge/internal/observability/metrics"
)

// Store persists the whole endpoint set. Save always rewrites the full set.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, endpoints []string) error
}

// Registry is the durable set of notification endpoints.
// Mutations are serialised and written through to the store before they become visible.
type Registry struct {
	mu      sync.Mutex
	store   Store
	logger  *slog.Logger
	order   []string
	members map[string]struct{}
}

// Open loads the current set from the store.
func Open(ctx context.Context, store Store, logger *slog.Logger) (*Registry, error) {
	if store == nil {
		return nil, errors.New("endpoint registry: nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("endpoint registry: load: %w", err)
	}
	r := &Registry{
		store:   store,
		logger:  logger,
		members: make(map[string]struct{}, len(loaded)),
	}
	for _, id := range loaded {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := r.members[id]; ok {
			continue
		}
		r.members[id] = struct{}{}
		r.order = append(r.order, id)
	}
	metrics.SetEndpoints(len(r.order))
	return r, nil
}

// Register adds id. It returns true when id is present afterwards.
func (r *Registry) Register(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; ok {
		r.logger.Debug("endpoint already registered", "endpoint", redact(id))
		return true
	}
	next := append(clone(r.order), id)
	if err := r.store.Save(ctx, next); err != nil {
		r.logger.Error("endpoint register failed", "endpoint", redact(id), "error", err)
		return false
	}
	r.order = next
	r.members[id] = struct{}{}
	metrics.SetEndpoints(len(r.order))
	r.logger.Info("endpoint registered", "endpoint", redact(id), "count", len(r.order))
	return true
}

// Unregister removes id and reports whether it was present.
func (r *Registry) Unregister(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return false
	}
	if err := r.replace(ctx, map[string]struct{}{id: {}}); err != nil {
		r.logger.Error("endpoint unregister failed", "endpoint", redact(id), "error", err)
		return false
	}
	r.logger.Info("endpoint unregistered", "endpoint", redact(id), "count", len(r.order))
	return true
}

// Prune removes every listed id in a single write and returns how many were removed.
func (r *Registry) Prune(ctx context.Context, ids []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := r.members[id]; ok {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	if err := r.replace(ctx, drop); err != nil {
		r.logger.Error("endpoint prune failed", "endpoints", len(drop), "error", err)
		return 0
	}
	for id := range drop {
		r.logger.Info("endpoint pruned", "endpoint", redact(id))
	}
	metrics.AddEndpointsPruned(len(drop))
	return len(drop)
}

// List returns a copy of the current set in registration order.
func (r *Registry) List(_ context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.order)
}

// replace must be called with mu held.
func (r *Registry) replace(ctx context.Context, drop map[string]struct{}) error {
	next := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if _, ok := drop[id]; !ok {
			next = append(next, id)
		}
	}
	if err := r.store.Save(ctx, next); err != nil {
		return err
	}
	r.order = next
	for id := range drop {
		delete(r.members, id)
	}
	metrics.SetEndpoints(len(r.order))
	return nil
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func redact(id string) string {
	if len(id) <= 20 {
		return id
	}
	return id[:20] + "..."
}
