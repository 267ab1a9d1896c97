package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// Registry is the statically-linked set of strategy implementations, keyed
// by slug. There is no dynamic loading: a strategy is "deployed" by
// compiling it into this binary and registering it in internal/app's
// wiring (buildRegistry in wire.go), never by reading a file path at runtime.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under the given slug, replacing any existing
// registration for that slug.
func (r *Registry) Register(slug string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[slug] = s
}

// Get retrieves a strategy by slug.
func (r *Registry) Get(slug string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[slug]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", slug)
	}
	return s, nil
}

// List returns the slugs of all registered strategies, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slugs := make([]string, 0, len(r.strategies))
	for s := range r.strategies {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return slugs
}

// canonicalArtifactPath is the artifact path recorded for a compiled-in
// strategy. There is no file on disk for it; this is a stable identifier a
// persisted domain.Strategy row can be reconciled against.
func canonicalArtifactPath(slug string) string {
	return fmt.Sprintf("internal/strategy/%s.go", slug)
}

// Heal reconciles a strategy's persisted artifact_path metadata with the
// slug actually registered in this binary. Strategies here are compiled in,
// not loaded from disk, so "healing" a strategy record does not mean
// re-reading foreign code — it means bringing the store's bookkeeping back
// in line with the implementation that is really running. Returns false,
// nil if the slug isn't registered at all (nothing to heal) and true if the
// store was updated.
func (r *Registry) Heal(ctx context.Context, store domain.StrategyStore, slug string) (bool, error) {
	if _, err := r.Get(slug); err != nil {
		return false, nil
	}

	existing, err := store.GetBySlug(ctx, slug)
	if err != nil {
		return false, fmt.Errorf("strategy: heal %q: lookup: %w", slug, err)
	}

	want := canonicalArtifactPath(slug)
	if existing.ArtifactPath == want {
		return false, nil
	}
	if err := store.HealArtifactPath(ctx, slug, want); err != nil {
		return false, fmt.Errorf("strategy: heal %q: %w", slug, err)
	}
	return true, nil
}
