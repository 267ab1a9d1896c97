package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

type noopStrategy struct{ meta Meta }

func (n *noopStrategy) Meta() Meta { return n.meta }
func (n *noopStrategy) GenerateSignals(candles []domain.Candle) ([]int8, error) {
	return make([]int8, len(candles)), nil
}

func TestRegistryRegisterGetList(t *testing.T) {
	r := NewRegistry()
	r.Register("mean_reversion", &noopStrategy{})
	r.Register("trend_breakout", &noopStrategy{})

	if _, err := r.Get("mean_reversion"); err != nil {
		t.Fatalf("expected mean_reversion to be registered: %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected error for unregistered slug")
	}

	got := r.List()
	want := []string{"mean_reversion", "trend_breakout"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List() = %v, want %v", got, want)
		}
	}
}

type stubStrategyStore struct {
	strategies map[string]domain.Strategy
	healed     map[string]string
}

func (s *stubStrategyStore) Get(ctx context.Context, id int64) (domain.Strategy, error) {
	return domain.Strategy{}, errors.New("not implemented")
}

func (s *stubStrategyStore) GetBySlug(ctx context.Context, slug string) (domain.Strategy, error) {
	st, ok := s.strategies[slug]
	if !ok {
		return domain.Strategy{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *stubStrategyStore) List(ctx context.Context) ([]domain.Strategy, error) {
	out := make([]domain.Strategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		out = append(out, st)
	}
	return out, nil
}

func (s *stubStrategyStore) Create(ctx context.Context, st domain.Strategy) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubStrategyStore) HealArtifactPath(ctx context.Context, slug, path string) error {
	if s.healed == nil {
		s.healed = make(map[string]string)
	}
	s.healed[slug] = path
	return nil
}

func TestRegistryHealUpdatesStaleArtifactPath(t *testing.T) {
	r := NewRegistry()
	r.Register("mean_reversion", &noopStrategy{})

	store := &stubStrategyStore{strategies: map[string]domain.Strategy{
		"mean_reversion": {Slug: "mean_reversion", ArtifactPath: "stale/path.go"},
	}}

	healed, err := r.Heal(context.Background(), store, "mean_reversion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !healed {
		t.Fatal("expected Heal to report a change")
	}
	if store.healed["mean_reversion"] != "internal/strategy/mean_reversion.go" {
		t.Fatalf("unexpected healed path: %v", store.healed["mean_reversion"])
	}
}

func TestRegistryHealNoopWhenAlreadyCurrent(t *testing.T) {
	r := NewRegistry()
	r.Register("mean_reversion", &noopStrategy{})

	store := &stubStrategyStore{strategies: map[string]domain.Strategy{
		"mean_reversion": {Slug: "mean_reversion", ArtifactPath: "internal/strategy/mean_reversion.go"},
	}}

	healed, err := r.Heal(context.Background(), store, "mean_reversion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if healed {
		t.Fatal("expected no change when artifact path already current")
	}
}

func TestRegistryHealNoopWhenNotRegistered(t *testing.T) {
	r := NewRegistry()
	store := &stubStrategyStore{strategies: map[string]domain.Strategy{}}

	healed, err := r.Heal(context.Background(), store, "unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if healed {
		t.Fatal("expected no-op for unregistered slug")
	}
}
