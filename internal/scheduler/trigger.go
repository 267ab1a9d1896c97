package scheduler

import (
	"context"
	"fmt"
)

// TriggerVault runs one out-of-band tick for a single vault, bypassing the
// interval gate (but not the circuit breaker). It backs the
// /admin/trigger/{vault} HTTP handler.
func (s *Scheduler) TriggerVault(ctx context.Context, address string) error {
	v, err := s.vaults.Get(ctx, address)
	if err != nil {
		return fmt.Errorf("scheduler: trigger vault %s: %w", address, err)
	}

	vaults, err := s.vaults.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: trigger vault %s: listing active vaults: %w", address, err)
	}
	for _, candidate := range vaults {
		if candidate.Address == v.Address {
			s.processVault(ctx, candidate)
			return nil
		}
	}

	return fmt.Errorf("scheduler: trigger vault %s: vault is not active", address)
}
