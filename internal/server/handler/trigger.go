package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// VaultTrigger is the subset of scheduler.Scheduler the admin trigger
// endpoint needs.
type VaultTrigger interface {
	TriggerVault(ctx context.Context, address string) error
}

// TriggerHandler serves the out-of-band admin trigger endpoint, for
// operators who want a vault re-evaluated immediately instead of waiting
// for its next scheduled tick.
type TriggerHandler struct {
	scheduler VaultTrigger
	logger    *slog.Logger
}

// NewTriggerHandler creates a TriggerHandler.
func NewTriggerHandler(scheduler VaultTrigger, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{scheduler: scheduler, logger: logger}
}

// Trigger runs one immediate tick for a single active vault.
// POST /admin/trigger/{vault}
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	vault := pathParam(r, "vault")
	if vault == "" {
		writeError(w, http.StatusBadRequest, "vault address is required")
		return
	}

	if err := h.scheduler.TriggerVault(r.Context(), vault); err != nil {
		h.logger.ErrorContext(r.Context(), "admin trigger failed",
			slog.String("vault", vault), slog.Any("error", err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"vault": vault, "triggered": true})
}
