package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/workflow"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

// requireActor resolves the acting member id or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.ActorID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "actor header required"})
	}
	return id, ok
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
// Business errors carry user-renderable context; Conflict and storage
// failures stay opaque.
func writeEngineError(w http.ResponseWriter, err error) {
	var invalid *workflow.InvalidTransitionError
	var insufficient *ledger.InsufficientPointsError

	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, ledger.ErrMemberNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusConflict, map[string]string{"error": invalid.Error()})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "insufficient points",
			"balance":  insufficient.Balance,
			"required": insufficient.Required,
		})
	case errors.Is(err, workflow.ErrUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "reward unavailable"})
	case errors.Is(err, workflow.ErrPhotoRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "photo evidence required"})
	case errors.Is(err, database.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "temporary conflict, retry"})
	default:
		log.Printf("engine error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// withConflictRetry re-runs fn a few times when the database was busy.
// The engine itself never retries; that policy lives here at the caller.
func withConflictRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, database.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
