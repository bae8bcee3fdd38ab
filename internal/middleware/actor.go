package middleware

import (
	"context"
	"net/http"
	"strconv"
)

// Identity is issued upstream: the engine trusts that authentication and
// family-level authorization already happened. The actor arrives as a
// member id header set by the fronting auth layer.

const actorHeader = "X-Tally-Actor"

type contextKey string

const actorKey contextKey = "actor"

// Actor extracts the acting member id from the request header and stores
// it in the request context. Requests without the header pass through;
// handlers that need an actor reject them.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get(actorHeader); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "invalid actor header", http.StatusBadRequest)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), actorKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// ActorID returns the acting member id from the request context.
func ActorID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(actorKey).(int64)
	return id, ok
}
