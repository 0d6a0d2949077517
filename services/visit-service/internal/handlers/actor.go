package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/arefin-khan/visitgate/libs/auth"
	"github.com/arefin-khan/visitgate/libs/httpx"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/scheduling"
)

type actorContextKey struct{}

// WithActor verifies the bearer token and resolves the caller into an
// Actor. Handlers read it back with ActorFrom and hand it to the engine
// explicitly; nothing downstream touches the token again.
func WithActor(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAndVerifyHS256(raw, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			actor := scheduling.Actor{
				ID:   claims.Sub,
				Name: claims.Name,
				Role: model.Role(claims.Role),
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorContextKey{}, actor)))
		})
	}
}

func ActorFrom(r *http.Request) (scheduling.Actor, bool) {
	actor, ok := r.Context().Value(actorContextKey{}).(scheduling.Actor)
	return actor, ok
}
