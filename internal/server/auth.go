package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"tpm/internal/engine"
	"tpm/internal/engine/auth"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, a auth.Actor) context.Context {
	return context.WithValue(ctx, principalKey{}, a)
}

func principalFromContext(ctx context.Context) (auth.Actor, bool) {
	a, ok := ctx.Value(principalKey{}).(auth.Actor)
	return a, ok && a.Username != ""
}

// requirePermission returns the caller when its role grants perm.
func requirePermission(ctx context.Context, perm string) (auth.Actor, error) {
	a, ok := principalFromContext(ctx)
	if !ok {
		return auth.Actor{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	if err := a.Require(perm); err != nil {
		return auth.Actor{}, handleError(err)
	}
	return a, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves the caller from a bearer token or an API key.
// Health, login and the API document are public.
func newAuthMiddleware(basePath string, e engine.Engine, logger *slog.Logger) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "auth/login"):   true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKey := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			var (
				actor auth.Actor
				err   error
			)
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				actor, err = e.VerifyToken(token)
			case apiKey != "":
				actor, err = e.AuthenticateAPIKey(req.Context(), apiKey)
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidCredentials) {
					logger.DebugContext(req.Context(), "authentication rejected", "path", req.URL.Path, "error", err)
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), actor)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
