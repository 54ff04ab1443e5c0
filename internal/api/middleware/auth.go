package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/pkg/models"
)

type contextKey string

const (
	userKey   contextKey = "atrium.user"
	callerKey contextKey = "atrium.caller"
)

// caller is a mutable slot the outer logging/tracing wrappers install
// before routing; the authenticator fills it once the bearer token
// resolves, so those wrappers can report who made the request.
type caller struct {
	user *models.User
}

func withCaller(ctx context.Context) context.Context {
	if _, ok := ctx.Value(callerKey).(*caller); ok {
		return ctx
	}
	return context.WithValue(ctx, callerKey, &caller{})
}

func resolvedUser(ctx context.Context) *models.User {
	if c, ok := ctx.Value(callerKey).(*caller); ok {
		return c.user
	}
	return nil
}

// SetUser stores the authenticated user in the request context.
func SetUser(ctx context.Context, u *models.User) context.Context {
	if c, ok := ctx.Value(callerKey).(*caller); ok {
		c.user = u
	}
	return context.WithValue(ctx, userKey, u)
}

// GetUser returns the authenticated user, or nil on public paths.
func GetUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// Authenticator validates the bearer token on every request and
// provisions the user record on first login.
type Authenticator struct {
	verifier    auth.TokenVerifier
	provisioner *auth.Provisioner
}

func NewAuthenticator(v auth.TokenVerifier, p *auth.Provisioner) *Authenticator {
	return &Authenticator{verifier: v, provisioner: p}
}

// Handler rejects requests without a valid bearer credential and puts
// the resolved user in context for downstream handlers.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondUnauthorized(w, "missing bearer credential")
			return
		}

		principal, err := a.verifier.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("token verification failed")
			respondUnauthorized(w, "invalid credential")
			return
		}

		user, err := a.provisioner.GetOrCreate(r.Context(), principal)
		if err != nil {
			log.Error().Err(err).Str("subject", principal.Subject).Msg("user provisioning failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "failed to resolve user"})
			return
		}

		next.ServeHTTP(w, r.WithContext(SetUser(r.Context(), user)))
	})
}

// RequireAdmin guards mutating routes. It assumes Handler already ran.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil || user.Role != models.RoleAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="atrium"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
