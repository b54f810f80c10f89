package server

import (
	"net/http"
	"strings"
)

// CORSConfig declares the origins allowed to call the API across domains.
// An empty list allows any origin, mirroring the permissive policy of the
// original portfolio deployment where the admin UI and public site are served
// from arbitrary hosts.
type CORSConfig struct {
	AllowedOrigins []string
}

type corsPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	policy := corsPolicy{allowed: make(map[string]struct{})}
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
		if trimmed != "" {
			policy.allowed[trimmed] = struct{}{}
		}
	}
	if len(policy.allowed) == 0 {
		policy.allowAll = true
	}
	return policy
}

func (p corsPolicy) allows(origin string) bool {
	if p.allowAll {
		return true
	}
	normalized := strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
	_, ok := p.allowed[normalized]
	return ok
}

func corsMiddleware(policy corsPolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !policy.allows(origin) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			requestedHeaders := r.Header.Get("Access-Control-Request-Headers")
			if requestedHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", requestedHeaders)
			} else {
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
