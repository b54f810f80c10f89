// Package server assembles the HTTP surface of the CMS: routing, CORS,
// request IDs, logging, metrics, caller resolution, and audit trails.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"folio-cms/internal/api"
	"folio-cms/internal/observability/metrics"
	"folio-cms/internal/serverutil"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr        string
	TLS         TLSConfig
	CORS        CORSConfig
	Logger      *slog.Logger
	AuditLogger *slog.Logger
	Metrics     *metrics.Recorder
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	auditLogger *slog.Logger
	metrics     *metrics.Recorder
	tlsCertFile string
	tlsKeyFile  string
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", handler.Root)
	mux.HandleFunc("/test", handler.Diagnostics)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/hello", handler.Hello)
	mux.HandleFunc("/api/auth/signup", handler.Signup)
	mux.HandleFunc("/api/auth/login", handler.Login)
	mux.HandleFunc("/api/auth/logout", handler.Logout)
	mux.HandleFunc("/api/auth/me", handler.Me)
	mux.HandleFunc("/api/categories", handler.Categories)
	mux.HandleFunc("/api/categories/", handler.CategoryByID)
	mux.HandleFunc("/api/clients", handler.Clients)
	mux.HandleFunc("/api/clients/", handler.ClientByID)
	mux.HandleFunc("/api/projects", handler.Projects)
	mux.HandleFunc("/api/projects/", handler.ProjectByID)
	mux.HandleFunc("/api/testimonials", handler.Testimonials)
	mux.HandleFunc("/api/testimonials/submit", handler.SubmitTestimonial)
	mux.HandleFunc("/api/testimonials/", handler.TestimonialByID)
	mux.HandleFunc("/api/settings", handler.Settings)
	mux.HandleFunc("/api/settings/", handler.SettingByID)
	mux.HandleFunc("/api/users", handler.Users)
	mux.HandleFunc("/api/users/", handler.UserByID)
	mux.HandleFunc("/api/seed", handler.Seed)

	handlerChain := http.Handler(mux)
	handlerChain = auditMiddleware(cfg.AuditLogger, handlerChain)
	handlerChain = handler.CallerMiddleware(handlerChain)
	handlerChain = corsMiddleware(newCORSPolicy(cfg.CORS), handlerChain)
	handlerChain = metricsMiddleware(recorder, handlerChain)
	handlerChain = loggingMiddleware(cfg.Logger, handlerChain)
	handlerChain = requestIDMiddleware(cfg.Logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		auditLogger: cfg.AuditLogger,
		metrics:     recorder,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

// Run starts the listener and blocks until the context is cancelled or the
// server fails, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	return serverutil.Run(ctx, serverutil.Config{
		Server: s.httpServer,
		TLS: serverutil.TLSConfig{
			CertFile: s.tlsCertFile,
			KeyFile:  s.tlsKeyFile,
		},
		ShutdownTimeout: serverutil.DefaultShutdownTimeout,
	})
}

// Handler exposes the full middleware chain for tests.
func (s *Server) Handler() http.Handler {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)
		loggerWithRequestContext(r.Context(), logger).Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", duration.Milliseconds(),
			"remote_ip", extractClientIP(r))
	})
}

func metricsMiddleware(recorder *metrics.Recorder, next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return metrics.HTTPMiddleware(recorder, next)
}

func auditMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(sr, r)
		if !shouldAudit(r) {
			return
		}
		duration := time.Since(start)
		fields := []interface{}{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", duration.Milliseconds(),
			"remote_ip", extractClientIP(r),
		}
		if caller, err := api.CallerFromContext(r.Context()); err == nil {
			fields = append(fields, "user_id", caller.User.ID)
		}
		logger.Info("audit", fields...)
	})
}

func shouldAudit(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
