// Command server starts the Folio CMS API HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"folio-cms/internal/api"
	"folio-cms/internal/auth"
	"folio-cms/internal/observability/logging"
	"folio-cms/internal/observability/metrics"
	"folio-cms/internal/server"
	"folio-cms/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory, postgres, or redis)")
	sessionPostgresDSN := flag.String("session-postgres-dsn", "", "Postgres DSN for the session store")
	sessionRedisAddr := flag.String("session-redis-addr", "", "Redis address for the session store")
	sessionRedisAddrs := flag.String("session-redis-addrs", "", "comma separated Redis addresses for the session store")
	sessionRedisUsername := flag.String("session-redis-username", "", "Redis username for the session store")
	sessionRedisPassword := flag.String("session-redis-password", "", "Redis password for the session store")
	sessionRedisDB := flag.Int("session-redis-db", 0, "Redis database index for the session store")
	sessionRedisPrefix := flag.String("session-redis-prefix", "", "Redis key prefix for session records")
	sessionRedisMasterName := flag.String("session-redis-sentinel-master", "", "Redis sentinel master name for the session store")
	sessionRedisPoolSize := flag.Int("session-redis-pool-size", 0, "maximum Redis connections for the session store")
	sessionRedisTLSCA := flag.String("session-redis-tls-ca", "", "path to Redis TLS CA certificate for the session store")
	sessionRedisTLSCert := flag.String("session-redis-tls-cert", "", "path to Redis TLS client certificate for the session store")
	sessionRedisTLSKey := flag.String("session-redis-tls-key", "", "path to Redis TLS client key for the session store")
	sessionRedisTLSServerName := flag.String("session-redis-tls-server-name", "", "override Redis TLS server name for the session store")
	sessionRedisTLSSkipVerify := flag.Bool("session-redis-tls-skip-verify", false, "skip Redis TLS verification for the session store")
	sessionTTL := flag.Duration("session-ttl", 0, "session lifetime (default 168h)")
	sessionEnforceExpiry := flag.Bool("session-enforce-expiry", true, "reject sessions past their expiry (disable for legacy behaviour)")
	sessionPurgeInterval := flag.Duration("session-purge-interval", 0, "interval between expired-session purge sweeps")
	adminEmail := flag.String("admin-email", "", "email promoted to verified admin at startup")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed by CORS (empty allows all)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("FOLIO_CMS_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("FOLIO_CMS_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	listenAddr := firstNonEmpty(*addr, os.Getenv("FOLIO_CMS_ADDR"), ":8080")
	postgresDefaultDSN := strings.TrimSpace(firstNonEmpty(*postgresDSN, os.Getenv("FOLIO_CMS_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))

	driver := resolveStorageDriver(*storageDriver, os.Getenv("FOLIO_CMS_STORAGE_DRIVER"), postgresDefaultDSN)

	var (
		store storage.Repository
		err   error
	)
	switch driver {
	case "json":
		dataFile := firstNonEmpty(*dataPath, os.Getenv("FOLIO_CMS_DATA"), "data/store.json")
		store, err = storage.NewJSONStore(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		store, err = storage.NewPostgresStore(storage.PostgresConfig{
			DSN:                 postgresDefaultDSN,
			MaxConnections:      int32(resolveInt(*postgresMaxConns, "FOLIO_CMS_POSTGRES_MAX_CONNS")),
			MinConnections:      int32(resolveInt(*postgresMinConns, "FOLIO_CMS_POSTGRES_MIN_CONNS")),
			MaxConnLifetime:     resolveDuration(*postgresMaxConnLifetime, "FOLIO_CMS_POSTGRES_MAX_CONN_LIFETIME", 0),
			MaxConnIdleTime:     resolveDuration(*postgresMaxConnIdle, "FOLIO_CMS_POSTGRES_MAX_CONN_IDLE", 0),
			HealthCheckInterval: resolveDuration(*postgresHealthInterval, "FOLIO_CMS_POSTGRES_HEALTH_INTERVAL", 0),
			ApplicationName:     firstNonEmpty(*postgresAppName, os.Getenv("FOLIO_CMS_POSTGRES_APP_NAME")),
		})
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessionDriver := resolveSessionStoreDriver(
		firstNonEmpty(*sessionStoreDriver, os.Getenv("FOLIO_CMS_SESSION_STORE")),
		driver,
		firstNonEmpty(*sessionRedisAddr, *sessionRedisAddrs, os.Getenv("FOLIO_CMS_SESSION_REDIS_ADDR")),
	)

	var (
		sessionStore  auth.SessionStore
		sessionCloser func(context.Context) error
	)
	switch sessionDriver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "postgres":
		dsn := strings.TrimSpace(firstNonEmpty(*sessionPostgresDSN, os.Getenv("FOLIO_CMS_SESSION_POSTGRES_DSN"), postgresDefaultDSN))
		if dsn == "" {
			logger.Error("postgres session store selected without DSN")
			os.Exit(1)
		}
		pgStore, err := auth.NewPostgresSessionStore(dsn)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = pgStore
		sessionCloser = pgStore.Close
	case "redis":
		redisStore, err := auth.NewRedisSessionStore(auth.RedisSessionStoreConfig{
			Addr:       firstNonEmpty(*sessionRedisAddr, os.Getenv("FOLIO_CMS_SESSION_REDIS_ADDR")),
			Addrs:      splitAndTrim(firstNonEmpty(*sessionRedisAddrs, os.Getenv("FOLIO_CMS_SESSION_REDIS_ADDRS"))),
			Username:   firstNonEmpty(*sessionRedisUsername, os.Getenv("FOLIO_CMS_SESSION_REDIS_USERNAME")),
			Password:   firstNonEmpty(*sessionRedisPassword, os.Getenv("FOLIO_CMS_SESSION_REDIS_PASSWORD")),
			DB:         resolveInt(*sessionRedisDB, "FOLIO_CMS_SESSION_REDIS_DB"),
			KeyPrefix:  firstNonEmpty(*sessionRedisPrefix, os.Getenv("FOLIO_CMS_SESSION_REDIS_PREFIX")),
			MasterName: firstNonEmpty(*sessionRedisMasterName, os.Getenv("FOLIO_CMS_SESSION_REDIS_SENTINEL_MASTER")),
			PoolSize:   resolveInt(*sessionRedisPoolSize, "FOLIO_CMS_SESSION_REDIS_POOL_SIZE"),
			TLS: auth.RedisTLSConfig{
				CAFile:             firstNonEmpty(*sessionRedisTLSCA, os.Getenv("FOLIO_CMS_SESSION_REDIS_TLS_CA")),
				CertFile:           firstNonEmpty(*sessionRedisTLSCert, os.Getenv("FOLIO_CMS_SESSION_REDIS_TLS_CERT")),
				KeyFile:            firstNonEmpty(*sessionRedisTLSKey, os.Getenv("FOLIO_CMS_SESSION_REDIS_TLS_KEY")),
				ServerName:         firstNonEmpty(*sessionRedisTLSServerName, os.Getenv("FOLIO_CMS_SESSION_REDIS_TLS_SERVER_NAME")),
				InsecureSkipVerify: resolveBool(*sessionRedisTLSSkipVerify, "FOLIO_CMS_SESSION_REDIS_TLS_SKIP_VERIFY"),
			},
		})
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = redisStore
		sessionCloser = func(context.Context) error { return redisStore.Close() }
	default:
		logger.Error("unsupported session store driver", "driver", sessionDriver)
		os.Exit(1)
	}

	ttl := resolveDuration(*sessionTTL, "FOLIO_CMS_SESSION_TTL", auth.DefaultTTL)
	enforceExpiry := resolveBoolDefault(*sessionEnforceExpiry, "FOLIO_CMS_SESSION_ENFORCE_EXPIRY", logger)
	sessions := auth.NewSessionManager(ttl,
		auth.WithStore(sessionStore),
		auth.WithExpiryEnforcement(enforceExpiry))
	if !enforceExpiry {
		logger.Warn("session expiry enforcement disabled; expired tokens will keep authenticating")
	}

	// Admin promotion is a best-effort reconciliation step. Failures are
	// logged and swallowed so a missing account never blocks startup.
	if email := firstNonEmpty(*adminEmail, os.Getenv("FOLIO_CMS_ADMIN_EMAIL")); email != "" {
		startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if promoted, err := store.PromoteAdmin(startupCtx, email); err != nil {
			logger.Warn("admin promotion skipped", "email", email, "error", err)
		} else {
			logger.Info("admin promoted", "email", promoted.Email)
		}
		cancel()
	}

	handler := api.NewHandler(store, sessions)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	purgeInterval := resolveDuration(*sessionPurgeInterval, "FOLIO_CMS_SESSION_PURGE_INTERVAL", 15*time.Minute)
	purgeStop := startSessionPurgeWorker(workerCtx, logging.WithComponent(logger, "session-purger"), sessions, purgeInterval)
	defer purgeStop()

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("FOLIO_CMS_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("FOLIO_CMS_TLS_KEY")),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("FOLIO_CMS_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Folio CMS API listening", "addr", listenAddr, "storage", driver, "sessions", sessionDriver)
	logger.Info("metrics endpoint available", "path", "/metrics")
	if err := srv.Run(runCtx); err != nil {
		logger.Error("server error", "error", err)
	}

	workerCancel()
	purgeStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	if sessionCloser != nil {
		if err := sessionCloser(ctx); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}

	logger.Info("server stopped")
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) string {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres"
	}
	return "json"
}

func resolveSessionStoreDriver(configured, storageDriver, redisAddr string) string {
	if driver := strings.ToLower(strings.TrimSpace(configured)); driver != "" {
		return driver
	}
	if strings.TrimSpace(redisAddr) != "" {
		return "redis"
	}
	if storageDriver == "postgres" {
		return "postgres"
	}
	return "memory"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return fallback
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}

// resolveBoolDefault lets the env var override a flag that defaults to true.
func resolveBoolDefault(flagValue bool, envKey string, logger interface {
	Warn(msg string, args ...any)
}) bool {
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
		logger.Warn(fmt.Sprintf("invalid %s", envKey), "value", env)
	}
	return flagValue
}
