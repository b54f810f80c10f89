package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisTLSConfig controls TLS behaviour for Redis connections.
type RedisTLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// RedisSessionStoreConfig configures the Redis-backed session store.
type RedisSessionStoreConfig struct {
	Addr         string
	Addrs        []string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	MasterName   string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	TLS          RedisTLSConfig
}

// RedisSessionStore keeps sessions in Redis so multiple replicas can share
// authentication state without a relational database. Records are stored
// without a Redis TTL; expiry is handled by the session manager and the
// purge worker so the legacy accept-expired mode keeps working.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSessionStore connects to Redis using the provided configuration.
func NewRedisSessionStore(cfg RedisSessionStoreConfig) (*RedisSessionStore, error) {
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "folio:session:"
	}
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		DB:           cfg.DB,
		TLSConfig:    tlsConfig,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})
	return &RedisSessionStore{client: client, prefix: prefix}, nil
}

// Close releases the Redis client resources.
func (s *RedisSessionStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Save stores or updates the session token.
func (s *RedisSessionStore) Save(record SessionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.Set(context.Background(), s.prefix+record.Token, payload, 0).Err()
}

// Get fetches the session details for the provided token.
func (s *RedisSessionStore) Get(token string) (SessionRecord, bool, error) {
	payload, err := s.client.Get(context.Background(), s.prefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, err
	}
	var record SessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return SessionRecord{}, false, fmt.Errorf("decode session: %w", err)
	}
	return record, true, nil
}

// Delete removes the session token.
func (s *RedisSessionStore) Delete(token string) error {
	return s.client.Del(context.Background(), s.prefix+token).Err()
}

// PurgeExpired scans the session keyspace and deletes expired records.
func (s *RedisSessionStore) PurgeExpired(now time.Time) error {
	ctx := context.Background()
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			payload, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return err
			}
			var record SessionRecord
			if err := json.Unmarshal(payload, &record); err != nil {
				continue
			}
			if now.After(record.ExpiresAt) {
				if err := s.client.Del(ctx, key).Err(); err != nil {
					return err
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping verifies the Redis connection is healthy.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis session client not configured")
	}
	return s.client.Ping(ctx).Err()
}

func buildTLSConfig(cfg RedisTLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.InsecureSkipVerify {
		return nil, nil
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.ServerName != "" {
		tlsCfg.ServerName = cfg.ServerName
	}
	if cfg.CAFile != "" {
		caPath := filepath.Clean(cfg.CAFile)
		pemData, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read redis tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("redis tls ca is invalid")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		certPath := filepath.Clean(cfg.CertFile)
		keyPath := filepath.Clean(cfg.KeyFile)
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load redis tls certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
