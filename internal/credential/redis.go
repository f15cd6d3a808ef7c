package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Prefix       string
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Prefix:       "idp:credential:",
	}
}

// consumeScript checks validity and flips the revoked flag in one script
// invocation. Redis runs scripts serially per node, which makes Consume
// linearizable per credential value: two concurrent redemptions of the
// same code see exactly one winner.
var consumeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return false
end
local record = cjson.decode(raw)
if record.revoked then
  return 'consumed'
end
record.revoked = true
local ttl = redis.call('PTTL', KEYS[1])
redis.call('SET', KEYS[1], cjson.encode(record))
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return raw
`)

// RedisStore persists credentials as JSON values with a TTL matching
// their expiry, so passive reclamation is handled by Redis itself.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	logger.Info("connected to credential store", "addr", cfg.Addr, "db", cfg.DB)

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// NewRedisStoreFromClient wraps an existing client. Tests use this with a
// miniredis-backed client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RedisStore) key(value string) string {
	return s.prefix + value
}

func (s *RedisStore) Put(ctx context.Context, cred Credential) error {
	ttl := time.Until(cred.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("credential store: credential %q is already expired", cred.Value)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("credential store: marshal credential: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(cred.Value), data, ttl).Result()
	if err != nil {
		s.logger.Warn("credential put failed", "kind", cred.Kind, "error", err)
		return errors.Join(ErrUnavailable, err)
	}
	if !ok {
		return ErrDuplicateValue
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, value string) (Credential, error) {
	raw, err := s.client.Get(ctx, s.key(value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, ErrNotFound
		}
		s.logger.Warn("credential get failed", "error", err)
		return Credential{}, errors.Join(ErrUnavailable, err)
	}

	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, fmt.Errorf("credential store: unmarshal credential: %w", err)
	}

	// The Redis TTL already bounds the lifetime; the explicit check keeps
	// the absent-when-expired contract independent of reclamation timing.
	if !time.Now().Before(cred.ExpiresAt) {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (s *RedisStore) Consume(ctx context.Context, value string) (Credential, error) {
	result, err := consumeScript.Run(ctx, s.client, []string{s.key(value)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, ErrNotFound
		}
		s.logger.Warn("credential consume failed", "error", err)
		return Credential{}, errors.Join(ErrUnavailable, err)
	}

	raw, ok := result.(string)
	if !ok {
		return Credential{}, fmt.Errorf("credential store: unexpected consume result %T", result)
	}
	if raw == "consumed" {
		return Credential{}, ErrAlreadyConsumed
	}

	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return Credential{}, fmt.Errorf("credential store: unmarshal credential: %w", err)
	}
	if !time.Now().Before(cred.ExpiresAt) {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (s *RedisStore) Revoke(ctx context.Context, value string) error {
	_, err := s.Consume(ctx, value)
	if errors.Is(err, ErrAlreadyConsumed) {
		// Revocation is idempotent.
		return nil
	}
	return err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
