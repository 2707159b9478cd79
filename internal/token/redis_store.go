package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisTokenPrefix   = "locate:token:"
	redisExpiryIndex   = "locate:token-expiry"
	redisTTLSlack      = 10 * time.Minute
	redisDialTimeout   = 5 * time.Second
	redisHealthTimeout = 2 * time.Second
)

// cleanupScript atomically removes every token expiring strictly before the
// cutoff; the exclusive bound keeps a record expiring exactly at the cutoff.
// Records refreshed since the index was read keep their updated score, so the
// sweep never races a concurrent Put.
var cleanupScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local removed = 0
for _, tenant in ipairs(expired) do
	redis.call('DEL', ARGV[2] .. tenant)
	redis.call('ZREM', KEYS[1], tenant)
	removed = removed + 1
end
return removed
`)

// RedisStore is a Store backed by Redis. Records are JSON values keyed by
// tenant with a sorted-set index on expiry, which keeps the cleanup sweep a
// single server-side operation.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = redisDialTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisTokenKey(tenantID string) string {
	return redisTokenPrefix + tenantID
}

// Get returns the tenant's record, or (nil, nil) when absent.
func (s *RedisStore) Get(ctx context.Context, tenantID string) (*CachedToken, error) {
	data, err := s.client.Get(ctx, redisTokenKey(tenantID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	record := &CachedToken{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to decode token record: %w", err)
	}
	return record, nil
}

// Put upserts the record and its expiry-index entry. The key carries a
// physical TTL past the logical expiry so Redis reclaims records the sweep
// never reaches, while keeping them visible for stats until swept.
func (s *RedisStore) Put(ctx context.Context, record *CachedToken) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}

	ttl := time.Until(record.ExpiresAt) + redisTTLSlack
	if ttl < redisTTLSlack {
		ttl = redisTTLSlack
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisTokenKey(record.TenantID), data, ttl)
	pipe.ZAdd(ctx, redisExpiryIndex, &redis.Z{
		Score:  float64(record.ExpiresAt.Unix()),
		Member: record.TenantID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Delete removes the tenant's record; absent records are a no-op.
func (s *RedisStore) Delete(ctx context.Context, tenantID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisTokenKey(tenantID))
	pipe.ZRem(ctx, redisExpiryIndex, tenantID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteExpiredBefore removes records expiring before cutoff via a Lua script
// so the read-check-delete is atomic on the server.
func (s *RedisStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed, err := cleanupScript.Run(ctx, s.client,
		[]string{redisExpiryIndex},
		cutoff.Unix(), redisTokenPrefix,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return removed, nil
}

// List returns all indexed records, expired ones included. Records Redis
// already reclaimed by TTL are dropped from the index as they are found.
func (s *RedisStore) List(ctx context.Context) ([]*CachedToken, error) {
	tenants, err := s.client.ZRange(ctx, redisExpiryIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(tenants) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tenants))
	for i, tenant := range tenants {
		keys[i] = redisTokenKey(tenant)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load token records: %w", err)
	}

	var records []*CachedToken
	for i, value := range values {
		if value == nil {
			s.client.ZRem(ctx, redisExpiryIndex, tenants[i])
			continue
		}
		data, ok := value.(string)
		if !ok {
			continue
		}
		record := &CachedToken{}
		if err := json.Unmarshal([]byte(data), record); err != nil {
			return nil, fmt.Errorf("failed to decode token record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Health pings Redis with a short timeout.
func (s *RedisStore) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisHealthTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
