package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/birbparty/roost/sdk"
)

const redisKeyPrefix = "roost:session:"

// RedisStore keeps the session under roost:session:{namespace} with a TTL
// that ends when the session does
type RedisStore struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
	owned  bool
}

// NewRedisStore connects to Redis and checks the connection
func NewRedisStore(config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Address(),
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		PoolSize:        config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisStoreWithClient(client, config.Namespace)
	store.owned = true
	return store, nil
}

// NewRedisStoreWithClient uses an existing client; Close leaves it open
func NewRedisStoreWithClient(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    redisKeyPrefix + namespaceOrDefault(namespace),
		now:    time.Now,
	}
}

// Key returns the Redis key holding the session
func (r *RedisStore) Key() string {
	return r.key
}

// Load returns the stored session or nil
func (r *RedisStore) Load(ctx context.Context) (*sdk.Session, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, NewStoreError("failed to load session", true).WithError(err)
	}
	return decode(data)
}

// Save stores session until it expires; nil clears it
func (r *RedisStore) Save(ctx context.Context, session *sdk.Session) error {
	if session == nil {
		return r.Clear(ctx)
	}
	data, err := encode(session)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, ttl(session, r.now())).Err(); err != nil {
		return NewStoreError("failed to save session", true).WithError(err)
	}
	return nil
}

// Clear deletes the session key
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return NewStoreError("failed to clear session", true).WithError(err)
	}
	return nil
}

// Close releases the client when the store created it
func (r *RedisStore) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
