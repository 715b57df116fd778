package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/birbparty/nestlink/sdk"
)

// compareAndDelete drops the hash only while it still holds the token
var compareAndDelete = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps the session in a redis hash that expires with the token
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to redis and verifies the connection
func NewRedisStore(config *RedisConfig, profile string) (*RedisStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address(),
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisStore(client, config.KeyPrefix, profile), nil
}

func newRedisStore(client *redis.Client, prefix, profile string) *RedisStore {
	return &RedisStore{client: client, key: prefix + profile}
}

// Read returns the stored session, nil when there is none
func (r *RedisStore) Read(ctx context.Context) (*sdk.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if fields["token"] == "" {
		return nil, nil
	}

	s := &sdk.Session{
		Token:       fields["token"],
		UserID:      fields["user_id"],
		Role:        fields["role"],
		DisplayName: fields["display_name"],
	}
	if exp := fields["expires_at"]; exp != "" {
		if t, err := time.Parse(time.RFC3339, exp); err == nil {
			s.ExpiresAt = t
		}
	}
	return s, nil
}

// Write replaces the stored session atomically
func (r *RedisStore) Write(ctx context.Context, s sdk.Session) error {
	if s.Token == "" {
		return errors.New("session token cannot be empty")
	}
	values := map[string]interface{}{
		"token":        s.Token,
		"user_id":      s.UserID,
		"role":         s.Role,
		"display_name": s.DisplayName,
	}
	if !s.ExpiresAt.IsZero() {
		values["expires_at"] = s.ExpiresAt.UTC().Format(time.RFC3339)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, values)
		if !s.ExpiresAt.IsZero() {
			pipe.ExpireAt(ctx, r.key, s.ExpiresAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear removes the stored session
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// CompareAndClear removes the session only while it still holds token
func (r *RedisStore) CompareAndClear(ctx context.Context, token string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, r.client, []string{r.key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to clear session: %w", err)
	}
	return n == 1, nil
}

// Ping checks if redis is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
