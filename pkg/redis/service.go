package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type KeyType string

const (
	SETTINGS              KeyType = "astra_voicenote_settings"
	PROVIDER_KEYS         KeyType = "astra_voicenote_provider_keys"
	PROVIDER_KEY_CURSOR   KeyType = "astra_voicenote_provider_key_cursor"
	PROVIDER_KEY_FAILURES KeyType = "astra_voicenote_provider_key_failures"
	CONTACT_LANGUAGE      KeyType = "astra_voicenote_contact_language"
	LANGUAGE_CACHE        KeyType = "astra_voicenote_language_cache"
	ALLOWED_GROUPS        KeyType = "astra_voicenote_allowed_groups"
	BLOCKED_USERS         KeyType = "astra_voicenote_blocked_users"
	USAGE_STATS           KeyType = "astra_voicenote_usage_stats"
	LANGUAGE_STATS        KeyType = "astra_voicenote_language_stats"
)

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IsNotExist reports whether err signals a missing key.
func IsNotExist(err error) bool {
	return errors.Is(err, redis.Nil)
}

type RedisServiceInterface interface {
	GenerateKey(keyType KeyType, identifier string) string
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key string, value string, ttl time.Duration) error
	DelValue(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)

	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashGet(ctx context.Context, key, field string) (string, error)
	HashSet(ctx context.Context, key string, values map[string]string) error
	HashDel(ctx context.Context, key string, fields ...string) error
	HashIncr(ctx context.Context, key, field string, by int64) (int64, error)

	ListAll(ctx context.Context, key string) ([]string, error)
	ListPush(ctx context.Context, key string, values ...string) error
	ListRemoveAt(ctx context.Context, key string, index int64) error

	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetIsMember(ctx context.Context, key, member string) (bool, error)
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// PubSubInterface is the messaging subset used by the task bus.
type PubSubInterface interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string, handler func(string)) error
}

type RedisService struct {
	client *redis.Client
}

func NewRedisService(config *RedisConfig) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

// NewRedisServiceFromClient wraps an existing client.
func NewRedisServiceFromClient(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

// Close closes the underlying client.
func (r *RedisService) Close() error {
	return r.client.Close()
}

// Ping checks the connection.
func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GenerateKey generates a Redis key with the given key type and identifier
func (r *RedisService) GenerateKey(keyType KeyType, identifier string) string {
	if identifier == "" {
		return string(keyType)
	}
	return fmt.Sprintf("%s:%s", string(keyType), identifier)
}

// GetValue gets a value from Redis by key
func (r *RedisService) GetValue(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// SetValue sets a value in Redis with TTL
func (r *RedisService) SetValue(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// DelValue deletes a value from Redis by key
func (r *RedisService) DelValue(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisService) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisService) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

func (r *RedisService) HashGet(ctx context.Context, key, field string) (string, error) {
	return r.client.HGet(ctx, key, field).Result()
}

func (r *RedisService) HashSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(values)*2)
	for field, value := range values {
		args = append(args, field, value)
	}
	return r.client.HSet(ctx, key, args...).Err()
}

func (r *RedisService) HashDel(ctx context.Context, key string, fields ...string) error {
	return r.client.HDel(ctx, key, fields...).Err()
}

func (r *RedisService) HashIncr(ctx context.Context, key, field string, by int64) (int64, error) {
	return r.client.HIncrBy(ctx, key, field, by).Result()
}

func (r *RedisService) ListAll(ctx context.Context, key string) ([]string, error) {
	return r.client.LRange(ctx, key, 0, -1).Result()
}

func (r *RedisService) ListPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return r.client.RPush(ctx, key, args...).Err()
}

// ListRemoveAt removes the element at index. Redis has no positional delete, so the
// element is replaced by a tombstone which is then removed.
func (r *RedisService) ListRemoveAt(ctx context.Context, key string, index int64) error {
	const tombstone = "__astra_deleted__"
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LSet(ctx, key, index, tombstone)
		pipe.LRem(ctx, key, 1, tombstone)
		return nil
	})
	return err
}

func (r *RedisService) SetAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SAdd(ctx, key, args...).Err()
}

func (r *RedisService) SetRemove(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SRem(ctx, key, args...).Err()
}

func (r *RedisService) SetIsMember(ctx context.Context, key, member string) (bool, error) {
	return r.client.SIsMember(ctx, key, member).Result()
}

func (r *RedisService) SetMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

// Publish publishes a message to a Redis channel
func (r *RedisService) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe subscribes to a Redis channel and handles incoming messages until ctx is done.
// It returns once the subscription is confirmed.
func (r *RedisService) Subscribe(ctx context.Context, channel string, handler func(string)) error {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()

	go func() {
		ch := pubsub.Channel()
		for msg := range ch {
			handler(msg.Payload)
		}
	}()

	return nil
}
