package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ClareAI/astra-voicenote-service/internal/provider"
	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
)

// ErrKeyNotFound is returned when a key index does not exist.
var ErrKeyNotFound = errors.New("provider key not found")

// KeyStore keeps the API keys of each provider as an ordered Redis list and implements provider.KeySource.
type KeyStore struct {
	redis redis.RedisServiceInterface
}

func NewKeyStore(r redis.RedisServiceInterface) *KeyStore {
	return &KeyStore{redis: r}
}

// KeyInfo is the admin view of a stored key. The secret itself is never returned.
type KeyInfo struct {
	Index    int    `json:"index"`
	Masked   string `json:"masked"`
	Failures int64  `json:"failures"`
}

func (s *KeyStore) Keys(ctx context.Context, name provider.Name) ([]string, error) {
	keys, err := s.redis.ListAll(ctx, s.redis.GenerateKey(redis.PROVIDER_KEYS, string(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s keys: %w", name, err)
	}
	return keys, nil
}

// NextOffset advances the shared round-robin counter of a provider.
func (s *KeyStore) NextOffset(ctx context.Context, name provider.Name) (int64, error) {
	return s.redis.Incr(ctx, s.redis.GenerateKey(redis.PROVIDER_KEY_CURSOR, string(name)))
}

// MarkFailed counts a failure against key. The count is informational only.
func (s *KeyStore) MarkFailed(ctx context.Context, name provider.Name, key string, _ string) error {
	_, err := s.redis.HashIncr(ctx, s.redis.GenerateKey(redis.PROVIDER_KEY_FAILURES, string(name)), fingerprint(key), 1)
	return err
}

func (s *KeyStore) Add(ctx context.Context, name provider.Name, key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	return s.redis.ListPush(ctx, s.redis.GenerateKey(redis.PROVIDER_KEYS, string(name)), key)
}

func (s *KeyStore) Remove(ctx context.Context, name provider.Name, index int) error {
	keys, err := s.Keys(ctx, name)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(keys) {
		return fmt.Errorf("key index %d: %w", index, ErrKeyNotFound)
	}
	if err := s.redis.ListRemoveAt(ctx, s.redis.GenerateKey(redis.PROVIDER_KEYS, string(name)), int64(index)); err != nil {
		return fmt.Errorf("failed to remove key: %w", err)
	}
	return s.redis.HashDel(ctx, s.redis.GenerateKey(redis.PROVIDER_KEY_FAILURES, string(name)), fingerprint(keys[index]))
}

// SeedIfEmpty stores keys when the provider has none yet.
func (s *KeyStore) SeedIfEmpty(ctx context.Context, name provider.Name, keys []string) (bool, error) {
	existing, err := s.Keys(ctx, name)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 || len(keys) == 0 {
		return false, nil
	}
	if err := s.redis.ListPush(ctx, s.redis.GenerateKey(redis.PROVIDER_KEYS, string(name)), keys...); err != nil {
		return false, fmt.Errorf("failed to seed %s keys: %w", name, err)
	}
	return true, nil
}

func (s *KeyStore) List(ctx context.Context, name provider.Name) ([]KeyInfo, error) {
	keys, err := s.Keys(ctx, name)
	if err != nil {
		return nil, err
	}
	failures, err := s.redis.HashGetAll(ctx, s.redis.GenerateKey(redis.PROVIDER_KEY_FAILURES, string(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to load key failures: %w", err)
	}

	infos := make([]KeyInfo, 0, len(keys))
	for i, k := range keys {
		infos = append(infos, KeyInfo{Index: i, Masked: mask(k), Failures: parseCount(failures[fingerprint(k)])})
	}
	return infos, nil
}

func fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

func mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
