package store

import (
	"context"
	"fmt"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
)

// AccessStore decides whether a conversation may be processed.
// Groups need either group processing enabled or an explicit allow entry; users pass unless blocked.
type AccessStore struct {
	redis redis.RedisServiceInterface
}

func NewAccessStore(r redis.RedisServiceInterface) *AccessStore {
	return &AccessStore{redis: r}
}

func (s *AccessStore) CanProcess(ctx context.Context, conversationID string, settings *config.Settings) (bool, error) {
	if domain.IsGroupConversation(conversationID) {
		if settings.ProcessGroupMessages {
			return true, nil
		}
		allowed, err := s.redis.SetIsMember(ctx, s.redis.GenerateKey(redis.ALLOWED_GROUPS, ""), conversationID)
		if err != nil {
			return false, fmt.Errorf("failed to check allowed groups: %w", err)
		}
		return allowed, nil
	}

	blocked, err := s.redis.SetIsMember(ctx, s.redis.GenerateKey(redis.BLOCKED_USERS, ""), conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to check blocked users: %w", err)
	}
	return !blocked, nil
}

func (s *AccessStore) AllowGroup(ctx context.Context, jid string) error {
	return s.redis.SetAdd(ctx, s.redis.GenerateKey(redis.ALLOWED_GROUPS, ""), jid)
}

func (s *AccessStore) DisallowGroup(ctx context.Context, jid string) error {
	return s.redis.SetRemove(ctx, s.redis.GenerateKey(redis.ALLOWED_GROUPS, ""), jid)
}

func (s *AccessStore) BlockUser(ctx context.Context, jid string) error {
	return s.redis.SetAdd(ctx, s.redis.GenerateKey(redis.BLOCKED_USERS, ""), jid)
}

func (s *AccessStore) UnblockUser(ctx context.Context, jid string) error {
	return s.redis.SetRemove(ctx, s.redis.GenerateKey(redis.BLOCKED_USERS, ""), jid)
}

func (s *AccessStore) AllowedGroups(ctx context.Context) ([]string, error) {
	return s.redis.SetMembers(ctx, s.redis.GenerateKey(redis.ALLOWED_GROUPS, ""))
}

func (s *AccessStore) BlockedUsers(ctx context.Context) ([]string, error) {
	return s.redis.SetMembers(ctx, s.redis.GenerateKey(redis.BLOCKED_USERS, ""))
}
