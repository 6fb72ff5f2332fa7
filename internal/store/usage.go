package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
)

const (
	usageTotal       = "total"
	usageDayPrefix   = "day:"
	usageConvPrefix  = "conversation:"
	langSentSuffix   = ":sent"
	langRecvSuffix   = ":received"
	langTranslations = "translations"
)

// UsageStore keeps processing counters in two Redis hashes.
type UsageStore struct {
	redis redis.RedisServiceInterface
	now   func() time.Time
}

func NewUsageStore(r redis.RedisServiceInterface) *UsageStore {
	return &UsageStore{redis: r, now: time.Now}
}

// Usage is the aggregated view returned by the admin API.
type Usage struct {
	Total          int64            `json:"total"`
	ByDay          map[string]int64 `json:"by_day"`
	ByConversation map[string]int64 `json:"by_conversation"`
	Languages      map[string]int64 `json:"languages"`
	LanguagesSent  map[string]int64 `json:"languages_sent"`
	LanguagesRecv  map[string]int64 `json:"languages_received"`
	Translations   int64            `json:"translations"`
}

func (s *UsageStore) RecordProcessed(ctx context.Context, conversationID string) error {
	key := s.redis.GenerateKey(redis.USAGE_STATS, "")
	day := s.now().UTC().Format("2006-01-02")
	for _, field := range []string{usageTotal, usageDayPrefix + day, usageConvPrefix + conversationID} {
		if _, err := s.redis.HashIncr(ctx, key, field, 1); err != nil {
			return fmt.Errorf("failed to record usage: %w", err)
		}
	}
	return nil
}

// RecordLanguage counts the language a message was handled in, by direction.
func (s *UsageStore) RecordLanguage(ctx context.Context, language string, fromMe, translated bool) error {
	key := s.redis.GenerateKey(redis.LANGUAGE_STATS, "")
	direction := langRecvSuffix
	if fromMe {
		direction = langSentSuffix
	}
	fields := []string{language, language + direction}
	if translated {
		fields = append(fields, langTranslations)
	}
	for _, field := range fields {
		if _, err := s.redis.HashIncr(ctx, key, field, 1); err != nil {
			return fmt.Errorf("failed to record language usage: %w", err)
		}
	}
	return nil
}

func (s *UsageStore) Stats(ctx context.Context) (*Usage, error) {
	usage, err := s.redis.HashGetAll(ctx, s.redis.GenerateKey(redis.USAGE_STATS, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	langs, err := s.redis.HashGetAll(ctx, s.redis.GenerateKey(redis.LANGUAGE_STATS, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load language usage: %w", err)
	}

	out := &Usage{
		ByDay:          map[string]int64{},
		ByConversation: map[string]int64{},
		Languages:      map[string]int64{},
		LanguagesSent:  map[string]int64{},
		LanguagesRecv:  map[string]int64{},
	}
	for field, raw := range usage {
		n := parseCount(raw)
		switch {
		case field == usageTotal:
			out.Total = n
		case strings.HasPrefix(field, usageDayPrefix):
			out.ByDay[strings.TrimPrefix(field, usageDayPrefix)] = n
		case strings.HasPrefix(field, usageConvPrefix):
			out.ByConversation[strings.TrimPrefix(field, usageConvPrefix)] = n
		}
	}
	for field, raw := range langs {
		n := parseCount(raw)
		switch {
		case field == langTranslations:
			out.Translations = n
		case strings.HasSuffix(field, langSentSuffix):
			out.LanguagesSent[strings.TrimSuffix(field, langSentSuffix)] = n
		case strings.HasSuffix(field, langRecvSuffix):
			out.LanguagesRecv[strings.TrimSuffix(field, langRecvSuffix)] = n
		default:
			out.Languages[field] = n
		}
	}
	return out, nil
}

func parseCount(raw string) int64 {
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}
