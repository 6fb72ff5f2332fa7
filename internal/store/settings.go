// Package store keeps the operator-managed state of the service in Redis.
package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/provider"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

const (
	fieldOutputMode           = "output_mode"
	fieldSummaryHeader        = "summary_header"
	fieldTranscriptionHeader  = "transcription_header"
	fieldCharacterLimit       = "character_limit"
	fieldUseTimestamps        = "use_timestamps"
	fieldBusinessMessage      = "business_message"
	fieldProcessSelfMessages  = "process_self_messages"
	fieldProcessGroupMessages = "process_group_messages"
	fieldProcessMode          = "process_mode"
	fieldSystemLanguage       = "system_language"
	fieldAutoDetectLanguage   = "auto_language_detection"
	fieldActiveProvider       = "active_provider"
	fieldDebugMode            = "debug_mode"
)

// SettingsStore reads and writes the settings hash. Missing fields take their default value.
type SettingsStore struct {
	redis    redis.RedisServiceInterface
	defaults config.Settings
}

func NewSettingsStore(r redis.RedisServiceInterface) *SettingsStore {
	return &SettingsStore{redis: r, defaults: config.DefaultSettings}
}

func (s *SettingsStore) key() string {
	return s.redis.GenerateKey(redis.SETTINGS, "")
}

// Load returns a snapshot of the current settings.
func (s *SettingsStore) Load(ctx context.Context) (*config.Settings, error) {
	values, err := s.redis.HashGetAll(ctx, s.key())
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var settings config.Settings
	if err := copier.CopyWithOption(&settings, &s.defaults, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to copy default settings: %w", err)
	}

	for field, raw := range values {
		if err := applyField(&settings, field, raw); err != nil {
			logger.Warn(ctx, "Ignoring invalid setting", zap.String("field", field), zap.String("value", raw), zap.Error(err))
		}
	}
	return &settings, nil
}

// Update validates values and writes them. Unknown fields are rejected.
func (s *SettingsStore) Update(ctx context.Context, values map[string]string) (*config.Settings, error) {
	var probe config.Settings
	for field, raw := range values {
		if err := applyField(&probe, field, raw); err != nil {
			return nil, err
		}
	}
	if err := s.redis.HashSet(ctx, s.key(), values); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return s.Load(ctx)
}

// Save writes every field of settings.
func (s *SettingsStore) Save(ctx context.Context, settings *config.Settings) error {
	if err := s.redis.HashSet(ctx, s.key(), settingsToFields(settings)); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// InvalidSettingError reports a field that cannot be stored.
type InvalidSettingError struct {
	Field  string
	Reason string
}

func (e *InvalidSettingError) Error() string {
	return fmt.Sprintf("invalid setting %q: %s", e.Field, e.Reason)
}

func applyField(s *config.Settings, field, raw string) error {
	var err error
	switch field {
	case fieldOutputMode:
		s.OutputMode = config.ParseOutputMode(raw)
	case fieldSummaryHeader:
		s.SummaryHeader = raw
	case fieldTranscriptionHeader:
		s.TranscriptionHeader = raw
	case fieldCharacterLimit:
		var n int
		n, err = strconv.Atoi(raw)
		if err == nil && n < 0 {
			return &InvalidSettingError{Field: field, Reason: "must not be negative"}
		}
		s.CharacterLimit = n
	case fieldUseTimestamps:
		s.TimestampsEnabled, err = strconv.ParseBool(raw)
	case fieldBusinessMessage:
		s.BusinessMessage = raw
	case fieldProcessSelfMessages:
		s.ProcessSelfMessages, err = strconv.ParseBool(raw)
	case fieldProcessGroupMessages:
		s.ProcessGroupMessages, err = strconv.ParseBool(raw)
	case fieldProcessMode:
		s.ProcessMode = config.ParseProcessMode(raw)
	case fieldSystemLanguage:
		if !config.IsSupportedLanguage(raw) {
			return &InvalidSettingError{Field: field, Reason: "unsupported language"}
		}
		s.SystemLanguage = raw
	case fieldAutoDetectLanguage:
		s.AutoDetectLanguage, err = strconv.ParseBool(raw)
	case fieldActiveProvider:
		var name provider.Name
		name, err = provider.ParseName(raw)
		s.ActiveProvider = string(name)
	case fieldDebugMode:
		s.DebugMode, err = strconv.ParseBool(raw)
	default:
		return &InvalidSettingError{Field: field, Reason: "unknown field"}
	}
	if err != nil {
		return &InvalidSettingError{Field: field, Reason: err.Error()}
	}
	return nil
}

func settingsToFields(s *config.Settings) map[string]string {
	return map[string]string{
		fieldOutputMode:           string(s.OutputMode),
		fieldSummaryHeader:        s.SummaryHeader,
		fieldTranscriptionHeader:  s.TranscriptionHeader,
		fieldCharacterLimit:       strconv.Itoa(s.CharacterLimit),
		fieldUseTimestamps:        strconv.FormatBool(s.TimestampsEnabled),
		fieldBusinessMessage:      s.BusinessMessage,
		fieldProcessSelfMessages:  strconv.FormatBool(s.ProcessSelfMessages),
		fieldProcessGroupMessages: strconv.FormatBool(s.ProcessGroupMessages),
		fieldProcessMode:          string(s.ProcessMode),
		fieldSystemLanguage:       s.SystemLanguage,
		fieldAutoDetectLanguage:   strconv.FormatBool(s.AutoDetectLanguage),
		fieldActiveProvider:       s.ActiveProvider,
		fieldDebugMode:            strconv.FormatBool(s.DebugMode),
	}
}
