package language

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/prompts"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	detectionTemperature = 0.1
	detectionSampleRunes = 500
)

// Chatter is the provider capability used for detection. *provider.Session implements it.
type Chatter interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32) (string, error)
}

// Detect asks the provider for the ISO 639-1 code of text. Codes outside the supported set
// become config.DefaultLanguage.
func Detect(ctx context.Context, chat Chatter, text string) (string, error) {
	out, err := chat.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompts.DetectionSystem},
		{Role: openai.ChatMessageRoleUser, Content: prompts.DetectionRequest(supportedCodes(), config.DefaultLanguage, sample(text))},
	}, detectionTemperature)
	if err != nil {
		return "", fmt.Errorf("language detection failed: %w", err)
	}

	code := strings.ToLower(strings.Trim(strings.TrimSpace(out), ".\"'`"))
	if !config.IsSupportedLanguage(code) {
		logger.Warn(ctx, "Detected language not supported, using fallback",
			zap.String("detected", code), zap.String("fallback", config.DefaultLanguage))
		return config.DefaultLanguage, nil
	}
	return code, nil
}

func sample(text string) string {
	if utf8.RuneCountInString(text) <= detectionSampleRunes {
		return text
	}
	return string([]rune(text)[:detectionSampleRunes])
}

func supportedCodes() []string {
	codes := make([]string, 0, len(config.LanguageNames))
	for code := range config.LanguageNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
