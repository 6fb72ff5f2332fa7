// Package textproc holds the chat-completion text transforms applied to a transcript.
package textproc

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/internal/prompts"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	translationTemperature = 0.3
	summaryTemperature     = 0.5

	minTranslationRatio = 0.5
	maxTranslationRatio = 1.5
)

// Chatter is the provider capability used here. *provider.Session implements it.
type Chatter interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32) (string, error)
}

// Translate rewrites text from source to target. Equal languages return text unchanged without a request.
func Translate(ctx context.Context, chat Chatter, text, source, target string) (string, error) {
	if source == target {
		return text, nil
	}

	out, err := chat.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompts.TranslationSystem},
		{Role: openai.ChatMessageRoleUser, Content: prompts.TranslationRequest(config.LanguageName(source), config.LanguageName(target), text)},
	}, translationTemperature)
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", domain.ErrInvalidTranslation
	}

	if in := utf8.RuneCountInString(text); in > 0 {
		ratio := float64(utf8.RuneCountInString(out)) / float64(in)
		if ratio < minTranslationRatio || ratio > maxTranslationRatio {
			logger.Warn(ctx, "Translation length differs significantly from source",
				zap.Int("original_length", in),
				zap.Int("translated_length", utf8.RuneCountInString(out)),
				zap.Float64("ratio", ratio))
		}
	}

	logger.Info(ctx, "Text translated", zap.String("from", source), zap.String("to", target))
	return out, nil
}

// NeedsSummary reports whether the output mode asks for a summary of text.
func NeedsSummary(mode config.OutputMode, text string, limit int) bool {
	switch mode {
	case config.OutputBoth, config.OutputSummaryOnly:
		return true
	case config.OutputSmart:
		return utf8.RuneCountInString(text) > limit
	default:
		return false
	}
}

// Summarize produces a condensed version of text using the prompt for language.
func Summarize(ctx context.Context, chat Chatter, text, language string) (string, error) {
	if _, ok := prompts.SummaryPrompt(language); !ok {
		logger.Debug(ctx, "No summary prompt for language, using fallback", zap.String("language", language))
	}

	out, err := chat.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompts.SummaryRequest(language, text)},
	}, summaryTemperature)
	if err != nil {
		return "", fmt.Errorf("summary request failed: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", domain.ErrInvalidSummary
	}

	if utf8.RuneCountInString(out) >= utf8.RuneCountInString(text) {
		logger.Warn(ctx, "Summary is not shorter than the original",
			zap.Int("original_length", utf8.RuneCountInString(text)),
			zap.Int("summary_length", utf8.RuneCountInString(out)))
	}

	return out, nil
}
