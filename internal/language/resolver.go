// Package language decides which language a voice note is transcribed in and which
// language the reply is written in.
package language

import (
	"context"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source records which rule produced a resolution.
type Source string

const (
	SourceManual   Source = "manual"
	SourceCache    Source = "cache"
	SourceDetected Source = "detected"
	SourceDefault  Source = "default"
)

// Preferences persists manual contact languages and cached detections.
type Preferences interface {
	ContactLanguage(ctx context.Context, contact string) (string, error)
	SetContactLanguage(ctx context.Context, contact, language string) error
	CachedLanguage(ctx context.Context, contact string) (string, error)
	CacheLanguage(ctx context.Context, contact, language string) error
}

// Request carries the per-run inputs of a resolution.
type Request struct {
	ConversationID string
	FromMe         bool
	AutoDetect     bool
	SystemLanguage string

	// Chat and Preliminary are only used when a fresh detection is needed.
	Chat        Chatter
	Preliminary func(ctx context.Context) (string, error)
}

type Resolution struct {
	TranscriptionLanguage string
	TargetLanguage        string
	ContactLanguage       string
	Source                Source
}

// NeedsTranslation reports whether the transcript must be rewritten into the target language.
func (r *Resolution) NeedsTranslation() bool {
	return r.TranscriptionLanguage != r.TargetLanguage
}

type Resolver struct {
	prefs  Preferences
	flight singleflight.Group
}

func NewResolver(prefs Preferences) *Resolver {
	return &Resolver{prefs: prefs}
}

// Resolve applies manual preference, cached detection, fresh detection and system default in that order.
// Store and detection failures are logged and fall through to the next rule.
func (r *Resolver) Resolve(ctx context.Context, req Request) *Resolution {
	contactLanguage, source := r.contactLanguage(ctx, req)

	res := &Resolution{
		TranscriptionLanguage: req.SystemLanguage,
		TargetLanguage:        req.SystemLanguage,
		ContactLanguage:       contactLanguage,
		Source:                source,
	}
	if contactLanguage != "" {
		res.TranscriptionLanguage = contactLanguage
		if req.FromMe {
			res.TargetLanguage = contactLanguage
		}
	}

	logger.Debug(ctx, "Language resolved",
		zap.String("transcription_language", res.TranscriptionLanguage),
		zap.String("target_language", res.TargetLanguage),
		zap.String("contact_language", res.ContactLanguage),
		zap.String("source", string(res.Source)))
	return res
}

func (r *Resolver) contactLanguage(ctx context.Context, req Request) (string, Source) {
	if !domain.IsPrivateConversation(req.ConversationID) {
		return "", SourceDefault
	}
	contact := domain.ContactID(req.ConversationID)

	lang, err := r.prefs.ContactLanguage(ctx, contact)
	if err != nil {
		logger.Warn(ctx, "Failed to read contact language", zap.String("contact", contact), zap.Error(err))
	} else if lang != "" {
		return lang, SourceManual
	}

	if !req.AutoDetect {
		return "", SourceDefault
	}

	lang, err = r.prefs.CachedLanguage(ctx, contact)
	if err != nil {
		logger.Warn(ctx, "Failed to read cached language", zap.String("contact", contact), zap.Error(err))
	} else if lang != "" {
		return lang, SourceCache
	}

	if req.FromMe || req.Chat == nil || req.Preliminary == nil {
		return "", SourceDefault
	}

	lang, err = r.detect(ctx, contact, req)
	if err != nil {
		logger.Warn(ctx, "Language detection failed, using system language",
			zap.String("contact", contact), zap.Error(err))
		return "", SourceDefault
	}
	return lang, SourceDetected
}

// detect collapses concurrent detections of the same contact into one provider round trip.
func (r *Resolver) detect(ctx context.Context, contact string, req Request) (string, error) {
	v, err, _ := r.flight.Do(contact, func() (interface{}, error) {
		text, err := req.Preliminary(ctx)
		if err != nil {
			return "", err
		}
		lang, err := Detect(ctx, req.Chat, text)
		if err != nil {
			return "", err
		}

		if err := r.prefs.CacheLanguage(ctx, contact, lang); err != nil {
			logger.Warn(ctx, "Failed to cache detected language", zap.String("contact", contact), zap.Error(err))
		}
		if err := r.prefs.SetContactLanguage(ctx, contact, lang); err != nil {
			logger.Warn(ctx, "Failed to store detected language", zap.String("contact", contact), zap.Error(err))
		}

		logger.Info(ctx, "Language detected", zap.String("contact", contact), zap.String("language", lang))
		return lang, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
