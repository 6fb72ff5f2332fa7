// Package pipeline turns one gateway webhook into a transcribed, optionally translated and
// summarized reply in the originating conversation.
package pipeline

import (
	"context"
	"errors"
	"time"

	httpadapter "github.com/ClareAI/astra-voicenote-service/internal/adapters/http"
	"github.com/ClareAI/astra-voicenote-service/internal/audio"
	"github.com/ClareAI/astra-voicenote-service/internal/compose"
	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/internal/language"
	"github.com/ClareAI/astra-voicenote-service/internal/provider"
	"github.com/ClareAI/astra-voicenote-service/internal/textproc"
	"github.com/ClareAI/astra-voicenote-service/internal/transcription"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/ClareAI/astra-voicenote-service/pkg/metrics"
	"go.uber.org/zap"
)

// SessionOpener starts a per-run provider session. *provider.Rotator implements it.
type SessionOpener interface {
	NewSession(ctx context.Context, name provider.Name) (*provider.Session, error)
}

// AudioSource materializes the audio of an event. *audio.Acquirer implements it.
type AudioSource interface {
	Acquire(ctx context.Context, event *domain.IncomingEvent) (*audio.Resource, error)
}

// ReplySender delivers the composed reply to the gateway.
type ReplySender interface {
	SendText(ctx context.Context, msg httpadapter.OutgoingMessage) error
}

// UsageRecorder counts processed messages. Failures never fail a run.
type UsageRecorder interface {
	RecordProcessed(ctx context.Context, conversationID string) error
	RecordLanguage(ctx context.Context, language string, fromMe, translated bool) error
}

// Service is the orchestrator of a single voice note run.
type Service struct {
	settings config.SettingsProvider
	access   AccessPolicy
	sessions SessionOpener
	audio    AudioSource
	resolver *language.Resolver
	sender   ReplySender
	usage    UsageRecorder

	archiver  AudioArchiver
	publisher EventPublisher

	runTimeout time.Duration
}

func NewService(
	settings config.SettingsProvider,
	access AccessPolicy,
	sessions SessionOpener,
	audio AudioSource,
	resolver *language.Resolver,
	sender ReplySender,
	usage UsageRecorder,
) *Service {
	return &Service{
		settings: settings,
		access:   access,
		sessions: sessions,
		audio:    audio,
		resolver: resolver,
		sender:   sender,
		usage:    usage,
	}
}

// WithRunTimeout bounds every run so the reply or its failure lands before the HTTP write deadline.
func (s *Service) WithRunTimeout(d time.Duration) *Service {
	s.runTimeout = d
	return s
}

// Process runs the filter and, when the event passes, the full pipeline. Skips are not errors.
// Any stage failure returns a *domain.ProcessingError and no reply is sent.
func (s *Service) Process(ctx context.Context, event *domain.IncomingEvent) (*Result, error) {
	ctx = logger.WithFields(ctx,
		zap.String("conversation_id", event.ConversationID),
		zap.String("message_id", event.MessageID))

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, s.fail(ctx, domain.StageSettings, event, err)
	}

	res, err := Filter(ctx, event, settings, s.access)
	if err != nil {
		return nil, s.fail(ctx, domain.StageFilter, event, err)
	}
	if res != nil {
		metrics.PipelineRuns.WithLabelValues("skipped").Inc()
		logger.Info(ctx, "Message skipped", zap.String("reason", string(res.Reason)))
		return res, nil
	}

	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	res, err = s.run(runCtx, event, settings)
	if err != nil {
		var perr *domain.ProcessingError
		if errors.As(err, &perr) {
			return nil, s.fail(ctx, perr.Stage, event, perr.Err)
		}
		return nil, s.fail(ctx, domain.StageCompose, event, err)
	}

	metrics.PipelineRuns.WithLabelValues("processed").Inc()
	logger.Info(ctx, "Voice note processed",
		zap.String("language", res.Language),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (s *Service) run(ctx context.Context, event *domain.IncomingEvent, settings *config.Settings) (*Result, error) {
	stageErr := func(stage domain.Stage, err error) error {
		return domain.NewProcessingError(stage, event.ConversationID, err)
	}

	name, err := provider.ParseName(settings.ActiveProvider)
	if err != nil {
		logger.Warn(ctx, "Invalid active provider, using default",
			zap.String("active_provider", settings.ActiveProvider))
		name = provider.Groq
	}
	session, err := s.sessions.NewSession(ctx, name)
	if err != nil {
		return nil, stageErr(domain.StageTranscribe, err)
	}

	resource, err := s.audio.Acquire(ctx, event)
	if err != nil {
		return nil, stageErr(domain.StageAcquire, err)
	}
	defer func() {
		if err := resource.Release(); err != nil {
			logger.Warn(ctx, "Failed to release audio", zap.String("path", resource.Path), zap.Error(err))
		}
	}()
	archiveURI := s.archive(ctx, event, resource.Path)

	resolution := s.resolver.Resolve(ctx, language.Request{
		ConversationID: event.ConversationID,
		FromMe:         event.FromMe,
		AutoDetect:     settings.AutoDetectLanguage,
		SystemLanguage: settings.SystemLanguage,
		Chat:           session,
		Preliminary: func(ctx context.Context) (string, error) {
			r, err := transcription.Transcribe(ctx, session, resource.Path, transcription.Options{})
			if err != nil {
				return "", err
			}
			return r.Text, nil
		},
	})

	transcript, err := transcription.Transcribe(ctx, session, resource.Path, transcription.Options{
		Language:   resolution.TranscriptionLanguage,
		Timestamps: settings.TimestampsEnabled,
	})
	if err != nil {
		return nil, stageErr(domain.StageTranscribe, err)
	}

	text := transcript.Text
	if resolution.NeedsTranslation() {
		text, err = textproc.Translate(ctx, session, text, resolution.TranscriptionLanguage, resolution.TargetLanguage)
		if err != nil {
			return nil, stageErr(domain.StageTranslate, err)
		}
	}

	var summary string
	if textproc.NeedsSummary(settings.OutputMode, text, settings.CharacterLimit) {
		summary, err = textproc.Summarize(ctx, session, text, resolution.TargetLanguage)
		if err != nil {
			return nil, stageErr(domain.StageSummarize, err)
		}
	}

	reply := compose.Compose(compose.FromSettings(settings, text, summary))
	if reply == "" {
		return nil, stageErr(domain.StageCompose, errors.New("composed reply is empty"))
	}

	err = s.sender.SendText(ctx, httpadapter.OutgoingMessage{
		ServerURL: event.ServerURL,
		Instance:  event.Instance,
		APIKey:    event.APIKey,
		Number:    event.ConversationID,
		Text:      reply,
		QuotedID:  event.MessageID,
	})
	if err != nil {
		return nil, stageErr(domain.StageDeliver, err)
	}

	s.recordUsage(ctx, event, resolution)
	s.publish(ctx, newProcessedNote(event, string(name), resolution, summary != "", archiveURI))

	if settings.DebugMode {
		logger.Info(ctx, "Debug run details",
			zap.String("provider", string(name)),
			zap.String("language_source", string(resolution.Source)),
			zap.String("transcription_language", resolution.TranscriptionLanguage),
			zap.String("target_language", resolution.TargetLanguage),
			zap.Bool("summarized", summary != ""),
			zap.Int("reply_length", len(reply)))
	}

	return &Result{Message: "Audio processed successfully", Reply: reply, Language: resolution.TargetLanguage}, nil
}

func (s *Service) recordUsage(ctx context.Context, event *domain.IncomingEvent, resolution *language.Resolution) {
	if s.usage == nil {
		return
	}
	if err := s.usage.RecordProcessed(ctx, event.ConversationID); err != nil {
		logger.Warn(ctx, "Failed to record usage", zap.Error(err))
	}
	if err := s.usage.RecordLanguage(ctx, resolution.TargetLanguage, event.FromMe, resolution.NeedsTranslation()); err != nil {
		logger.Warn(ctx, "Failed to record language usage", zap.Error(err))
	}
}

func (s *Service) fail(ctx context.Context, stage domain.Stage, event *domain.IncomingEvent, err error) error {
	metrics.PipelineRuns.WithLabelValues("failed").Inc()
	logger.Error(ctx, "Voice note processing failed",
		zap.String("stage", string(stage)),
		zap.Error(err))
	return domain.NewProcessingError(stage, event.ConversationID, err)
}
