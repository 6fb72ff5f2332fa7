package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/internal/language"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"go.uber.org/zap"
)

// EventProcessed is the event name of a completed run on the event stream.
const EventProcessed = "voicenote.processed"

// AudioArchiver keeps a copy of the inbound audio. *gcs.GCSClient implements it.
type AudioArchiver interface {
	ArchiveFile(ctx context.Context, objectPath, localPath string) (string, error)
}

// EventPublisher streams run outcomes to downstream consumers. *pubsub.PubSubService implements it.
type EventPublisher interface {
	PublishJSON(ctx context.Context, eventName string, v interface{}) error
}

// ProcessedNote describes a completed run. It carries no transcript text.
type ProcessedNote struct {
	ConversationID        string    `json:"conversation_id"`
	MessageID             string    `json:"message_id"`
	Instance              string    `json:"instance"`
	FromMe                bool      `json:"from_me"`
	Provider              string    `json:"provider"`
	TranscriptionLanguage string    `json:"transcription_language"`
	TargetLanguage        string    `json:"target_language"`
	LanguageSource        string    `json:"language_source"`
	Translated            bool      `json:"translated"`
	Summarized            bool      `json:"summarized"`
	ArchiveURI            string    `json:"archive_uri,omitempty"`
	ProcessedAt           time.Time `json:"processed_at"`
}

// WithArchiver enables audio archiving. Archive failures never fail a run.
func (s *Service) WithArchiver(a AudioArchiver) *Service {
	s.archiver = a
	return s
}

// WithPublisher enables the processed-note event stream. Publish failures never fail a run.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// ArchiveObjectPath lays archived audio out as YYYY/MM/DD/<contact>/<message id><ext>.
func ArchiveObjectPath(event *domain.IncomingEvent, localPath string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s%s",
		at.UTC().Format("2006/01/02"),
		domain.ContactID(event.ConversationID),
		event.MessageID,
		filepath.Ext(localPath))
}

func (s *Service) archive(ctx context.Context, event *domain.IncomingEvent, localPath string) string {
	if s.archiver == nil {
		return ""
	}
	uri, err := s.archiver.ArchiveFile(ctx, ArchiveObjectPath(event, localPath, time.Now()), localPath)
	if err != nil {
		logger.Warn(ctx, "Failed to archive audio", zap.Error(err))
		return ""
	}
	logger.Debug(ctx, "Archived audio", zap.String("uri", uri))
	return uri
}

func (s *Service) publish(ctx context.Context, note ProcessedNote) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(ctx, EventProcessed, note); err != nil {
		logger.Warn(ctx, "Failed to publish processed event", zap.Error(err))
	}
}

func newProcessedNote(event *domain.IncomingEvent, providerName string, resolution *language.Resolution, summarized bool, archiveURI string) ProcessedNote {
	return ProcessedNote{
		ConversationID:        event.ConversationID,
		MessageID:             event.MessageID,
		Instance:              event.Instance,
		FromMe:                event.FromMe,
		Provider:              providerName,
		TranscriptionLanguage: resolution.TranscriptionLanguage,
		TargetLanguage:        resolution.TargetLanguage,
		LanguageSource:        string(resolution.Source),
		Translated:            resolution.NeedsTranslation(),
		Summarized:            summarized,
		ArchiveURI:            archiveURI,
		ProcessedAt:           time.Now().UTC(),
	}
}
