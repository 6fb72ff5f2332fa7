package domain

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline step where a run failed.
type Stage string

const (
	StageAcquire    Stage = "acquire"
	StageLanguage   Stage = "language"
	StageTranscribe Stage = "transcribe"
	StageTranslate  Stage = "translate"
	StageSummarize  Stage = "summarize"
	StageCompose    Stage = "compose"
	StageDeliver    Stage = "deliver"
	StageSettings   Stage = "settings"
	StageFilter     Stage = "filter"
)

var (
	ErrDecode             = errors.New("audio payload is not valid base64")
	ErrDownload           = errors.New("audio download failed")
	ErrMediaUnavailable   = errors.New("gateway did not return media")
	ErrEmptyTranscription = errors.New("transcription is empty or invalid")
	ErrInvalidTranslation = errors.New("translation is empty or invalid")
	ErrInvalidSummary     = errors.New("summary is empty or invalid")
	ErrNoCredentials      = errors.New("no credentials available")
	ErrDelivery           = errors.New("reply delivery failed")
)

// ProcessingError is a genuine pipeline failure tagged with its stage.
type ProcessingError struct {
	Stage          Stage
	ConversationID string
	Err            error
}

func NewProcessingError(stage Stage, conversationID string, err error) *ProcessingError {
	return &ProcessingError{Stage: stage, ConversationID: conversationID, Err: err}
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed at %s stage: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
