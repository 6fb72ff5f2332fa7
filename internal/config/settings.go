package config

import (
	"context"
	"strings"
)

// OutputMode selects which blocks the reply contains.
type OutputMode string

const (
	OutputBoth              OutputMode = "both"
	OutputSummaryOnly       OutputMode = "summary_only"
	OutputTranscriptionOnly OutputMode = "transcription_only"
	OutputSmart             OutputMode = "smart"
)

// ParseOutputMode maps a stored mode string to an OutputMode. Unknown values become OutputBoth.
func ParseOutputMode(s string) OutputMode {
	switch mode := OutputMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case OutputSummaryOnly, OutputTranscriptionOnly, OutputSmart:
		return mode
	default:
		return OutputBoth
	}
}

// ProcessMode restricts which conversations are processed.
type ProcessMode string

const (
	ProcessAll        ProcessMode = "all"
	ProcessGroupsOnly ProcessMode = "groups_only"
)

func ParseProcessMode(s string) ProcessMode {
	if ProcessMode(strings.ToLower(strings.TrimSpace(s))) == ProcessGroupsOnly {
		return ProcessGroupsOnly
	}
	return ProcessAll
}

// Settings is the typed snapshot of operator settings read once per pipeline run.
type Settings struct {
	OutputMode           OutputMode  `json:"output_mode"`
	SummaryHeader        string      `json:"summary_header"`
	TranscriptionHeader  string      `json:"transcription_header"`
	CharacterLimit       int         `json:"character_limit"`
	TimestampsEnabled    bool        `json:"use_timestamps"`
	BusinessMessage      string      `json:"business_message"`
	ProcessSelfMessages  bool        `json:"process_self_messages"`
	ProcessGroupMessages bool        `json:"process_group_messages"`
	ProcessMode          ProcessMode `json:"process_mode"`
	SystemLanguage       string      `json:"system_language"`
	AutoDetectLanguage   bool        `json:"auto_language_detection"`
	ActiveProvider       string      `json:"active_provider"`
	DebugMode            bool        `json:"debug_mode"`
}

// DefaultSettings are applied for any field missing from the store.
var DefaultSettings = Settings{
	OutputMode:           OutputBoth,
	SummaryHeader:        "🤖 *Resumo do áudio:*",
	TranscriptionHeader:  "🔊 *Transcrição do áudio:*",
	CharacterLimit:       500,
	TimestampsEnabled:    false,
	BusinessMessage:      "*Impacte AI* Premium Services",
	ProcessSelfMessages:  true,
	ProcessGroupMessages: false,
	ProcessMode:          ProcessAll,
	SystemLanguage:       "pt",
	AutoDetectLanguage:   false,
	ActiveProvider:       "groq",
	DebugMode:            false,
}

// SettingsProvider loads the current settings snapshot.
type SettingsProvider interface {
	Load(ctx context.Context) (*Settings, error)
}
