// Package compose assembles the reply text sent back to the conversation.
package compose

import (
	"strings"
	"unicode/utf8"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
)

const separator = "\n\n"

// Input carries everything the reply is built from.
type Input struct {
	Mode                config.OutputMode
	Transcript          string
	Summary             string
	SummaryHeader       string
	TranscriptionHeader string
	CharacterLimit      int
	BusinessMessage     string
}

// FromSettings fills the presentation fields of an Input from a settings snapshot.
func FromSettings(s *config.Settings, transcript, summary string) Input {
	return Input{
		Mode:                s.OutputMode,
		Transcript:          transcript,
		Summary:             summary,
		SummaryHeader:       s.SummaryHeader,
		TranscriptionHeader: s.TranscriptionHeader,
		CharacterLimit:      s.CharacterLimit,
		BusinessMessage:     s.BusinessMessage,
	}
}

// Compose joins the blocks selected by the output mode, followed by the business message.
func Compose(in Input) string {
	summaryBlock := block(in.SummaryHeader, in.Summary)
	transcriptBlock := block(in.TranscriptionHeader, in.Transcript)

	var parts []string
	switch config.ParseOutputMode(string(in.Mode)) {
	case config.OutputSmart:
		if utf8.RuneCountInString(in.Transcript) > in.CharacterLimit {
			if in.Summary != "" {
				parts = append(parts, summaryBlock)
			}
		} else {
			parts = append(parts, transcriptBlock)
		}
	case config.OutputSummaryOnly:
		if in.Summary != "" {
			parts = append(parts, summaryBlock)
		}
	case config.OutputTranscriptionOnly:
		parts = append(parts, transcriptBlock)
	default:
		if in.Summary != "" {
			parts = append(parts, summaryBlock)
		}
		parts = append(parts, transcriptBlock)
	}

	if in.BusinessMessage != "" {
		parts = append(parts, in.BusinessMessage)
	}
	return strings.Join(parts, separator)
}

func block(header, body string) string {
	return header + separator + body
}
