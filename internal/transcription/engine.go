// Package transcription converts an audio file to text through a provider session.
package transcription

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// Transcriber is the provider capability the engine needs. *provider.Session implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type Options struct {
	// Language is an ISO 639-1 hint; empty lets the provider detect it.
	Language   string
	Timestamps bool
}

type Result struct {
	Text          string
	HasTimestamps bool
}

// Segment is a timed span of a verbose transcription.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Transcribe sends the file at path to the provider and validates the result.
func Transcribe(ctx context.Context, client Transcriber, path string, opts Options) (*Result, error) {
	req := openai.AudioRequest{
		FilePath: path,
		Language: opts.Language,
	}
	if opts.Timestamps {
		req.Format = openai.AudioResponseFormatVerboseJSON
	}

	resp, err := client.Transcribe(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	text := resp.Text
	if opts.Timestamps {
		segments := make([]Segment, 0, len(resp.Segments))
		for _, s := range resp.Segments {
			segments = append(segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
		}
		text = FormatSegments(segments)
	}

	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyTranscription
	}

	return &Result{Text: text, HasTimestamps: opts.Timestamps}, nil
}

// FormatSegments renders one "[MM:SS -> MM:SS] text" line per non-empty segment.
func FormatSegments(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s -> %s] %s", FormatTimestamp(s.Start), FormatTimestamp(s.End), text))
	}
	return strings.Join(lines, "\n")
}

// FormatTimestamp renders seconds as zero-padded MM:SS, truncating sub-second precision.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	minutes := int(seconds / 60)
	rest := int(math.Mod(seconds, 60))
	return fmt.Sprintf("%02d:%02d", minutes, rest)
}
