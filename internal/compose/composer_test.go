package compose

import (
	"strings"
	"testing"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/stretchr/testify/assert"
)

func input(mode config.OutputMode, transcript, summary string) Input {
	return Input{
		Mode:                mode,
		Transcript:          transcript,
		Summary:             summary,
		SummaryHeader:       "S",
		TranscriptionHeader: "T",
		CharacterLimit:      500,
		BusinessMessage:     "B",
	}
}

func TestCompose(t *testing.T) {
	long := strings.Repeat("x", 600)

	tests := []struct {
		name string
		in   Input
		want string
	}{
		{"both", input(config.OutputBoth, "hello", "hi"), "S\n\nhi\n\nT\n\nhello\n\nB"},
		{"both without summary", input(config.OutputBoth, "hello", ""), "T\n\nhello\n\nB"},
		{"summary only", input(config.OutputSummaryOnly, "hello", "hi"), "S\n\nhi\n\nB"},
		{"summary only without summary", input(config.OutputSummaryOnly, "hello", ""), "B"},
		{"transcription only", input(config.OutputTranscriptionOnly, "hello", "hi"), "T\n\nhello\n\nB"},
		{"smart short", input(config.OutputSmart, "hello", ""), "T\n\nhello\n\nB"},
		{"smart long", input(config.OutputSmart, long, "sum"), "S\n\nsum\n\nB"},
		{"smart long without summary", input(config.OutputSmart, long, ""), "B"},
		{"unknown mode behaves as both", input(config.OutputMode("weird"), "hello", "hi"), "S\n\nhi\n\nT\n\nhello\n\nB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compose(tt.in))
		})
	}
}

func TestCompose_BusinessMessageAlwaysLast(t *testing.T) {
	out := Compose(input(config.OutputBoth, "hello", "hi"))
	assert.True(t, strings.HasSuffix(out, "\n\nB"))
}

func TestCompose_SmartLimitIsExclusive(t *testing.T) {
	exact := strings.Repeat("y", 500)
	assert.Equal(t, "T\n\n"+exact+"\n\nB", Compose(input(config.OutputSmart, exact, "sum")))
}

func TestFromSettings(t *testing.T) {
	s := config.DefaultSettings
	in := FromSettings(&s, "t", "s")
	assert.Equal(t, config.OutputBoth, in.Mode)
	assert.Equal(t, s.SummaryHeader, in.SummaryHeader)
	assert.Equal(t, 500, in.CharacterLimit)
	assert.Equal(t, s.BusinessMessage, in.BusinessMessage)
}
