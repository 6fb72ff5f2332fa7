package transcription

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTranscriber struct {
	resp openai.AudioResponse
	err  error
	req  openai.AudioRequest
}

func (s *stubTranscriber) Transcribe(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	s.req = req
	return s.resp, s.err
}

func verboseResponse(t *testing.T, raw string) openai.AudioResponse {
	t.Helper()
	var resp openai.AudioResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return resp
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00", FormatTimestamp(0))
	assert.Equal(t, "00:09", FormatTimestamp(9.99))
	assert.Equal(t, "01:05", FormatTimestamp(65.4))
	assert.Equal(t, "01:10", FormatTimestamp(70.9))
	assert.Equal(t, "61:01", FormatTimestamp(3661))
	assert.Equal(t, "00:00", FormatTimestamp(-3))
}

func TestFormatSegments(t *testing.T) {
	out := FormatSegments([]Segment{
		{Start: 65.4, End: 70.9, Text: " hello "},
		{Start: 71, End: 72, Text: "   "},
		{Start: 72, End: 75.2, Text: "world"},
	})
	assert.Equal(t, "[01:05 -> 01:10] hello\n[01:12 -> 01:15] world", out)
	assert.Empty(t, FormatSegments(nil))
}

func TestTranscribe_Plain(t *testing.T) {
	stub := &stubTranscriber{resp: openai.AudioResponse{Text: "olá mundo"}}
	res, err := Transcribe(context.Background(), stub, "/tmp/a.mp3", Options{Language: "pt"})
	require.NoError(t, err)
	assert.Equal(t, "olá mundo", res.Text)
	assert.False(t, res.HasTimestamps)
	assert.Equal(t, "pt", stub.req.Language)
	assert.Empty(t, stub.req.Format)
}

func TestTranscribe_Timestamps(t *testing.T) {
	stub := &stubTranscriber{resp: verboseResponse(t, `{
		"text": "hello world",
		"segments": [
			{"start": 65.4, "end": 70.9, "text": " hello"},
			{"start": 70.9, "end": 72.0, "text": ""}
		]
	}`)}
	res, err := Transcribe(context.Background(), stub, "/tmp/a.mp3", Options{Timestamps: true})
	require.NoError(t, err)
	assert.Equal(t, "[01:05 -> 01:10] hello", res.Text)
	assert.True(t, res.HasTimestamps)
	assert.Equal(t, openai.AudioResponseFormatVerboseJSON, stub.req.Format)
}

func TestTranscribe_EmptyResult(t *testing.T) {
	_, err := Transcribe(context.Background(), &stubTranscriber{resp: openai.AudioResponse{Text: " \n "}}, "/tmp/a.mp3", Options{})
	assert.ErrorIs(t, err, domain.ErrEmptyTranscription)

	_, err = Transcribe(context.Background(), &stubTranscriber{resp: openai.AudioResponse{Text: "x"}}, "/tmp/a.mp3", Options{Timestamps: true})
	assert.ErrorIs(t, err, domain.ErrEmptyTranscription)
}

func TestTranscribe_ProviderError(t *testing.T) {
	_, err := Transcribe(context.Background(), &stubTranscriber{err: domain.ErrNoCredentials}, "/tmp/a.mp3", Options{})
	assert.ErrorIs(t, err, domain.ErrNoCredentials)
}
