package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	mu     sync.Mutex
	keys   []string
	offset int64
	failed []string
}

func (f *fakeKeys) Keys(_ context.Context, _ Name) ([]string, error) {
	return f.keys, nil
}

func (f *fakeKeys) NextOffset(_ context.Context, _ Name) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset++
	return f.offset, nil
}

func (f *fakeKeys) MarkFailed(_ context.Context, _ Name, key string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, key)
	return nil
}

// chatServer answers chat completions with the status configured for the bearer key.
func chatServer(t *testing.T, statusByKey map[string]int, seen *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		mu.Lock()
		*seen = append(*seen, key)
		mu.Unlock()

		status, ok := statusByKey[key]
		if !ok {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "failure for " + key, "type": "test_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "reply from " + key}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T, baseURL string, keys *fakeKeys) *Session {
	t.Helper()
	specs := map[Name]Spec{Groq: {Name: Groq, BaseURL: baseURL, ChatModel: "test-chat", TranscriptionModel: "test-stt"}}
	session, err := NewRotator(keys, specs, nil).NewSession(context.Background(), Groq)
	require.NoError(t, err)
	return session
}

func userMessage(text string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: text}}
}

func TestSession_RotatesPastRetryableFailures(t *testing.T) {
	var seen []string
	srv := chatServer(t, map[string]int{"k1": http.StatusTooManyRequests, "k2": http.StatusInternalServerError}, &seen)
	keys := &fakeKeys{keys: []string{"k1", "k2", "k3"}}
	session := newTestSession(t, srv.URL, keys)

	out, err := session.Chat(context.Background(), userMessage("hi"), 0.1)
	require.NoError(t, err)
	assert.Equal(t, "reply from k3", out)
	assert.Equal(t, []string{"k1", "k2", "k3"}, seen)
	assert.Equal(t, []string{"k1", "k2"}, keys.failed)
	assert.Equal(t, 1, session.Usable())
}

func TestSession_ExhaustionMakesOneAttemptPerKey(t *testing.T) {
	var seen []string
	srv := chatServer(t, map[string]int{
		"k1": http.StatusTooManyRequests,
		"k2": http.StatusUnauthorized,
		"k3": http.StatusServiceUnavailable,
	}, &seen)
	session := newTestSession(t, srv.URL, &fakeKeys{keys: []string{"k1", "k2", "k3"}})

	_, err := session.Chat(context.Background(), userMessage("hi"), 0.1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoCredentials)
	assert.Len(t, seen, 3)
	assert.Equal(t, 0, session.Usable())

	// An exhausted session makes no further requests.
	_, err = session.Chat(context.Background(), userMessage("again"), 0.1)
	assert.ErrorIs(t, err, domain.ErrNoCredentials)
	assert.Len(t, seen, 3)
}

func TestSession_NonRetryableFailsAfterOneAttempt(t *testing.T) {
	var seen []string
	srv := chatServer(t, map[string]int{"k1": http.StatusBadRequest}, &seen)
	keys := &fakeKeys{keys: []string{"k1", "k2"}}
	session := newTestSession(t, srv.URL, keys)

	_, err := session.Chat(context.Background(), userMessage("hi"), 0.1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoCredentials)
	assert.Equal(t, []string{"k1"}, seen)
	assert.Empty(t, keys.failed)

	code, ok := StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRotator_SessionsStartOnDifferentKeys(t *testing.T) {
	var seen []string
	srv := chatServer(t, nil, &seen)
	keys := &fakeKeys{keys: []string{"k1", "k2"}}

	for i := 0; i < 3; i++ {
		session := newTestSession(t, srv.URL, keys)
		_, err := session.Chat(context.Background(), userMessage("hi"), 0.1)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"k1", "k2", "k1"}, seen)
}

func TestRotator_NoKeys(t *testing.T) {
	specs := map[Name]Spec{Groq: {Name: Groq, BaseURL: "http://127.0.0.1:0"}}
	_, err := NewRotator(&fakeKeys{}, specs, nil).NewSession(context.Background(), Groq)
	assert.ErrorIs(t, err, domain.ErrNoCredentials)
}

func TestRotator_UnknownProvider(t *testing.T) {
	_, err := NewRotator(&fakeKeys{keys: []string{"k"}}, map[Name]Spec{}, nil).NewSession(context.Background(), OpenAI)
	assert.Error(t, err)
}

func TestSession_TranscribeUsesTranscriptionModel(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		model = r.FormValue("model")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer srv.Close()

	file := t.TempDir() + "/note.ogg"
	require.NoError(t, os.WriteFile(file, []byte("OggS"), 0o600))

	session := newTestSession(t, srv.URL, &fakeKeys{keys: []string{"k1"}})
	resp, err := session.Transcribe(context.Background(), openai.AudioRequest{FilePath: file})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, "test-stt", model)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 502}, true},
		{"invalid key", &openai.APIError{HTTPStatusCode: 401}, true},
		{"forbidden", &openai.RequestError{HTTPStatusCode: 403}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"not found", &openai.RequestError{HTTPStatusCode: 404}, false},
		{"canceled", context.Canceled, false},
		{"plain", assert.AnError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestParseName(t *testing.T) {
	n, err := ParseName(" GROQ ")
	require.NoError(t, err)
	assert.Equal(t, Groq, n)

	_, err = ParseName("anthropic")
	assert.Error(t, err)
}
