package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Path   string
	APIKey string
	Body   map[string]interface{}
}

func recordingServer(t *testing.T, status func(body map[string]interface{}) int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var recorded []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)

		mu.Lock()
		recorded = append(recorded, recordedRequest{Path: r.URL.Path, APIKey: r.Header.Get("apikey"), Body: body})
		mu.Unlock()

		code := status(body)
		w.WriteHeader(code)
		if code == http.StatusOK || code == http.StatusCreated {
			_, _ = w.Write([]byte(`{"key":{"id":"sent"}}`))
		} else {
			_, _ = w.Write([]byte(`{"error":"bad format"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &recorded
}

func outgoing(serverURL string) OutgoingMessage {
	return OutgoingMessage{
		ServerURL: serverURL,
		Instance:  "inst1",
		APIKey:    "secret",
		Number:    "5511@s.whatsapp.net",
		Text:      "reply text",
		QuotedID:  "MSG1",
	}
}

func TestSendText_LegacyAccepted(t *testing.T) {
	srv, recorded := recordingServer(t, func(map[string]interface{}) int { return http.StatusCreated })
	client := NewGatewayClient(time.Second)

	require.NoError(t, client.SendText(context.Background(), outgoing(srv.URL)))
	require.Len(t, *recorded, 1)

	req := (*recorded)[0]
	assert.Equal(t, "/message/sendText/inst1", req.Path)
	assert.Equal(t, "secret", req.APIKey)
	assert.Equal(t, "5511@s.whatsapp.net", req.Body["number"])
	assert.Equal(t, map[string]interface{}{"text": "reply text"}, req.Body["textMessage"])
	assert.Equal(t, map[string]interface{}{"delay": float64(1200), "presence": "composing", "linkPreview": false}, req.Body["options"])
}

func TestSendText_FallsBackToQuoted(t *testing.T) {
	srv, recorded := recordingServer(t, func(body map[string]interface{}) int {
		if _, legacy := body["textMessage"]; legacy {
			return http.StatusBadRequest
		}
		return http.StatusOK
	})
	client := NewGatewayClient(time.Second)

	require.NoError(t, client.SendText(context.Background(), outgoing(srv.URL)))
	require.Len(t, *recorded, 2)

	quoted := (*recorded)[1].Body
	assert.Equal(t, "reply text", quoted["text"])
	assert.Equal(t, map[string]interface{}{
		"key": map[string]interface{}{"remoteJid": "5511@s.whatsapp.net", "fromMe": false, "id": "MSG1"},
	}, quoted["quoted"])
}

func TestSendText_AllFormatsFail(t *testing.T) {
	srv, recorded := recordingServer(t, func(map[string]interface{}) int { return http.StatusInternalServerError })
	client := NewGatewayClient(time.Second)

	err := client.SendText(context.Background(), outgoing(srv.URL))
	assert.ErrorIs(t, err, domain.ErrDelivery)
	assert.Contains(t, err.Error(), "status 500")
	assert.Len(t, *recorded, 2)
}

func TestFetchBase64(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/getBase64FromMediaMessage/inst1", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"base64":"QUJD","mimetype":"audio/ogg"}`))
	}))
	defer srv.Close()

	client := NewGatewayClient(time.Second)
	event := &domain.IncomingEvent{ServerURL: srv.URL, Instance: "inst1", APIKey: "secret", MessageID: "MSG1"}

	b64, err := client.FetchBase64(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "QUJD", b64)
	assert.Equal(t, map[string]interface{}{
		"message":      map[string]interface{}{"key": map[string]interface{}{"id": "MSG1"}},
		"convertToMp4": false,
	}, got)
}

func TestFetchBase64_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chat/getBase64FromMediaMessage/empty" {
			_, _ = w.Write([]byte(`{"base64":""}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewGatewayClient(time.Second)

	_, err := client.FetchBase64(context.Background(), &domain.IncomingEvent{ServerURL: srv.URL, Instance: "missing"})
	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)

	_, err = client.FetchBase64(context.Background(), &domain.IncomingEvent{ServerURL: srv.URL, Instance: "empty"})
	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "h", truncate("héllo", 2))
	assert.Equal(t, "日", truncate("日本語", 4))
	assert.Equal(t, "", truncate("日本語", 2))

	body := strings.Repeat("ação ", 200)
	out := truncate(body, maxErrorBody)
	assert.LessOrEqual(t, len(out), maxErrorBody)
	assert.True(t, utf8.ValidString(out))
}
