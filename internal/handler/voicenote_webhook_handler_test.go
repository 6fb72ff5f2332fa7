package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/internal/services/pipeline"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	result *pipeline.Result
	err    error
	events []*domain.IncomingEvent
}

func (s *stubProcessor) Process(_ context.Context, event *domain.IncomingEvent) (*pipeline.Result, error) {
	s.events = append(s.events, event)
	return s.result, s.err
}

type stubForwarder struct {
	payloads [][]byte
}

func (s *stubForwarder) DispatchAsync(_ context.Context, payload []byte) {
	s.payloads = append(s.payloads, payload)
}

const audioEvent = `{
	"server_url": "https://gw.example.com/",
	"instance": "main",
	"apikey": "secret",
	"event": "messages.upsert",
	"data": {
		"key": {"id": "MSG1", "fromMe": false, "remoteJid": "5511999999999@s.whatsapp.net"},
		"messageType": "audioMessage",
		"message": {}
	}
}`

func serveWebhook(t *testing.T, processor Processor, forwarder Forwarder, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	router := mux.NewRouter()
	NewVoicenoteWebhookHandler(processor, forwarder).SetupVoicenoteRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/webhook/voicenote", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHandleWebhook_Processed(t *testing.T) {
	processor := &stubProcessor{result: &pipeline.Result{Message: "Audio processed successfully"}}
	forwarder := &stubForwarder{}

	rec, resp := serveWebhook(t, processor, forwarder, audioEvent)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Audio processed successfully", resp["message"])
	assert.Equal(t, false, resp["skipped"])

	require.Len(t, processor.events, 1)
	assert.Equal(t, "MSG1", processor.events[0].MessageID)
	assert.Equal(t, "https://gw.example.com", processor.events[0].ServerURL)

	require.Len(t, forwarder.payloads, 1)
	assert.JSONEq(t, audioEvent, string(forwarder.payloads[0]))
}

func TestHandleWebhook_Skipped(t *testing.T) {
	processor := &stubProcessor{result: &pipeline.Result{Skipped: true, Reason: pipeline.SkipNotAudio, Message: "Message is not audio"}}

	rec, resp := serveWebhook(t, processor, &stubForwarder{}, audioEvent)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["skipped"])
}

func TestHandleWebhook_ProcessingError(t *testing.T) {
	processor := &stubProcessor{err: domain.NewProcessingError(domain.StageTranscribe, "c", domain.ErrNoCredentials)}

	rec, resp := serveWebhook(t, processor, &stubForwarder{}, audioEvent)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal error while processing the audio", resp["error"])
}

func TestHandleWebhook_InvalidJSON(t *testing.T) {
	processor := &stubProcessor{}
	forwarder := &stubForwarder{}

	rec, _ := serveWebhook(t, processor, forwarder, `{"data": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, processor.events)
	assert.Empty(t, forwarder.payloads)
}

func TestHandleWebhook_MissingFieldsStillForwarded(t *testing.T) {
	processor := &stubProcessor{}
	forwarder := &stubForwarder{}

	rec, resp := serveWebhook(t, processor, forwarder, `{"event": "connection.update", "data": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "data.key")
	assert.Empty(t, processor.events)
	assert.Len(t, forwarder.payloads, 1)
}

func TestHandleWebhook_NilForwarder(t *testing.T) {
	processor := &stubProcessor{result: &pipeline.Result{Message: "ok"}}
	rec, _ := serveWebhook(t, processor, nil, audioEvent)
	assert.Equal(t, http.StatusOK, rec.Code)
}
