package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/internal/services/pipeline"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxWebhookBody = 10 << 20

// Processor runs the voice note pipeline for one event.
type Processor interface {
	Process(ctx context.Context, event *domain.IncomingEvent) (*pipeline.Result, error)
}

// Forwarder relays the raw body to subscriber webhooks without blocking the caller.
type Forwarder interface {
	DispatchAsync(ctx context.Context, payload []byte)
}

// VoicenoteWebhookHandler receives gateway events
type VoicenoteWebhookHandler struct {
	processor Processor
	forwarder Forwarder
}

// NewVoicenoteWebhookHandler creates a new gateway webhook handler
func NewVoicenoteWebhookHandler(processor Processor, forwarder Forwarder) *VoicenoteWebhookHandler {
	return &VoicenoteWebhookHandler{
		processor: processor,
		forwarder: forwarder,
	}
}

// SetupVoicenoteRoutes sets up the gateway webhook route
func (h *VoicenoteWebhookHandler) SetupVoicenoteRoutes(router *mux.Router) {
	router.HandleFunc("/webhook/voicenote", h.HandleWebhook).Methods("POST")
	logger.Base().Info("voicenote webhook routes registered")
}

// HandleWebhook handles a gateway event
// POST /webhook/voicenote
func (h *VoicenoteWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		logger.Base().Error("Failed to read request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Every well-formed event is forwarded, whether or not it is processed here.
	if h.forwarder != nil {
		h.forwarder.DispatchAsync(r.Context(), body)
	}

	event, err := domain.ParseIncomingEvent(body)
	if err != nil {
		var parseErr *domain.ParseError
		if errors.As(err, &parseErr) {
			logger.Base().Warn("Rejected webhook payload", zap.String("field", parseErr.Field), zap.String("reason", parseErr.Reason))
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger.Base().Info("Webhook received",
		zap.String("instance", event.Instance),
		zap.String("event", event.EventName),
		zap.String("message_type", event.MessageType),
		zap.String("conversation_id", event.ConversationID))

	result, err := h.processor.Process(r.Context(), event)
	if err != nil {
		// Details stay in the logs; the gateway only needs to know the run failed.
		writeError(w, http.StatusInternalServerError, "Internal error while processing the audio")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": result.Message,
		"skipped": result.Skipped,
	})
}
