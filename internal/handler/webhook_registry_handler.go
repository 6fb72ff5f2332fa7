package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ClareAI/astra-voicenote-service/internal/core/task"
	"github.com/ClareAI/astra-voicenote-service/internal/domain"
	"github.com/ClareAI/astra-voicenote-service/internal/repository"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const defaultFailureLimit = 50

// WebhookRegistryHandler manages the fan-out subscribers
type WebhookRegistryHandler struct {
	repos    repository.RepositoryManager
	webhooks repository.WebhookRepository
	failures repository.FailedDeliveryRepository
	taskBus  task.Bus
}

// NewWebhookRegistryHandler creates a new registry handler. A nil task bus disables manual redelivery.
func NewWebhookRegistryHandler(repos repository.RepositoryManager, taskBus task.Bus) *WebhookRegistryHandler {
	return &WebhookRegistryHandler{
		repos:    repos,
		webhooks: repos.Webhook(),
		failures: repos.FailedDelivery(),
		taskBus:  taskBus,
	}
}

// SetupWebhookRegistryRoutes sets up subscriber routes on the /api subrouter
func (h *WebhookRegistryHandler) SetupWebhookRegistryRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", h.ListWebhooks).Methods("GET")
	router.HandleFunc("/webhooks", h.CreateWebhook).Methods("POST")
	router.HandleFunc("/webhooks/{id}", h.DeleteWebhook).Methods("DELETE")
	router.HandleFunc("/webhooks/{id}/enabled", h.SetWebhookEnabled).Methods("PUT")
	router.HandleFunc("/webhooks/{id}/failures", h.ListFailures).Methods("GET")
	router.HandleFunc("/webhooks/{id}/redeliver", h.Redeliver).Methods("POST")
}

// CreateWebhook godoc
// @Summary Register a subscriber webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Param webhook body domain.CreateWebhookRequest true "Subscriber"
// @Success 201 {object} domain.WebhookRegistration
// @Failure 400 {object} map[string]string "Invalid URL"
// @Router /api/webhooks [post]
func (h *WebhookRegistryHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	u, err := url.ParseRequestURI(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	webhook, err := h.webhooks.Create(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Base().Info("Webhook registered", zap.String("webhook_id", webhook.ID), zap.String("url", webhook.URL))
	writeJSON(w, http.StatusCreated, webhook)
}

// ListWebhooks godoc
// @Summary List subscribers with delivery stats
// @Tags webhooks
// @Produce json
// @Success 200 {array} domain.WebhookRegistration
// @Router /api/webhooks [get]
func (h *WebhookRegistryHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.webhooks.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, webhooks)
}

// DeleteWebhook removes a subscriber and abandons its pending redeliveries in one transaction.
func (h *WebhookRegistryHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var abandoned int64
	err := h.repos.WithTx(r.Context(), func(ctx context.Context, tx repository.RepositoryManager) error {
		if err := tx.Webhook().Delete(ctx, id); err != nil {
			return err
		}
		n, err := tx.FailedDelivery().AbandonByWebhook(ctx, id, "webhook deleted")
		abandoned = n
		return err
	})
	if err != nil {
		writeRepositoryError(w, err, "Webhook not found")
		return
	}

	logger.Base().Info("Webhook removed", zap.String("webhook_id", id), zap.Int64("abandoned_deliveries", abandoned))
	w.WriteHeader(http.StatusNoContent)
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *WebhookRegistryHandler) SetWebhookEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.webhooks.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		writeRepositoryError(w, err, "Webhook not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": *req.Enabled})
}

// ListFailures godoc
// @Summary Failed deliveries of a subscriber, newest first
// @Tags webhooks
// @Produce json
// @Param id path string true "Webhook ID"
// @Param limit query int false "Max records (default 50)"
// @Success 200 {array} domain.FailedDeliveryRecord
// @Router /api/webhooks/{id}/failures [get]
func (h *WebhookRegistryHandler) ListFailures(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailureLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.failures.ListByWebhook(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Redeliver asks the redelivery workers to retry the pending deliveries of one subscriber now.
func (h *WebhookRegistryHandler) Redeliver(w http.ResponseWriter, r *http.Request) {
	if h.taskBus == nil {
		writeError(w, http.StatusServiceUnavailable, "redelivery is disabled")
		return
	}

	id := mux.Vars(r)["id"]
	if _, err := h.webhooks.GetByID(r.Context(), id); err != nil {
		writeRepositoryError(w, err, "Webhook not found")
		return
	}

	if err := h.taskBus.Publish(r.Context(), task.Task{Type: task.TaskTypeRedeliverWebhook, WebhookID: id}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func writeRepositoryError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
