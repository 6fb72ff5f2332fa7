package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/provider"
	"github.com/ClareAI/astra-voicenote-service/internal/store"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AdminHandler exposes the Redis-backed operator state: settings, provider keys,
// contact languages, access lists and usage stats.
type AdminHandler struct {
	settings  *store.SettingsStore
	keys      *store.KeyStore
	languages *store.LanguageStore
	access    *store.AccessStore
	usage     *store.UsageStore
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(settings *store.SettingsStore, keys *store.KeyStore, languages *store.LanguageStore, access *store.AccessStore, usage *store.UsageStore) *AdminHandler {
	return &AdminHandler{
		settings:  settings,
		keys:      keys,
		languages: languages,
		access:    access,
		usage:     usage,
	}
}

// SetupAdminRoutes sets up admin routes on the /api subrouter
func (h *AdminHandler) SetupAdminRoutes(router *mux.Router) {
	router.HandleFunc("/settings", h.GetSettings).Methods("GET")
	router.HandleFunc("/settings", h.UpdateSettings).Methods("PUT")

	router.HandleFunc("/keys/{provider}", h.ListKeys).Methods("GET")
	router.HandleFunc("/keys/{provider}", h.AddKey).Methods("POST")
	router.HandleFunc("/keys/{provider}/{index:[0-9]+}", h.RemoveKey).Methods("DELETE")

	router.HandleFunc("/contacts/languages", h.ListContactLanguages).Methods("GET")
	router.HandleFunc("/contacts/{contact}/language", h.SetContactLanguage).Methods("PUT")
	router.HandleFunc("/contacts/{contact}/language", h.DeleteContactLanguage).Methods("DELETE")

	router.HandleFunc("/access", h.GetAccessLists).Methods("GET")
	router.HandleFunc("/access/groups/{jid}", h.AllowGroup).Methods("POST")
	router.HandleFunc("/access/groups/{jid}", h.DisallowGroup).Methods("DELETE")
	router.HandleFunc("/access/blocked/{jid}", h.BlockUser).Methods("POST")
	router.HandleFunc("/access/blocked/{jid}", h.UnblockUser).Methods("DELETE")

	router.HandleFunc("/stats", h.GetStats).Methods("GET")
}

// GetSettings godoc
// @Summary Get runtime settings
// @Tags settings
// @Produce json
// @Success 200 {object} config.Settings
// @Router /api/settings [get]
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings godoc
// @Summary Update runtime settings
// @Description Accepts a partial object keyed by setting name. Unknown or invalid fields reject the whole update.
// @Tags settings
// @Accept json
// @Produce json
// @Success 200 {object} config.Settings
// @Failure 400 {object} map[string]string "Invalid setting"
// @Router /api/settings [put]
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	values := make(map[string]string, len(req))
	for field, v := range req {
		switch val := v.(type) {
		case string:
			values[field] = val
		case bool:
			values[field] = strconv.FormatBool(val)
		case float64:
			values[field] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid value for %q", field))
			return
		}
	}

	settings, err := h.settings.Update(r.Context(), values)
	if err != nil {
		var invalid *store.InvalidSettingError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, invalid.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Base().Info("Settings updated", zap.Int("fields", len(values)))
	writeJSON(w, http.StatusOK, settings)
}

// ListKeys godoc
// @Summary List masked provider keys
// @Tags keys
// @Produce json
// @Param provider path string true "groq or openai"
// @Success 200 {array} store.KeyInfo
// @Router /api/keys/{provider} [get]
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	name, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.List(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

type addKeyRequest struct {
	Key string `json:"key"`
}

func (h *AdminHandler) AddKey(w http.ResponseWriter, r *http.Request) {
	name, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	var req addKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if err := h.keys.Add(r.Context(), name, req.Key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Base().Info("Provider key added", zap.String("provider", string(name)))
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (h *AdminHandler) RemoveKey(w http.ResponseWriter, r *http.Request) {
	name, ok := providerFromPath(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	if err := h.keys.Remove(r.Context(), name, index); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Base().Info("Provider key removed", zap.String("provider", string(name)), zap.Int("index", index))
	w.WriteHeader(http.StatusNoContent)
}

func providerFromPath(w http.ResponseWriter, r *http.Request) (provider.Name, bool) {
	name, err := provider.ParseName(mux.Vars(r)["provider"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return name, true
}

func (h *AdminHandler) ListContactLanguages(w http.ResponseWriter, r *http.Request) {
	languages, err := h.languages.ContactLanguages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, languages)
}

type setLanguageRequest struct {
	Language string `json:"language"`
}

// SetContactLanguage godoc
// @Summary Set the manual language of a contact
// @Tags contacts
// @Accept json
// @Param contact path string true "Contact number without domain"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Unsupported language"
// @Router /api/contacts/{contact}/language [put]
func (h *AdminHandler) SetContactLanguage(w http.ResponseWriter, r *http.Request) {
	contact := mux.Vars(r)["contact"]

	var req setLanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !config.IsSupportedLanguage(req.Language) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported language %q", req.Language))
		return
	}

	if err := h.languages.SetContactLanguage(r.Context(), contact, req.Language); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contact": contact, "language": req.Language})
}

func (h *AdminHandler) DeleteContactLanguage(w http.ResponseWriter, r *http.Request) {
	if err := h.languages.DeleteContactLanguage(r.Context(), mux.Vars(r)["contact"]); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) GetAccessLists(w http.ResponseWriter, r *http.Request) {
	groups, err := h.access.AllowedGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	blocked, err := h.access.BlockedUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"allowed_groups": groups,
		"blocked_users":  blocked,
	})
}

func (h *AdminHandler) AllowGroup(w http.ResponseWriter, r *http.Request) {
	h.updateAccess(w, r, h.access.AllowGroup)
}

func (h *AdminHandler) DisallowGroup(w http.ResponseWriter, r *http.Request) {
	h.updateAccess(w, r, h.access.DisallowGroup)
}

func (h *AdminHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	h.updateAccess(w, r, h.access.BlockUser)
}

func (h *AdminHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	h.updateAccess(w, r, h.access.UnblockUser)
}

func (h *AdminHandler) updateAccess(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, jid string) error) {
	jid := mux.Vars(r)["jid"]
	if err := apply(r.Context(), jid); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStats godoc
// @Summary Usage statistics
// @Tags stats
// @Produce json
// @Success 200 {object} store.Usage
// @Router /api/stats [get]
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	usage, err := h.usage.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
