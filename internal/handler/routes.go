package handler

import (
	"context"
	"net/http"
	"time"

	httpadapter "github.com/ClareAI/astra-voicenote-service/internal/adapters/http"
	"github.com/ClareAI/astra-voicenote-service/internal/audio"
	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/core/task"
	"github.com/ClareAI/astra-voicenote-service/internal/language"
	"github.com/ClareAI/astra-voicenote-service/internal/provider"
	"github.com/ClareAI/astra-voicenote-service/internal/repository"
	"github.com/ClareAI/astra-voicenote-service/internal/services/fanout"
	"github.com/ClareAI/astra-voicenote-service/internal/services/pipeline"
	"github.com/ClareAI/astra-voicenote-service/internal/store"
	"github.com/ClareAI/astra-voicenote-service/pkg/gcs"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/ClareAI/astra-voicenote-service/pkg/metrics"
	"github.com/ClareAI/astra-voicenote-service/pkg/pubsub"
	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandlerManager manages all handlers and the services behind them
type HandlerManager struct {
	config      *config.ServiceConfig
	redisSvc    *redis.RedisService
	repoManager repository.RepositoryManager
	taskBus     task.Bus

	settings  *store.SettingsStore
	keys      *store.KeyStore
	languages *store.LanguageStore
	access    *store.AccessStore
	usage     *store.UsageStore

	acquirer    *audio.Acquirer
	pipeline    *pipeline.Service
	dispatcher  *fanout.Dispatcher
	redeliverer *fanout.Redeliverer

	archive   *gcs.GCSClient
	publisher *pubsub.PubSubService
}

// NewHandlerManager wires the stores, the pipeline and the fan-out services
func NewHandlerManager(cfg *config.ServiceConfig, redisSvc *redis.RedisService, repoManager repository.RepositoryManager) *HandlerManager {
	settings := store.NewSettingsStore(redisSvc)
	keys := store.NewKeyStore(redisSvc)
	languages := store.NewLanguageStore(redisSvc, cfg.LanguageCacheTTL)
	access := store.NewAccessStore(redisSvc)
	usage := store.NewUsageStore(redisSvc)

	gateway := httpadapter.NewGatewayClient(cfg.GatewayTimeout)
	acquirer := audio.NewAcquirer(cfg.TempDir, cfg.DownloadTimeout, gateway)
	rotator := provider.NewRotator(keys, provider.DefaultSpecs(cfg), &http.Client{Timeout: cfg.ProviderTimeout})

	svc := pipeline.NewService(settings, access, rotator, acquirer, language.NewResolver(languages), gateway, usage).
		WithRunTimeout(cfg.RunTimeout())

	dispatcher := fanout.NewDispatcher(repoManager.Webhook(), repoManager.FailedDelivery(), cfg.FanoutTimeout, cfg.FanoutConcurrency)

	hm := &HandlerManager{
		config:      cfg,
		redisSvc:    redisSvc,
		repoManager: repoManager,
		settings:    settings,
		keys:        keys,
		languages:   languages,
		access:      access,
		usage:       usage,
		acquirer:    acquirer,
		pipeline:    svc,
		dispatcher:  dispatcher,
	}

	if cfg.RedeliveryEnabled {
		hm.taskBus = task.NewRedisBus(redisSvc)
		hm.redeliverer = fanout.NewRedeliverer(dispatcher, fanout.RedeliveryConfig{
			Interval:    cfg.RedeliveryInterval,
			MaxAttempts: cfg.RedeliveryMax,
			RPS:         cfg.RedeliveryRPS,
		})
	}

	logger.Base().Info("handler manager initialized",
		zap.Bool("redelivery_enabled", cfg.RedeliveryEnabled),
		zap.Int("fanout_concurrency", cfg.FanoutConcurrency))
	return hm
}

// SeedProviderKeys stores keys from the environment for providers that have none yet
func (hm *HandlerManager) SeedProviderKeys(ctx context.Context, keys map[provider.Name][]string) {
	for name, list := range keys {
		seeded, err := hm.keys.SeedIfEmpty(ctx, name, list)
		if err != nil {
			logger.Base().Warn("failed to seed provider keys", zap.String("provider", string(name)), zap.Error(err))
			continue
		}
		if seeded {
			logger.Base().Info("provider keys seeded from environment", zap.String("provider", string(name)), zap.Int("count", len(list)))
		}
	}
}

// EnableIntegrations connects the optional audio archive and event stream.
// A failed connection is logged and leaves that integration off.
func (hm *HandlerManager) EnableIntegrations(ctx context.Context) {
	if hm.config.ArchiveBucket != "" {
		client, err := gcs.NewGCSClient(ctx, hm.config.ArchiveBucket)
		if err != nil {
			logger.Base().Error("Audio archive disabled", zap.Error(err))
		} else {
			hm.archive = client
			hm.pipeline.WithArchiver(client)
			logger.Base().Info("Audio archive enabled", zap.String("bucket", hm.config.ArchiveBucket))
		}
	}

	if hm.config.PubSubProjectID != "" && hm.config.PubSubTopic != "" {
		publisher, err := pubsub.NewPubSubService(ctx, &pubsub.PubSubConfig{
			ProjectID: hm.config.PubSubProjectID,
			TopicName: hm.config.PubSubTopic,
			PubID:     hm.config.PubSubPubID,
		})
		if err != nil {
			logger.Base().Error("Event stream disabled", zap.Error(err))
		} else {
			hm.publisher = publisher
			hm.pipeline.WithPublisher(publisher)
			logger.Base().Info("Event stream enabled", zap.String("topic", hm.config.PubSubTopic))
		}
	}
}

// Close releases the optional integration clients
func (hm *HandlerManager) Close() {
	if hm.archive != nil {
		if err := hm.archive.Close(); err != nil {
			logger.Base().Warn("Failed to close audio archive client", zap.Error(err))
		}
	}
	if hm.publisher != nil {
		if err := hm.publisher.Close(); err != nil {
			logger.Base().Warn("Failed to close pubsub client", zap.Error(err))
		}
	}
}

// StartBackground starts the audio janitor and, when enabled, the redelivery worker
func (hm *HandlerManager) StartBackground(ctx context.Context) {
	hm.acquirer.SweepStale(config.DefaultJanitorMaxAge)
	hm.acquirer.StartJanitor(ctx, config.DefaultJanitorInterval, config.DefaultJanitorMaxAge)

	if hm.redeliverer == nil {
		return
	}
	hm.redeliverer.Start(ctx)
	if err := hm.redeliverer.Listen(ctx, hm.taskBus); err != nil {
		logger.Base().Error("failed to subscribe to redelivery tasks", zap.Error(err))
	}
}

// SetupAllRoutes sets up all routes with middleware
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	if hm.config.EnableCORS {
		router.Use(CORSMiddleware)
	}
	router.Use(GlobalLoggingMiddleware)

	router.HandleFunc("/health", hm.HandleHealth).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	webhookHandler := NewVoicenoteWebhookHandler(hm.pipeline, hm.dispatcher)
	webhookHandler.SetupVoicenoteRoutes(router)

	hm.SetupAPIRoutes(router)

	logger.Base().Info("all application routes registered")
}

// SetupAPIRoutes sets up the admin API routes and middleware
func (hm *HandlerManager) SetupAPIRoutes(router *mux.Router) {
	// Preflight requests carry no token, so they are answered before the authenticated subrouter.
	if hm.config.EnableCORS {
		router.PathPrefix("/api/").HandlerFunc(handleCORS).Methods("OPTIONS")
	}

	apiRouter := router.PathPrefix("/api").Subrouter()

	apiRouter.Use(LoggingMiddleware)
	apiRouter.Use(JWTMiddleware(hm.config.AdminJWTSecret))
	apiRouter.Use(ValidationMiddleware)

	adminHandler := NewAdminHandler(hm.settings, hm.keys, hm.languages, hm.access, hm.usage)
	adminHandler.SetupAdminRoutes(apiRouter)

	// Subscribers receive every raw event including the gateway apikey, so registration needs a secret.
	if hm.config.AdminJWTSecret == "" {
		logger.Base().Warn("admin api registered without authentication (ADMIN_JWT_SECRET not set); webhook registry disabled")
		apiRouter.PathPrefix("/webhooks").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusForbidden, "webhook registry requires ADMIN_JWT_SECRET")
		})
		return
	}

	registryHandler := NewWebhookRegistryHandler(hm.repoManager, hm.taskBus)
	registryHandler.SetupWebhookRegistryRoutes(apiRouter)
	logger.Base().Info("admin api routes registered")
}

// HandleHealth reports whether Redis and the database are reachable
// GET /health
func (hm *HandlerManager) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"redis": "ok", "database": "ok"}
	status := http.StatusOK
	if err := hm.redisSvc.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := hm.repoManager.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":      overall,
		"instance_id": hm.config.InstanceID,
		"checks":      checks,
	})
}

// handleCORS handles CORS preflight requests for API routes
func handleCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.WriteHeader(http.StatusOK)
}
