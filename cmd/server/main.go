package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
	"github.com/ClareAI/astra-voicenote-service/internal/handler"
	"github.com/ClareAI/astra-voicenote-service/internal/provider"
	"github.com/ClareAI/astra-voicenote-service/internal/repository"
	"github.com/ClareAI/astra-voicenote-service/pkg/logger"
	"github.com/ClareAI/astra-voicenote-service/pkg/redis"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Server represents the voice note webhook server
type Server struct {
	config         *config.ServiceConfig
	router         *mux.Router
	handlerManager *handler.HandlerManager
	redisSvc       *redis.RedisService
	repoManager    repository.RepositoryManager
}

// NewServer connects the backing stores and registers all routes
func NewServer(cfg *config.ServiceConfig) (*Server, error) {
	redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	repoManager, err := repository.NewRepositoryManager()
	if err != nil {
		redisSvc.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	router := mux.NewRouter()
	handlerManager := handler.NewHandlerManager(cfg, redisSvc, repoManager)
	handlerManager.EnableIntegrations(context.Background())
	handlerManager.SetupAllRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
		redisSvc:       redisSvc,
		repoManager:    repoManager,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	s.handlerManager.SeedProviderKeys(ctx, map[provider.Name][]string{
		provider.Groq:   splitAndTrimStrings(os.Getenv("GROQ_API_KEYS"), ","),
		provider.OpenAI: splitAndTrimStrings(os.Getenv("OPENAI_API_KEYS"), ","),
	})
	s.handlerManager.StartBackground(ctx)

	addr := fmt.Sprintf(":%s", s.config.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		WriteTimeout: s.config.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Base().Info("Starting server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Base().Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Close releases the backing stores
func (s *Server) Close() {
	s.handlerManager.Close()
	if err := s.repoManager.Close(); err != nil {
		logger.Base().Warn("Failed to close database", zap.Error(err))
	}
	if err := s.redisSvc.Close(); err != nil {
		logger.Base().Warn("Failed to close redis", zap.Error(err))
	}
}

// LoadConfigFromEnv loads the service configuration from the environment
func LoadConfigFromEnv() *config.ServiceConfig {
	return &config.ServiceConfig{
		Port:       getEnvOrDefault("PORT", config.DefaultPort),
		InstanceID: getDynamicInstanceID(),
		EnableCORS: getEnvAsBoolOrDefault("ENABLE_CORS", true),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsIntOrDefault("REDIS_DB", 0),

		AdminJWTSecret: getEnvOrDefault("ADMIN_JWT_SECRET", ""),

		GroqBaseURL:     getEnvOrDefault("GROQ_BASE_URL", config.DefaultGroqBaseURL),
		OpenAIBaseURL:   getEnvOrDefault("OPENAI_BASE_URL", config.DefaultOpenAIBaseURL),
		ProviderTimeout: getEnvAsDurationOrDefault("PROVIDER_TIMEOUT", config.DefaultProviderTimeout),

		TempDir:         getEnvOrDefault("AUDIO_TEMP_DIR", os.TempDir()),
		DownloadTimeout: getEnvAsDurationOrDefault("DOWNLOAD_TIMEOUT", config.DefaultDownloadTimeout),
		GatewayTimeout:  getEnvAsDurationOrDefault("GATEWAY_TIMEOUT", config.DefaultGatewayTimeout),
		ProcessTimeout:  getEnvAsDurationOrDefault("PROCESS_TIMEOUT", 0),

		LanguageCacheTTL: getEnvAsDurationOrDefault("LANGUAGE_CACHE_TTL", config.DefaultLanguageCacheTTL),

		FanoutTimeout:      getEnvAsDurationOrDefault("FANOUT_TIMEOUT", config.DefaultFanoutTimeout),
		FanoutConcurrency:  getEnvAsIntOrDefault("FANOUT_CONCURRENCY", config.DefaultFanoutConcurrency),
		RedeliveryEnabled:  getEnvAsBoolOrDefault("REDELIVERY_ENABLED", true),
		RedeliveryInterval: getEnvAsDurationOrDefault("REDELIVERY_INTERVAL", config.DefaultRedeliveryInterval),
		RedeliveryMax:      getEnvAsIntOrDefault("REDELIVERY_MAX_ATTEMPTS", config.DefaultRedeliveryMax),
		RedeliveryRPS:      getEnvAsIntOrDefault("REDELIVERY_RPS", config.DefaultRedeliveryRPS),

		ArchiveBucket:   getEnvOrDefault("AUDIO_ARCHIVE_BUCKET", ""),
		PubSubProjectID: getEnvOrDefault("PUBSUB_PROJECT_ID", ""),
		PubSubTopic:     getEnvOrDefault("PUBSUB_TOPIC", ""),
		PubSubPubID:     getEnvOrDefault("PUBSUB_PUB_ID", ""),
	}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or plain seconds ("90")
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// splitAndTrimStrings splits a string by delimiter and trims whitespace from each part
func splitAndTrimStrings(s, delimiter string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, delimiter)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// getDynamicInstanceID uses the hostname (pod name in K8s) and falls back to a timestamp-based ID.
func getDynamicInstanceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("voicenote-service-%d", time.Now().UnixNano())
}

func main() {
	// Load .env file for local development if it exists.
	// This will not override environment variables set by Helm/Docker
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		log.Printf("Failed to initialize zap logger, falling back to std log: %v", err)
	}
	defer logger.Sync()

	cfg := LoadConfigFromEnv()
	logger.Base().Info("Starting Astra voice note service", zap.String("instance_id", cfg.InstanceID))

	server, err := NewServer(cfg)
	if err != nil {
		logger.Base().Fatal("Failed to create server", zap.Error(err))
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Base().Info("Server initialized successfully",
		zap.String("port", cfg.Port),
		zap.String("instance_id", cfg.InstanceID))

	if err := server.Run(ctx); err != nil {
		logger.Base().Error("Server stopped with error", zap.Error(err))
	}
}
