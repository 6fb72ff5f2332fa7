package config

import (
	"time"
)

const (
	DefaultPort               = "8082"
	DefaultDownloadTimeout    = 30 * time.Second
	DefaultGatewayTimeout     = 30 * time.Second
	DefaultProviderTimeout    = 120 * time.Second
	DefaultFanoutTimeout      = 10 * time.Second
	DefaultFanoutConcurrency  = 8
	DefaultLanguageCacheTTL   = 24 * time.Hour
	DefaultRedeliveryInterval = time.Minute
	DefaultRedeliveryMax      = 5
	DefaultRedeliveryRPS      = 5
	DefaultJanitorInterval    = 10 * time.Minute
	DefaultJanitorMaxAge      = time.Hour

	// providerCallsPerRun is the worst case of one run: preliminary transcription,
	// detection, transcription, translation and summary.
	providerCallsPerRun = 5
	// replyAttemptsPerRun covers the formatted reply and its plain-text fallback.
	replyAttemptsPerRun = 2
	writeTimeoutMargin  = 15 * time.Second

	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// ServiceConfig holds the process configuration loaded from the environment at startup.
// Runtime behaviour that operators change while the service runs lives in Settings.
type ServiceConfig struct {
	Port       string
	InstanceID string
	EnableCORS bool

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Admin API; empty secret leaves /api open
	AdminJWTSecret string

	// Provider endpoints, overridable for proxies and tests
	GroqBaseURL     string
	OpenAIBaseURL   string
	ProviderTimeout time.Duration

	// Audio
	TempDir         string
	DownloadTimeout time.Duration
	GatewayTimeout  time.Duration
	// ProcessTimeout bounds one pipeline run; zero derives it from the timeouts above
	ProcessTimeout  time.Duration

	// Language
	LanguageCacheTTL time.Duration

	// Fan-out
	FanoutTimeout      time.Duration
	FanoutConcurrency  int
	RedeliveryEnabled  bool
	RedeliveryInterval time.Duration
	RedeliveryMax      int
	RedeliveryRPS      int

	// Optional integrations; empty values disable them
	ArchiveBucket   string
	PubSubProjectID string
	PubSubTopic     string
	PubSubPubID     string
}

// RunTimeout is the deadline of one pipeline run.
func (c *ServiceConfig) RunTimeout() time.Duration {
	if c.ProcessTimeout > 0 {
		return c.ProcessTimeout
	}
	return c.DownloadTimeout + providerCallsPerRun*c.ProviderTimeout + replyAttemptsPerRun*c.GatewayTimeout
}

// WriteTimeout leaves room after a run that hit its deadline to write the error response.
func (c *ServiceConfig) WriteTimeout() time.Duration {
	return c.RunTimeout() + writeTimeoutMargin
}
