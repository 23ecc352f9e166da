// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port                 string
	GRPCPort             string // empty disables the gRPC health server
	FrontendURL          string
	DBPath               string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	JournalRetention     time.Duration
	RateLimitPerMinute   int
	Dialogue             DialogueConfig
	Coach                CoachConfig
	ConversationLog      ConversationLogConfig
}

// DialogueConfig configures the chat-completion collaborator.
type DialogueConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// CoachConfig selects the copy deck and chart font.
type CoachConfig struct {
	Deck          string
	DeckPath      string
	ChartFontPath string
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		GRPCPort:             getEnv("GRPC_PORT", ""),
		FrontendURL:          getEnv("FRONTEND_URL", ""),
		DBPath:               getEnv("DB_PATH", "./data/coach.db"),
		SessionTTL:           getEnvDuration("SESSION_TTL", 60*time.Minute),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		JournalRetention:     getEnvDuration("JOURNAL_RETENTION", 30*24*time.Hour),
		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		Dialogue: DialogueConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
			Model:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:    getEnvDuration("DIALOGUE_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvInt("DIALOGUE_MAX_RETRIES", 1),
		},
		Coach: CoachConfig{
			Deck:          getEnv("COACH_DECK", "classic"),
			DeckPath:      getEnv("COACH_DECK_PATH", ""),
			ChartFontPath: getEnv("CHART_FONT_PATH", ""),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.GRPCPort != "" && c.GRPCPort == c.Port {
		return fmt.Errorf("GRPC_PORT must differ from PORT")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.JournalRetention <= 0 {
		return fmt.Errorf("JOURNAL_RETENTION must be > 0")
	}
	if strings.TrimSpace(c.Dialogue.APIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Dialogue.Timeout <= 0 {
		return fmt.Errorf("DIALOGUE_TIMEOUT must be > 0")
	}
	if c.Dialogue.MaxRetries < 0 || c.Dialogue.MaxRetries > 1 {
		return fmt.Errorf("DIALOGUE_MAX_RETRIES must be 0 or 1")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
