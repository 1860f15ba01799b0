package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mrrustybutter/orchestrator/internal/models"
)

// Config holds all application configuration
type Config struct {
	Port string

	// Queue concurrency limits
	QueueConcurrency      int // general task queue
	VoiceQueueConcurrency int // serialized voice queue

	// Provider call timeouts
	ProviderTimeout    time.Duration // chat completion calls
	ProbeTimeout       time.Duration // health-check probes
	CodingAgentTimeout time.Duration // coding-agent process runs

	// External collaborators
	ToolServerURL  string
	MemoryURL      string
	AudioURL       string
	DefaultVoiceID string

	// Providers file
	ProvidersPath string

	// Event history retention (terminal events older than this are
	// archived to sqlite and evicted from memory)
	HistoryRetention time.Duration
	ArchivePath      string

	// Optional Redis mirror for status notifications
	RedisURL string

	// Provider health re-probe interval
	HealthCheckInterval time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "3100"),

		QueueConcurrency:      getIntEnv("QUEUE_CONCURRENCY", 5),
		VoiceQueueConcurrency: getIntEnv("VOICE_QUEUE_CONCURRENCY", 1),

		ProviderTimeout:    getDurationEnv("PROVIDER_TIMEOUT", 120*time.Second),
		ProbeTimeout:       getDurationEnv("PROBE_TIMEOUT", 10*time.Second),
		CodingAgentTimeout: getDurationEnv("CODING_AGENT_TIMEOUT", 10*time.Minute),

		ToolServerURL:  getEnv("TOOL_SERVER_URL", "http://localhost:3200"),
		MemoryURL:      getEnv("MEMORY_URL", "http://localhost:3300"),
		AudioURL:       getEnv("AUDIO_URL", "http://localhost:3400"),
		DefaultVoiceID: getEnv("DEFAULT_VOICE_ID", "Au8OOcCmvsCaQpmULvvQ"),

		ProvidersPath: getEnv("PROVIDERS_PATH", "providers.json"),

		HistoryRetention: getDurationEnv("HISTORY_RETENTION", 1*time.Hour),
		ArchivePath:      getEnv("ARCHIVE_PATH", "events.db"),

		RedisURL: getEnv("REDIS_URL", ""),

		HealthCheckInterval: getDurationEnv("HEALTH_CHECK_INTERVAL", 5*time.Minute),
	}
}

// LoadProviders loads providers configuration from JSON file
func LoadProviders(filePath string) (*models.ProvidersConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var config models.ProvidersConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse providers JSON: %w", err)
	}

	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
