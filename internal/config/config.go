package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port              int
	NatsURL           string
	NatsToken         string
	DatabaseURL       string
	SQLitePath        string
	LogLevel          string
	Provider          string
	AnthropicAPIKey   string
	AnthropicModel    string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	GenerationTimeout time.Duration
	MaxTokens         int
	Temperature       float64
	APIToken          string
	TranscriptSubject string
	Tracing           bool
	ShutdownTimeout   time.Duration
	WebSocketOrigins  []string
	SlackBotToken     string
	SlackChannel      string
}

func Load() Config {
	return Config{
		Port:              envInt("CLOSER_PORT", 8760),
		NatsURL:           envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:         envStr("NATS_TOKEN", ""),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		SQLitePath:        envStr("CLOSER_SQLITE_PATH", "closer.db"),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		Provider:          strings.ToLower(envStr("CLOSER_GENERATION_PROVIDER", "anthropic")),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    envStr("CLOSER_MODEL", "claude-sonnet-4-20250514"),
		OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     envStr("OPENAI_BASE_URL", ""),
		OpenAIModel:       envStr("OPENAI_MODEL", "gpt-4o-mini"),
		GenerationTimeout: envDuration("CLOSER_GENERATION_TIMEOUT", 10*time.Second),
		MaxTokens:         envInt("CLOSER_MAX_TOKENS", 1024),
		Temperature:       envFloat("CLOSER_TEMPERATURE", 0.7),
		APIToken:          envStr("CLOSER_API_TOKEN", ""),
		TranscriptSubject: envStr("CLOSER_TRANSCRIPT_SUBJECT", "closer.transcript.event"),
		Tracing:           envBool("CLOSER_TRACING", false),
		ShutdownTimeout:   envDuration("CLOSER_SHUTDOWN_TIMEOUT", 10*time.Second),
		WebSocketOrigins:  envList("CLOSER_WS_ORIGINS"),
		SlackBotToken:     envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:      envStr("SLACK_DEBRIEF_CHANNEL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("15s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a comma-separated value, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
