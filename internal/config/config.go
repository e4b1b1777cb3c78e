package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/novahire/novahire/internal/billing"
)

// Config contains all runtime settings for the interview backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	LogJSON          bool
	LogDebug         bool

	DatabaseURL string

	AIProviderMode string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ChatModel      string
	MaxTokens      int
	Temperature    float64

	// ChatRateOverrides adds to or overrides the built-in per-model chat
	// pricing table, keyed by model ID, USD per 1M tokens.
	ChatRateOverrides map[string]billing.ModelRate

	// Conversation memory bounds. TruncateKeepExchanges is how many
	// user/assistant exchanges survive a context-overflow truncation.
	HistoryWindowExchanges int
	TruncateKeepExchanges  int

	// Difficulty progression tuning. Thresholds are normalized 0-1 scores.
	PromoteStreak    int
	PromoteThreshold float64
	DemoteStreak     int
	DemoteThreshold  float64
	SlowResponseSecs float64

	// Billing rates. Chat rates are per-model and live in the billing table;
	// these cover the speech and realtime dimensions.
	RateSTTPerMinute        float64
	RateTTSPer1KChars       float64
	RateRealtimeAudioInMin  float64
	RateRealtimeAudioOutMin float64
	RateRealtimeTextIn1K    float64
	RateRealtimeTextOut1K   float64

	ExplanationCacheTTL time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "novahire"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		AIProviderMode:   envOrDefault("AI_PROVIDER_MODE", "auto"),
		OpenAIAPIKey:     trimmedEnv("OPENAI_API_KEY"),
		OpenAIBaseURL:    trimmedEnv("OPENAI_BASE_URL"),
		ChatModel:        envOrDefault("AI_CHAT_MODEL", "gpt-4o-mini"),

		MaxTokens:   1024,
		Temperature: 0.7,

		HistoryWindowExchanges: 20,
		TruncateKeepExchanges:  5,

		PromoteStreak:    2,
		PromoteThreshold: 0.75,
		DemoteStreak:     3,
		DemoteThreshold:  0.35,
		SlowResponseSecs: 180,

		RateSTTPerMinute:        0.006,
		RateTTSPer1KChars:       0.015,
		RateRealtimeAudioInMin:  0.06,
		RateRealtimeAudioOutMin: 0.24,
		RateRealtimeTextIn1K:    0.01,
		RateRealtimeTextOut1K:   0.03,

		ShutdownTimeout:     15 * time.Second,
		ExplanationCacheTTL: 10 * time.Minute,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ExplanationCacheTTL, err = durationFromEnv("APP_EXPLANATION_CACHE_TTL", cfg.ExplanationCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.LogJSON, err = boolFromEnv("APP_LOG_JSON", cfg.LogJSON); err != nil {
		return Config{}, err
	}
	if cfg.LogDebug, err = boolFromEnv("APP_LOG_DEBUG", cfg.LogDebug); err != nil {
		return Config{}, err
	}
	if cfg.MaxTokens, err = intFromEnv("AI_MAX_TOKENS", cfg.MaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.Temperature, err = floatFromEnv("AI_TEMPERATURE", cfg.Temperature); err != nil {
		return Config{}, err
	}
	if cfg.HistoryWindowExchanges, err = intFromEnv("MEMORY_HISTORY_WINDOW", cfg.HistoryWindowExchanges); err != nil {
		return Config{}, err
	}
	if cfg.TruncateKeepExchanges, err = intFromEnv("MEMORY_TRUNCATE_KEEP", cfg.TruncateKeepExchanges); err != nil {
		return Config{}, err
	}
	if cfg.PromoteStreak, err = intFromEnv("PROGRESSION_PROMOTE_STREAK", cfg.PromoteStreak); err != nil {
		return Config{}, err
	}
	if cfg.PromoteThreshold, err = floatFromEnv("PROGRESSION_PROMOTE_THRESHOLD", cfg.PromoteThreshold); err != nil {
		return Config{}, err
	}
	if cfg.DemoteStreak, err = intFromEnv("PROGRESSION_DEMOTE_STREAK", cfg.DemoteStreak); err != nil {
		return Config{}, err
	}
	if cfg.DemoteThreshold, err = floatFromEnv("PROGRESSION_DEMOTE_THRESHOLD", cfg.DemoteThreshold); err != nil {
		return Config{}, err
	}
	if cfg.SlowResponseSecs, err = floatFromEnv("PROGRESSION_SLOW_RESPONSE_SECS", cfg.SlowResponseSecs); err != nil {
		return Config{}, err
	}
	if cfg.RateSTTPerMinute, err = floatFromEnv("BILLING_STT_PER_MINUTE", cfg.RateSTTPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.RateTTSPer1KChars, err = floatFromEnv("BILLING_TTS_PER_1K_CHARS", cfg.RateTTSPer1KChars); err != nil {
		return Config{}, err
	}
	if cfg.RateRealtimeAudioInMin, err = floatFromEnv("BILLING_REALTIME_AUDIO_IN_MIN", cfg.RateRealtimeAudioInMin); err != nil {
		return Config{}, err
	}
	if cfg.RateRealtimeAudioOutMin, err = floatFromEnv("BILLING_REALTIME_AUDIO_OUT_MIN", cfg.RateRealtimeAudioOutMin); err != nil {
		return Config{}, err
	}
	if cfg.RateRealtimeTextIn1K, err = floatFromEnv("BILLING_REALTIME_TEXT_IN_1K", cfg.RateRealtimeTextIn1K); err != nil {
		return Config{}, err
	}
	if cfg.RateRealtimeTextOut1K, err = floatFromEnv("BILLING_REALTIME_TEXT_OUT_1K", cfg.RateRealtimeTextOut1K); err != nil {
		return Config{}, err
	}
	if cfg.ChatRateOverrides, err = chatRatesFromEnv("BILLING_CHAT_RATES"); err != nil {
		return Config{}, err
	}

	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("AI_MAX_TOKENS must be positive")
	}
	if cfg.HistoryWindowExchanges <= 0 {
		return Config{}, fmt.Errorf("MEMORY_HISTORY_WINDOW must be positive")
	}
	if cfg.TruncateKeepExchanges <= 0 {
		return Config{}, fmt.Errorf("MEMORY_TRUNCATE_KEEP must be positive")
	}
	if cfg.PromoteStreak <= 0 || cfg.DemoteStreak <= 0 {
		return Config{}, fmt.Errorf("progression streak thresholds must be positive")
	}
	if cfg.PromoteThreshold <= cfg.DemoteThreshold {
		return Config{}, fmt.Errorf("PROGRESSION_PROMOTE_THRESHOLD must exceed PROGRESSION_DEMOTE_THRESHOLD")
	}
	rates := map[string]float64{
		"BILLING_STT_PER_MINUTE":         cfg.RateSTTPerMinute,
		"BILLING_TTS_PER_1K_CHARS":       cfg.RateTTSPer1KChars,
		"BILLING_REALTIME_AUDIO_IN_MIN":  cfg.RateRealtimeAudioInMin,
		"BILLING_REALTIME_AUDIO_OUT_MIN": cfg.RateRealtimeAudioOutMin,
		"BILLING_REALTIME_TEXT_IN_1K":    cfg.RateRealtimeTextIn1K,
		"BILLING_REALTIME_TEXT_OUT_1K":   cfg.RateRealtimeTextOut1K,
	}
	for name, rate := range rates {
		if rate < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", name)
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

// chatRatesFromEnv parses per-model chat pricing overrides from a
// comma-separated list of model=input:output entries, USD per 1M tokens.
func chatRatesFromEnv(key string) (map[string]billing.ModelRate, error) {
	v := trimmedEnv(key)
	if v == "" {
		return nil, nil
	}

	out := make(map[string]billing.ModelRate)
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		model, rates, ok := strings.Cut(entry, "=")
		model = strings.TrimSpace(model)
		if !ok || model == "" {
			return nil, fmt.Errorf("%s parse error: %q, expected model=input:output", key, entry)
		}
		inStr, outStr, ok := strings.Cut(rates, ":")
		if !ok {
			return nil, fmt.Errorf("%s parse error: %q, expected model=input:output", key, entry)
		}
		in, err := strconv.ParseFloat(strings.TrimSpace(inStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%s parse error: %w", key, err)
		}
		outRate, err := strconv.ParseFloat(strings.TrimSpace(outStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%s parse error: %w", key, err)
		}
		if in < 0 || outRate < 0 {
			return nil, fmt.Errorf("%s rates must not be negative", key)
		}
		out[model] = billing.ModelRate{InputPerMTok: in, OutputPerMTok: outRate}
	}
	return out, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
