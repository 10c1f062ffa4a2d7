// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr string
	Env      string

	// APIToken is the shared bearer token required on every inbound
	// command. Requests are rejected if it is unset.
	APIToken string

	// DatabaseURL is the target for DATABASE_OPERATION steps. It is
	// not a state store; runner state lives in memory.
	DatabaseURL string

	// WebhookSecret signs terminal callback payloads.
	WebhookSecret string

	// EditorCLI is the binary invoked by EXTERNAL_TOOL steps.
	EditorCLI string

	// RateLimitPerMin bounds authenticated requests per source host.
	RateLimitPerMin int

	MaxConcurrent int
	AutoRetry     bool
	MaxRetries    int
	RetryDelay    time.Duration
	StepTimeout   time.Duration
	PromptTimeout time.Duration
}

func Load() Config {
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		Env:             getenv("ENV", "dev"),
		APIToken:        getenv("API_TOKEN", ""),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		WebhookSecret:   getenv("WEBHOOK_SECRET", ""),
		EditorCLI:       getenv("EDITOR_CLI", "code"),
		RateLimitPerMin: getenvInt("RATE_LIMIT_PER_MIN", 120),
		MaxConcurrent:   getenvInt("MAX_CONCURRENT", 3),
		AutoRetry:       getenvBool("AUTO_RETRY", true),
		MaxRetries:      getenvInt("MAX_RETRIES", 3),
		RetryDelay:      getenvDuration("RETRY_DELAY", 5*time.Second),
		StepTimeout:     getenvDuration("STEP_TIMEOUT", 10*time.Minute),
		PromptTimeout:   getenvDuration("PROMPT_TIMEOUT", time.Hour),
	}
}

func getenv(key, defaultValue string) string {
	v := os.Getenv(key)
	if v != "" {
		return v
	}
	return defaultValue
}

func getenvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getenvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
