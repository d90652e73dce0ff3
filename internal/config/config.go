package config

import (
	"os"
)

type Config struct {
	Port            string
	Environment     string
	SupabaseURL     string
	SupabaseDBURL   string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string
	// Generation configuration
	AnthropicAPIKey string
	DefaultModel    string
	// Per-user requests/minute for /api/ai endpoints. 0 disables limiting.
	AIRequestsPerMinute int
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	supabaseURL := getEnv("SUPABASE_URL", "")

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		SupabaseURL:     supabaseURL,
		SupabaseDBURL:   getEnv("SUPABASE_DB_URL", ""),
		SupabaseJWKSURL: supabaseURL + "/auth/v1/.well-known/jwks.json",
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:     getTablePrefix(env),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", defaultModelForEnv(env)),

		AIRequestsPerMinute: getEnvInt("AI_REQUESTS_PER_MINUTE", 20),
	}
}

// defaultModelForEnv picks a mock-provider default so dev and test never need
// real API keys.
func defaultModelForEnv(env string) string {
	if env == "prod" {
		return "claude-haiku-4-5-20251001"
	}
	return "lorem-fast"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return defaultValue
		}
		n = n*10 + int(r-'0')
	}
	return n
}
