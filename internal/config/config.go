package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port               int
	LogLevel           string
	ServerWriteTimeout time.Duration
	CORSAllowedOrigins []string

	// Runtime mode. Anything other than "development" enforces auth.
	AppEnv string
	// DevUserID owns every row written while auth is bypassed.
	DevUserID string

	// Inference (Ollama)
	OllamaHost         string
	OllamaDefaultModel string
	InferenceTimeout   time.Duration // 0 = no timeout

	// HTTP client used for store and auth calls
	HTTPTimeout time.Duration

	// Store
	DataBackend string
	DatabaseURL string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:               getEnvInt("PORT", 5000),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ServerWriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		AppEnv:    getEnv("APP_ENV", EnvProduction),
		DevUserID: getEnv("DEV_USER_ID", "00000000-0000-0000-0000-000000000000"),

		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaDefaultModel: getEnv("OLLAMA_DEFAULT_MODEL", ""),
		InferenceTimeout:   getEnvDuration("INFERENCE_TIMEOUT", 0),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		DataBackend: getEnv("DATA_BACKEND", BackendSupabase),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// IsDevelopment reports whether the auth bypass is active.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// Validate checks that the settings required by the selected backend and
// auth mode are present.
func (c *Config) Validate() error {
	var missing []string

	switch c.DataBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
		// Without a user token the store falls back to the service role.
		if c.IsDevelopment() && c.SupabaseServiceKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown DATA_BACKEND %q (want %q or %q)", c.DataBackend, BackendSupabase, BackendPostgres)
	}

	if !c.IsDevelopment() && c.SupabaseJWTSecret == "" && (c.SupabaseURL == "" || c.SupabaseAnonKey == "") {
		missing = append(missing, "SUPABASE_JWT_SECRET or SUPABASE_URL+SUPABASE_ANON_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
