package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Atrium server. It is built
// once at process start and passed explicitly into every component —
// there is no ambient global lookup.
type Config struct {
	Port    int
	Version string

	Directory DirectoryConfig
	Object    ObjectConfig
	Gemini    GeminiConfig
	Auth      AuthConfig
	Upload    UploadConfig
	Telemetry TelemetryConfig
}

// DirectoryConfig selects and configures the directory store.
// When ProjectID is set the Firestore store is used; otherwise the
// in-memory store (local dev, tests).
type DirectoryConfig struct {
	ProjectID string
	// DataDir is where the memory store keeps its JSON snapshot.
	// Empty disables persistence.
	DataDir string
}

type ObjectConfig struct {
	AccessKey    string
	SecretKey    string
	Region       string
	BucketPrefix string
}

type GeminiConfig struct {
	APIKey     string
	EmbedModel string
}

type AuthConfig struct {
	JWTSecret string
}

type UploadConfig struct {
	MaxFileSizeMB     int
	AllowedExtensions []string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible
// defaults. A local .env file is honored if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:    envInt("ATRIUM_PORT", 8080),
		Version: envStr("ATRIUM_VERSION", "0.4.0"),
		Directory: DirectoryConfig{
			ProjectID: envStr("ATRIUM_GCP_PROJECT", ""),
			DataDir:   envStr("ATRIUM_DATA_DIR", ""),
		},
		Object: ObjectConfig{
			AccessKey:    envStr("AWS_ACCESS_KEY", ""),
			SecretKey:    envStr("AWS_SECRET_KEY", ""),
			Region:       envStr("AWS_REGION", "us-east-1"),
			BucketPrefix: envStr("ATRIUM_BUCKET_PREFIX", "atrium-agent-"),
		},
		Gemini: GeminiConfig{
			APIKey:     envStr("GEMINI_API_KEY", ""),
			EmbedModel: envStr("ATRIUM_EMBED_MODEL", "text-embedding-004"),
		},
		Auth: AuthConfig{
			JWTSecret: envStr("ATRIUM_JWT_SECRET", ""),
		},
		Upload: UploadConfig{
			MaxFileSizeMB:     envInt("ATRIUM_MAX_FILE_SIZE_MB", 50),
			AllowedExtensions: []string{".pdf", ".docx", ".txt", ".md", ".html", ".csv"},
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "atrium"),
		},
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
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
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
