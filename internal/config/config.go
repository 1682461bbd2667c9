// Package config loads the service configuration from .env, environment
// variables and flags. Flags win over env only for the port; everything
// else is env-driven so the same binary runs locally and in a container.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"forgeline/internal/artifact"
)

type Config struct {
	Port string
	Env  string

	// PostgresDSN empty means the in-memory store backend.
	PostgresDSN string

	Gemini   GeminiConfig
	Artifact ArtifactConfig
	Sandbox  SandboxConfig

	Workers     int
	TaskRetries int
}

type GeminiConfig struct {
	Model      string
	EmbedModel string
}

type ArtifactConfig struct {
	Enabled bool
	S3      artifact.S3Config
}

type SandboxConfig struct {
	// Root is the directory local sandboxes are created under.
	Root       string
	CompileCmd string
	BuildCmd   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8081", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:        *port,
		Env:         env,
		PostgresDSN: strings.TrimSpace(os.Getenv("FORGELINE_PG_DSN")),
		Gemini: GeminiConfig{
			Model:      firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.0-flash"),
			EmbedModel: firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_EMBED_MODEL")), "text-embedding-004"),
		},
		Artifact: loadArtifactConfig(env),
		Sandbox: SandboxConfig{
			Root:       firstNonEmpty(strings.TrimSpace(os.Getenv("SANDBOX_ROOT")), os.TempDir()),
			CompileCmd: strings.TrimSpace(os.Getenv("COMPILE_CMD")),
			BuildCmd:   strings.TrimSpace(os.Getenv("BUILD_CMD")),
		},
		Workers:     intEnv("WORKERS", 4),
		TaskRetries: intEnv("TASK_RETRIES", 2),
	}, nil
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled: strings.EqualFold(strings.TrimSpace(env), "local") || endpoint != "",
		S3: artifact.S3Config{
			Endpoint:  endpoint,
			Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
			AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
			SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
			Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "forgeline-artifacts"),
			UseSSL:    resolveArtifactUseSSL(env),
		},
	}
}

func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT")), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func intEnv(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
