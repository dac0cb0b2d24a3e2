package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Database   DatabaseConfig
	Embedding  EmbeddingConfig
	Detector   DetectorConfig
	Notify     NotifyConfig
	Web        WebConfig
	Thresholds ThresholdsConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	Dim int // embedding dimension produced by the detector, defaults to 512
}

type DetectorConfig struct {
	URL string // base URL of the face detection / embedding service
}

type NotifyConfig struct {
	// URLs are shoutrrr service URLs (smtp://, discord://, ...). Empty means
	// notifications are logged only.
	URLs []string
}

type WebConfig struct {
	// APIToken protects the API with a bearer token. Empty disables auth
	// (development only).
	APIToken string
}

// ThresholdsConfig holds the default similarity threshold and per-class overrides.
type ThresholdsConfig struct {
	Default float64            `yaml:"default"`
	Classes map[string]float64 `yaml:"classes"`
}

// ForClass returns the threshold for a detection class, falling back to the default.
func (t *ThresholdsConfig) ForClass(className string) float64 {
	if v, ok := t.Classes[strings.ToLower(className)]; ok {
		return v
	}
	return t.Default
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envList reads a comma-separated environment variable into a slice.
func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Detector: DetectorConfig{
			URL: os.Getenv("DETECTOR_URL"),
		},
		Notify: NotifyConfig{
			URLs: envList("NOTIFY_URLS"),
		},
		Web: WebConfig{
			APIToken: os.Getenv("WEB_API_TOKEN"),
		},
		Thresholds: thresholds,
	}
}
