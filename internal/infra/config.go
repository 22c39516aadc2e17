package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Allowed values for GENERATION_IMAGE_COUNT. A process enforces exactly one.
const (
	SingleImageArity = 1
	MultiImageArity  = 5
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBMaxConns         int32
	StoragePath        string
	PublicFilesPrefix  string
	Provider           ProviderConfig
	DownloadTimeout    time.Duration
	MaxArtifactBytes   int64
	ImageCount         int
	MaxUploadBytes     int64
	WorkerConcurrency  int
	WorkerQueueSize    int
	RateLimitPerMin    int
	KafkaBrokers       []string
	KafkaTopic         string
	LongPollMax        time.Duration
	PipelineConfigFile string
	GeoIPDBPath        string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// ProviderConfig holds the fixed parameter set sent with every inference call.
type ProviderConfig struct {
	APIToken         string
	BaseURL          string
	Model            string
	Version          string
	Seed             int
	TextureSize      int
	MeshSimplify     float64
	RemoveBackground bool
	Timeout          time.Duration
	PollInterval     time.Duration
}

// pipelineFile mirrors the optional YAML overlay. Only keys present in the
// file override the environment.
type pipelineFile struct {
	Provider struct {
		Model            *string  `yaml:"model"`
		Version          *string  `yaml:"version"`
		Seed             *int     `yaml:"seed"`
		TextureSize      *int     `yaml:"texture_size"`
		MeshSimplify     *float64 `yaml:"mesh_simplify"`
		RemoveBackground *bool    `yaml:"remove_background"`
	} `yaml:"provider"`
}

// DefaultFilesPrefix is where stored files are served when PUBLIC_FILES_PREFIX
// is unset.
const DefaultFilesPrefix = "/files"

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        int32(getEnvInt("DB_MAX_CONNS", 10)),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		PublicFilesPrefix: filesPrefix(os.Getenv("PUBLIC_FILES_PREFIX")),
		Provider: ProviderConfig{
			APIToken:         strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN")),
			BaseURL:          getEnv("PROVIDER_BASE_URL", "https://api.replicate.com/v1"),
			Model:            getEnv("PROVIDER_MODEL", "firtoz/trellis"),
			Version:          os.Getenv("PROVIDER_MODEL_VERSION"),
			Seed:             getEnvInt("PROVIDER_SEED", 0),
			TextureSize:      getEnvInt("PROVIDER_TEXTURE_SIZE", 1024),
			MeshSimplify:     getEnvFloat("PROVIDER_MESH_SIMPLIFY", 0.95),
			RemoveBackground: getEnvBool("PROVIDER_REMOVE_BACKGROUND", true),
			Timeout:          getEnvSeconds("PROVIDER_TIMEOUT_SECONDS", 600),
			PollInterval:     getEnvSeconds("PROVIDER_POLL_INTERVAL_SECONDS", 2),
		},
		DownloadTimeout:    getEnvSeconds("DOWNLOAD_TIMEOUT_SECONDS", 120),
		MaxArtifactBytes:   int64(getEnvInt("MAX_ARTIFACT_BYTES", 200<<20)),
		ImageCount:         getEnvInt("GENERATION_IMAGE_COUNT", SingleImageArity),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerQueueSize:    getEnvInt("WORKER_QUEUE_SIZE", 32),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		KafkaBrokers:       splitList(os.Getenv("EVENTS_KAFKA_BROKERS")),
		KafkaTopic:         getEnv("EVENTS_KAFKA_TOPIC", "generation-jobs"),
		LongPollMax:        getEnvSeconds("LONG_POLL_MAX_SECONDS", 30),
		PipelineConfigFile: os.Getenv("PIPELINE_CONFIG_FILE"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		HTTPReadTimeout:    getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout:   getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 30),
		HTTPIdleTimeout:    getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
	}

	if cfg.PipelineConfigFile != "" {
		if err := cfg.applyPipelineFile(cfg.PipelineConfigFile); err != nil {
			return nil, err
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ImageCount != SingleImageArity && cfg.ImageCount != MultiImageArity {
		return nil, fmt.Errorf("GENERATION_IMAGE_COUNT must be %d or %d, got %d", SingleImageArity, MultiImageArity, cfg.ImageCount)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.WorkerQueueSize < 0 {
		cfg.WorkerQueueSize = 0
	}
	if cfg.Provider.Timeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func (c *Config) applyPipelineFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline config: %w", err)
	}
	var file pipelineFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse pipeline config: %w", err)
	}
	p := file.Provider
	if p.Model != nil && strings.TrimSpace(*p.Model) != "" {
		c.Provider.Model = strings.TrimSpace(*p.Model)
	}
	if p.Version != nil {
		c.Provider.Version = strings.TrimSpace(*p.Version)
	}
	if p.Seed != nil {
		c.Provider.Seed = *p.Seed
	}
	if p.TextureSize != nil {
		c.Provider.TextureSize = *p.TextureSize
	}
	if p.MeshSimplify != nil {
		c.Provider.MeshSimplify = *p.MeshSimplify
	}
	if p.RemoveBackground != nil {
		c.Provider.RemoveBackground = *p.RemoveBackground
	}
	return nil
}

// filesPrefix normalizes the public mount to a single leading slash and no
// trailing one. The root cannot host files next to the API, so "/" falls
// back to /files.
func filesPrefix(raw string) string {
	p := "/" + strings.Trim(strings.TrimSpace(raw), "/")
	if p == "/" {
		return DefaultFilesPrefix
	}
	return p
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
