package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("GENERATION_IMAGE_COUNT", "")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "")
	t.Setenv("PUBLIC_FILES_PREFIX", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ImageCount != SingleImageArity {
		t.Fatalf("ImageCount = %d, want %d", cfg.ImageCount, SingleImageArity)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 10<<20)
	}
	if cfg.Provider.Timeout != 10*time.Minute {
		t.Fatalf("Provider.Timeout = %s, want 10m", cfg.Provider.Timeout)
	}
	if cfg.PublicFilesPrefix != "/files" {
		t.Fatalf("PublicFilesPrefix = %q, want /files", cfg.PublicFilesPrefix)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadConfigRejectsUnsupportedArity(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("GENERATION_IMAGE_COUNT", "3")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for image count 3")
	}
}

func TestLoadConfigAcceptsFiveImageArity(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("GENERATION_IMAGE_COUNT", "5")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ImageCount != MultiImageArity {
		t.Fatalf("ImageCount = %d, want %d", cfg.ImageCount, MultiImageArity)
	}
}

func TestLoadConfigSplitsKafkaBrokers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("EVENTS_KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if len(cfg.KafkaBrokers) != len(want) {
		t.Fatalf("KafkaBrokers = %#v, want %#v", cfg.KafkaBrokers, want)
	}
	for i := range want {
		if cfg.KafkaBrokers[i] != want[i] {
			t.Fatalf("KafkaBrokers[%d] = %q, want %q", i, cfg.KafkaBrokers[i], want[i])
		}
	}
}

func TestLoadConfigAppliesPipelineFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	body := []byte("provider:\n  model: acme/mesh-xl\n  seed: 42\n  remove_background: false\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write pipeline file: %v", err)
	}
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PROVIDER_TEXTURE_SIZE", "2048")
	t.Setenv("PIPELINE_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Provider.Model != "acme/mesh-xl" {
		t.Fatalf("Provider.Model = %q, want acme/mesh-xl", cfg.Provider.Model)
	}
	if cfg.Provider.Seed != 42 {
		t.Fatalf("Provider.Seed = %d, want 42", cfg.Provider.Seed)
	}
	if cfg.Provider.RemoveBackground {
		t.Fatal("Provider.RemoveBackground should be overridden to false")
	}
	if cfg.Provider.TextureSize != 2048 {
		t.Fatalf("Provider.TextureSize = %d, want env value 2048", cfg.Provider.TextureSize)
	}
}

func TestLoadConfigNormalizesFilesPrefix(t *testing.T) {
	cases := map[string]string{
		"/":        DefaultFilesPrefix,
		"  ":       DefaultFilesPrefix,
		"/assets/": "/assets",
		"media":    "/media",
		"//cdn//":  "/cdn",
	}
	for raw, want := range cases {
		t.Setenv("DATABASE_URL", "postgres://example")
		t.Setenv("PUBLIC_FILES_PREFIX", raw)
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig(%q) returned error: %v", raw, err)
		}
		if cfg.PublicFilesPrefix != want {
			t.Fatalf("PUBLIC_FILES_PREFIX=%q gives %q, want %q", raw, cfg.PublicFilesPrefix, want)
		}
	}
}
