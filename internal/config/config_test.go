package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Embedding.Dim != 512 {
		t.Errorf("Embedding.Dim = %d, want 512", cfg.Embedding.Dim)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("Database.MaxOpenConns = %d, want 25", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("Database.MaxIdleConns = %d, want 5", cfg.Database.MaxIdleConns)
	}
	if cfg.Thresholds.Default != 0.45 {
		t.Errorf("Thresholds.Default = %f, want 0.45", cfg.Thresholds.Default)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/facegroup")
	t.Setenv("EMBEDDING_DIM", "128")
	t.Setenv("NOTIFY_URLS", "smtp://mail.example.com, discord://token@channel")
	t.Setenv("WEB_API_TOKEN", "secret")

	cfg := Load()

	if cfg.Database.URL != "postgres://localhost/facegroup" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Embedding.Dim != 128 {
		t.Errorf("Embedding.Dim = %d, want 128", cfg.Embedding.Dim)
	}
	if len(cfg.Notify.URLs) != 2 || cfg.Notify.URLs[0] != "smtp://mail.example.com" {
		t.Errorf("Notify.URLs = %v", cfg.Notify.URLs)
	}
	if cfg.Web.APIToken != "secret" {
		t.Errorf("Web.APIToken = %q, want secret", cfg.Web.APIToken)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "not-a-number")
	if cfg := Load(); cfg.Embedding.Dim != 512 {
		t.Errorf("invalid EMBEDDING_DIM should fall back to 512, got %d", cfg.Embedding.Dim)
	}

	t.Setenv("EMBEDDING_DIM", "-4")
	if cfg := Load(); cfg.Embedding.Dim != 512 {
		t.Errorf("negative EMBEDDING_DIM should fall back to 512, got %d", cfg.Embedding.Dim)
	}
}

func TestThresholdForClass(t *testing.T) {
	thresholds := ThresholdsConfig{
		Default: 0.45,
		Classes: map[string]float64{"dog": 0.60},
	}

	tests := []struct {
		class string
		want  float64
	}{
		{"dog", 0.60},
		{"DOG", 0.60},
		{"person", 0.45},
		{"", 0.45},
	}
	for _, tc := range tests {
		t.Run(tc.class, func(t *testing.T) {
			if got := thresholds.ForClass(tc.class); got != tc.want {
				t.Errorf("ForClass(%q) = %f, want %f", tc.class, got, tc.want)
			}
		})
	}
}
