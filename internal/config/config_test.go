package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear env to test defaults
	os.Unsetenv("OPENPREVIEW_PORT")
	os.Unsetenv("OPENPREVIEW_API_KEY")
	os.Unsetenv("OPENPREVIEW_PROJECT_PREFIX")
	os.Unsetenv("OPENPREVIEW_FRAMEWORK")
	os.Unsetenv("OPENPREVIEW_AUTO_DEPLOY_DELAY_SEC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.ProjectPrefix != "preview" {
		t.Errorf("expected project prefix preview, got %s", cfg.ProjectPrefix)
	}
	if cfg.Framework != "nextjs" {
		t.Errorf("expected framework nextjs, got %s", cfg.Framework)
	}
	if cfg.AutoDeployDelaySec != 10 {
		t.Errorf("expected auto deploy delay 10s, got %d", cfg.AutoDeployDelaySec)
	}
	if cfg.DeployTarget != "production" {
		t.Errorf("expected deploy target production, got %s", cfg.DeployTarget)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("OPENPREVIEW_PORT", "9999")
	os.Setenv("OPENPREVIEW_API_KEY", "test-key")
	os.Setenv("OPENPREVIEW_FRAMEWORK", "vite")
	os.Setenv("OPENPREVIEW_AUTO_DEPLOY_DELAY_SEC", "30")
	defer func() {
		os.Unsetenv("OPENPREVIEW_PORT")
		os.Unsetenv("OPENPREVIEW_API_KEY")
		os.Unsetenv("OPENPREVIEW_FRAMEWORK")
		os.Unsetenv("OPENPREVIEW_AUTO_DEPLOY_DELAY_SEC")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("expected API key test-key, got %s", cfg.APIKey)
	}
	if cfg.Framework != "vite" {
		t.Errorf("expected framework vite, got %s", cfg.Framework)
	}
	if cfg.AutoDeployDelaySec != 30 {
		t.Errorf("expected auto deploy delay 30s, got %d", cfg.AutoDeployDelaySec)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	os.Setenv("OPENPREVIEW_PORT", "not-a-number")
	defer os.Unsetenv("OPENPREVIEW_PORT")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestLoadDatabaseURLFallback(t *testing.T) {
	os.Unsetenv("OPENPREVIEW_DATABASE_URL")
	os.Setenv("DATABASE_URL", "postgres://host/db")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://host/db" {
		t.Errorf("expected DATABASE_URL fallback, got %s", cfg.DatabaseURL)
	}
}
