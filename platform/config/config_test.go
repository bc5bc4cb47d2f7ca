package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/pipeline")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("CORS_ALLOW_ALL", "false")
	t.Setenv("CORS_ORIGINS", "http://localhost:4200")
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CALCULATION_TIMEOUT", "")
	t.Setenv("CALCULATION_API_URL", "https://calc.example.com/")

	// An explicitly empty timeout parses to zero and must be rejected.
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for empty CALCULATION_TIMEOUT")
	}

	t.Setenv("CALCULATION_TIMEOUT", "3s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetCalculationTimeout() != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.GetCalculationTimeout())
	}
	if cfg.GetCalculationAPIURL() != "https://calc.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.GetCalculationAPIURL())
	}
	if !cfg.IsCalculationEnabled() {
		t.Fatalf("expected calculation to be enabled")
	}
}

func TestLoadRejectsWildcardWithCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CORS_ORIGINS", "*")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for wildcard origins with credentials")
	}
}
