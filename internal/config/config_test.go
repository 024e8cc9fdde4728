package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseEnvDefaults(t *testing.T) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr: want :8080, got %q", cfg.Addr)
	}
	if cfg.IndividualPlanID != 1 {
		t.Errorf("IndividualPlanID: want 1, got %d", cfg.IndividualPlanID)
	}
	if !cfg.ConsumeTrialOnMembershipCheckin {
		t.Error("ConsumeTrialOnMembershipCheckin should default to true")
	}
	if cfg.NotifyPollInterval != 5*time.Second {
		t.Errorf("NotifyPollInterval: want 5s, got %s", cfg.NotifyPollInterval)
	}
	if cfg.NotifyRetryBase != 30*time.Second {
		t.Errorf("NotifyRetryBase: want 30s, got %s", cfg.NotifyRetryBase)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg Config
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "lots")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDotenvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("ADDR=:9999\nSTUDIO_TZ=UTC\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ADDR", ":7000")
	t.Setenv("STUDIO_TZ", "")
	os.Unsetenv("STUDIO_TZ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Addr: environment should win, got %q", cfg.Addr)
	}
	if cfg.TimeZone != "UTC" {
		t.Errorf("TimeZone: want UTC from dotenv, got %q", cfg.TimeZone)
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
