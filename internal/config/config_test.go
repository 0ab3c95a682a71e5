package config

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xgrowth.yaml")

	cfg := Default()
	cfg.Storage.DBPath = "/tmp/engine.db"
	cfg.XApp.ClientID = "client-id-1234567890"
	cfg.Workers.Discovery = 7
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Storage.DBPath != "/tmp/engine.db" || got.XApp.ClientID != "client-id-1234567890" {
		t.Fatalf("got %+v", got)
	}
	if got.Workers.Discovery != 7 {
		t.Fatalf("workers = %+v", got.Workers)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Scheduler.DiscoveryMinutes != 30 || cfg.Scheduler.EngagementMinutes != 5 {
		t.Fatalf("scheduler defaults = %+v", cfg.Scheduler)
	}
	if cfg.Workers.Discovery != 3 || cfg.Workers.Engagement != 3 || cfg.Workers.AutoPost != 2 {
		t.Fatalf("worker defaults = %+v", cfg.Workers)
	}
	if cfg.XApp.TokenURL == "" || cfg.XApp.APIBaseURL == "" {
		t.Fatalf("x endpoints missing: %+v", cfg.XApp)
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("X_CLIENT_ID", "env-client-id-123456")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "env-key")

	cfg := Default()
	cfg.ResolveEnv()
	if cfg.Redis.URL != "redis://localhost:6379/1" || cfg.XApp.ClientID != "env-client-id-123456" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Security.TokenEncryptionKey != "env-key" {
		t.Fatalf("key = %q", cfg.Security.TokenEncryptionKey)
	}

	// Explicit file values win over the environment.
	cfg2 := Default()
	cfg2.Redis.URL = "redis://file:6379"
	cfg2.ResolveEnv()
	if cfg2.Redis.URL != "redis://file:6379" {
		t.Fatalf("env overrode file value: %q", cfg2.Redis.URL)
	}
}
