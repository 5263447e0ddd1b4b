package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	// No config file in the test directory; defaults and env apply.
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("server.address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Database.URI != "mongodb://localhost:27017" {
		t.Errorf("database.uri = %q", cfg.Database.URI)
	}
	if cfg.Database.Name != "ontrak" {
		t.Errorf("database.name = %q, want ontrak", cfg.Database.Name)
	}
	if cfg.JWT.Expiration != time.Hour {
		t.Errorf("jwt.expiration = %v, want 1h", cfg.JWT.Expiration)
	}
	if cfg.Statistics.FetchTimeout != 8*time.Second {
		t.Errorf("statistics.fetch_timeout = %v, want 8s", cfg.Statistics.FetchTimeout)
	}
	if !cfg.S3.UseSSL {
		t.Error("s3.use_ssl default should be true")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("STATISTICS_FETCH_TIMEOUT", "2s")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("server.address = %q, want env override :9999", cfg.Server.Address)
	}
	if cfg.Statistics.FetchTimeout != 2*time.Second {
		t.Errorf("statistics.fetch_timeout = %v, want 2s", cfg.Statistics.FetchTimeout)
	}
}
