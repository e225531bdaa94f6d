package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "postgres://localhost/fanlock")
	t.Setenv("SETTLEMENT_MINT", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	t.Setenv("PLATFORM_ACCOUNT", "PLataccouNT111111111111111111111111111111111")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("addr = %q", cfg.HTTPAddr)
	}
	if cfg.NonceTTL != 5*time.Minute {
		t.Fatalf("nonce ttl = %v", cfg.NonceTTL)
	}
	if !cfg.Chain.VerifyDestinations {
		t.Fatal("destination verification should default on")
	}
	if cfg.Limiter.Max != 10 || cfg.Limiter.Window != time.Minute {
		t.Fatalf("limiter = %+v", cfg.Limiter)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DSN")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("NONCE_TTL", "five minutes")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("VERIFY_DESTINATIONS", "false")
	t.Setenv("NONCE_LIMIT_MAX", "3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.VerifyDestinations {
		t.Fatal("override not applied")
	}
	if cfg.Limiter.Max != 3 {
		t.Fatalf("limiter max = %d", cfg.Limiter.Max)
	}
}
