package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.AdminAddress != "sponsorchain:admin" {
		t.Fatalf("AdminAddress = %q", cfg.AdminAddress)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.TokenTTL)
	}
	if cfg.RateLimitBurst != 100 || cfg.RateLimitRPS != 50 {
		t.Fatalf("rate limits = %v/%v", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SPONSORCHAIN_ADDR", ":9090")
	t.Setenv("SPONSORCHAIN_DEMO_STREAM", "true")
	t.Setenv("SPONSORCHAIN_DEMO_INTERVAL", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if !cfg.DemoStream || cfg.DemoInterval != 500*time.Millisecond {
		t.Fatalf("demo settings = %v/%v", cfg.DemoStream, cfg.DemoInterval)
	}
}
