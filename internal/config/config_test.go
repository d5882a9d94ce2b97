package config_test

import (
	"os"
	"testing"

	"github.com/AlfredDev/orchestratord/internal/config"
)

func TestLoadConfigFromEnv(t *testing.T) {
	os.Setenv("ORCHD_ADDR", "127.0.0.1:9999")
	os.Setenv("ENV", "test")
	os.Setenv("ORCHD_WATCH_ROOTS", "/tmp/a,/tmp/b")
	defer func() {
		os.Unsetenv("ORCHD_ADDR")
		os.Unsetenv("ENV")
		os.Unsetenv("ORCHD_WATCH_ROOTS")
	}()

	cfg := config.Load()
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected ORCHD_ADDR to be loaded, got %s", cfg.Addr)
	}
	if cfg.Env != "test" {
		t.Fatalf("expected ENV=test, got %s", cfg.Env)
	}
	if len(cfg.WatchRoots) != 2 || cfg.WatchRoots[0] != "/tmp/a" || cfg.WatchRoots[1] != "/tmp/b" {
		t.Fatalf("expected two watch roots, got %v", cfg.WatchRoots)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := config.Load()
	if cfg.RateLimitRPM != 100 {
		t.Fatalf("expected default rate limit 100, got %d", cfg.RateLimitRPM)
	}
	if cfg.BatchSize != 100 {
		t.Fatalf("expected default batch size 100, got %d", cfg.BatchSize)
	}
}
