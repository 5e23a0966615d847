package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("PERSONAS_PATH", "")
	os.Setenv("AGENT_GREETING", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.PersonasPath == "" {
		t.Fatalf("expected default personas path")
	}
	if cfg.Greeting == "" {
		t.Fatalf("expected default greeting")
	}
	if cfg.SupabaseBucket == "" {
		t.Fatalf("expected default supabase bucket")
	}

	os.Setenv("HTTP_ADDRESS", ":9999")
	cfg = Load()
	if cfg.HTTPAddress != ":9999" {
		t.Fatalf("env override ignored: %s", cfg.HTTPAddress)
	}
	os.Setenv("HTTP_ADDRESS", "")
}
