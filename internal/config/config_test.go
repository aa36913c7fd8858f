package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SPECIAL_WINDOW_START", "")
	t.Setenv("SPECIAL_WINDOW_END", "")
	t.Setenv("REPLENISH_TARGET", "")
	t.Setenv("BUSINESS_TIMEZONE", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.SpecialWindowStart != 17 || cfg.SpecialWindowEnd != 19 {
		t.Fatalf("expected default special window 17..19, got %d..%d", cfg.SpecialWindowStart, cfg.SpecialWindowEnd)
	}
	if cfg.ReplenishTarget != 50 {
		t.Fatalf("expected default replenish target 50, got %d", cfg.ReplenishTarget)
	}
	if cfg.BusinessTimezone != "Asia/Kolkata" {
		t.Fatalf("expected default timezone Asia/Kolkata, got %q", cfg.BusinessTimezone)
	}
}

func TestLoadIgnoresUnparsableInts(t *testing.T) {
	t.Setenv("SPECIAL_WINDOW_START", "noon")

	cfg := Load()
	if cfg.SpecialWindowStart != 17 {
		t.Fatalf("expected fallback window start 17, got %d", cfg.SpecialWindowStart)
	}
}
