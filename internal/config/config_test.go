package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("WALLET_ONBOARDING_BONUS", "250.5")
	t.Setenv("FEATURE_CACHE_TTL", "0s")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "1h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg := Load()

	if !cfg.UsesMemoryStore() {
		t.Fatalf("expected memory store, got %q", cfg.StoreDriver)
	}
	if !cfg.WalletOnboardingBonus.Equal(decimal.RequireFromString("250.5")) {
		t.Fatalf("unexpected bonus %s", cfg.WalletOnboardingBonus)
	}
	if cfg.FeatureCacheTTL != 0 {
		t.Fatalf("zero ttl must be kept, got %s", cfg.FeatureCacheTTL)
	}
	if cfg.ExpirySweepInterval != time.Hour {
		t.Fatalf("unexpected sweep interval %s", cfg.ExpirySweepInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("WALLET_ONBOARDING_BONUS", "-10")
	t.Setenv("CATALOG_CACHE_TTL", "soon")
	t.Setenv("EXPIRY_WARNING_DAYS", "week")

	cfg := Load()

	if !cfg.WalletOnboardingBonus.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("negative bonus must fall back, got %s", cfg.WalletOnboardingBonus)
	}
	if cfg.CatalogCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected catalog ttl %s", cfg.CatalogCacheTTL)
	}
	if cfg.ExpiryWarningDays != 7 {
		t.Fatalf("unexpected warning days %d", cfg.ExpiryWarningDays)
	}
}

func TestLoadFeaturePrices(t *testing.T) {
	t.Setenv("FEATURE_PRICES", "ai_insights=300, TEAM_CHAT=0,CRM_CORE=abc,INVOICING=199.5,broken")

	cfg := Load()

	if len(cfg.FeaturePrices) != 2 {
		t.Fatalf("expected 2 valid prices, got %v", cfg.FeaturePrices)
	}
	if !cfg.FeaturePrices["AI_INSIGHTS"].Equal(decimal.NewFromInt(300)) {
		t.Fatalf("codes must be upper-cased, got %v", cfg.FeaturePrices)
	}
	if !cfg.FeaturePrices["INVOICING"].Equal(decimal.RequireFromString("199.5")) {
		t.Fatalf("unexpected invoicing price %s", cfg.FeaturePrices["INVOICING"])
	}
	if _, ok := cfg.FeaturePrices["TEAM_CHAT"]; ok {
		t.Fatalf("zero price must be skipped")
	}
}

func TestDefaultFeaturePricesCoverPublicCatalog(t *testing.T) {
	prices := parsePrices(defaultFeaturePrices)
	for _, code := range []string{"CRM_CORE", "INVOICING", "INVENTORY", "PROJECTS", "AI_INSIGHTS", "TEAM_CHAT", "API_ACCESS"} {
		if !prices[code].IsPositive() {
			t.Fatalf("missing default price for %s", code)
		}
	}
}
