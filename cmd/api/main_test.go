package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/worksuite/worksuite-api/internal/config"
	"github.com/worksuite/worksuite-api/internal/domain/entitlement"
	"github.com/worksuite/worksuite-api/internal/domain/feature"
	"github.com/worksuite/worksuite-api/internal/domain/wallet"
	"github.com/worksuite/worksuite-api/internal/pkg/clock"
)

func TestOpenStoresMemory(t *testing.T) {
	st := openStores(&config.Config{StoreDriver: config.StoreMemory})
	defer st.close()

	ctx := context.Background()
	if err := st.ping(ctx); err != nil {
		t.Fatalf("memory ping failed: %v", err)
	}

	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	catalog := feature.NewService(st.features, clk, time.Minute)
	if _, err := catalog.Seed(ctx, feature.DefaultFeatures()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	ledger := wallet.NewService(st.wallets, st.tx, clk, wallet.Config{Currency: "COIN"})
	ws := uuid.New()
	if _, err := ledger.OpenWallet(ctx, ws); err != nil {
		t.Fatalf("open wallet failed: %v", err)
	}

	manager := entitlement.NewManager(st.entitlements, catalog, st.tx, decisionCache(nil, clk), clk, entitlement.Config{})
	expires := clk.Now().Add(14 * 24 * time.Hour)
	if _, err := manager.ActivateFeature(ctx, ws, "CRM_CORE", entitlement.SourcePromotion, &expires); err != nil {
		t.Fatalf("trial activation failed: %v", err)
	}
	state, _, err := manager.CheckFeature(ctx, ws, "CRM_CORE")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if state != entitlement.StateActive {
		t.Fatalf("expected active, got %s", state)
	}
}

func TestDecisionCacheFallsBackToMemory(t *testing.T) {
	cache := decisionCache(nil, clock.Real())
	if _, ok := cache.(*entitlement.MemoryCache); !ok {
		t.Fatalf("expected memory cache without redis, got %T", cache)
	}
}
