package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/worksuite/worksuite-api/internal/pkg/clock"
)

func TestDecisionEncoding(t *testing.T) {
	expires := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	validUntil := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)

	cases := []Decision{
		{Enabled: true},
		{Enabled: true, ExpiresAt: &expires},
		{Enabled: false},
	}
	for _, d := range cases {
		raw := encodeDecision(d, validUntil)
		got, until, err := decodeDecision(raw)
		if err != nil {
			t.Fatalf("decode %q failed: %v", raw, err)
		}
		if got.Enabled != d.Enabled || !until.Equal(validUntil) {
			t.Fatalf("decode %q = %+v until %s", raw, got, until)
		}
		if (got.ExpiresAt == nil) != (d.ExpiresAt == nil) || (got.ExpiresAt != nil && !got.ExpiresAt.Equal(*d.ExpiresAt)) {
			t.Fatalf("expiry mismatch for %q", raw)
		}
	}

	for _, raw := range []string{"", "1|2", "1|x|3", "1||y"} {
		if _, _, err := decodeDecision(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	cache := NewMemoryCache(clk)
	ws := uuid.New()

	if stored, err := cache.Set(ctx, ws, "CRM_CORE", Decision{Enabled: true}, time.Minute, 0); err != nil || !stored {
		t.Fatalf("set failed: %v %v", stored, err)
	}
	if stored, err := cache.Set(ctx, ws, "INVOICING", Decision{Enabled: false}, 0, 0); err != nil || stored {
		t.Fatalf("zero ttl set: %v %v", stored, err)
	}

	if d, ok, _ := cache.Get(ctx, ws, "CRM_CORE"); !ok || !d.Enabled {
		t.Fatalf("expected cached grant, got %+v %v", d, ok)
	}
	if _, ok, _ := cache.Get(ctx, ws, "INVOICING"); ok {
		t.Fatalf("zero ttl must not be stored")
	}

	clk.Advance(time.Minute)
	if _, ok, _ := cache.Get(ctx, ws, "CRM_CORE"); ok {
		t.Fatalf("entry must expire at its deadline")
	}

	_, _ = cache.Set(ctx, ws, "CRM_CORE", Decision{Enabled: true}, time.Minute, 0)
	if err := cache.InvalidateWorkspace(ctx, ws); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, ws, "CRM_CORE"); ok {
		t.Fatalf("invalidation must drop the workspace")
	}
}

func TestMemoryCacheDropsFillFromOlderGeneration(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
	ws := uuid.New()

	before, err := cache.Generation(ctx, ws)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	if err := cache.InvalidateWorkspace(ctx, ws); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	stored, err := cache.Set(ctx, ws, "AI_INSIGHTS", Decision{Enabled: false}, time.Minute, before)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if stored {
		t.Fatalf("fill read before the invalidation must be dropped")
	}
	if _, ok, _ := cache.Get(ctx, ws, "AI_INSIGHTS"); ok {
		t.Fatalf("stale decision was cached")
	}

	after, _ := cache.Generation(ctx, ws)
	if after != before+1 {
		t.Fatalf("expected generation %d, got %d", before+1, after)
	}
	if stored, _ := cache.Set(ctx, ws, "AI_INSIGHTS", Decision{Enabled: true}, time.Minute, after); !stored {
		t.Fatalf("fill at the current generation must be stored")
	}
}
