package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"restopos/backend/internal/domain"
)

func TestUnitCodecPreservesChainFields(t *testing.T) {
	in := &domain.Unit{
		ID:         "unit-kg",
		Name:       "Kilogram",
		Short:      "kg",
		BaseUnitID: "unit-g",
		Conversion: 1000,
		Type:       domain.UnitTypeMass,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	payload, err := encodeUnit(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeUnit(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.BaseUnitID != in.BaseUnitID || out.Conversion != in.Conversion || out.Type != in.Type || out.Short != in.Short {
		t.Fatalf("decoded unit mismatch: %+v", out)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("expected created_at %v, got %v", in.CreatedAt, out.CreatedAt)
	}
}

func TestUnitKeyIsNamespaced(t *testing.T) {
	if got := unitKey("abc"); got != "restopos:unit:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNoopUnitCacheAlwaysMisses(t *testing.T) {
	var c UnitCache = NoopUnitCache{}
	ctx := context.Background()
	if err := c.Set(ctx, &domain.Unit{ID: "u1"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisUnitCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("RESTOPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RESTOPOS_TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	c := NewRedisUnitCache(addr, "", 0)
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	unit := &domain.Unit{ID: "unit-roundtrip", Short: "ml", Conversion: 1, Type: domain.UnitTypeVolume}
	if err := c.Set(ctx, unit, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, unit.ID)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Short != "ml" {
		t.Fatalf("expected short ml, got %q", got.Short)
	}
	if err := c.Delete(ctx, unit.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, unit.ID); ok {
		t.Fatalf("expected miss after delete")
	}
}
