package uom

import (
	"context"
	"errors"
	"math"
	"testing"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

type mapSource struct {
	units map[string]domain.Unit
	calls int
}

func newMapSource(units ...domain.Unit) *mapSource {
	src := &mapSource{units: make(map[string]domain.Unit, len(units))}
	for _, u := range units {
		src.units[u.ID] = u
	}
	return src
}

func (s *mapSource) GetUnit(_ context.Context, id string) (*domain.Unit, error) {
	s.calls++
	u, ok := s.units[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var (
	unitKg  = domain.Unit{ID: "kg", Short: "kg", Conversion: 1, Type: domain.UnitTypeMass}
	unitTon = domain.Unit{ID: "ton", Short: "t", BaseUnitID: "kg", Conversion: 1000, Type: domain.UnitTypeMass}
	unitG   = domain.Unit{ID: "g", Short: "g", Conversion: 1, Type: domain.UnitTypeMass}
	unitMl  = domain.Unit{ID: "ml", Short: "ml", Conversion: 1, Type: domain.UnitTypeVolume}
	unitL   = domain.Unit{ID: "l", Short: "L", BaseUnitID: "ml", Conversion: 1000, Type: domain.UnitTypeVolume}
)

func TestResolveToBase(t *testing.T) {
	graph := NewGraph(newMapSource(unitKg, unitTon, unitMl, unitL,
		domain.Unit{ID: "root3", Short: "x3", Conversion: 3},
		domain.Unit{ID: "child", Short: "c", BaseUnitID: "root3", Conversion: 2},
		domain.Unit{ID: "orphan", Short: "o", BaseUnitID: "gone", Conversion: 4},
	), DefaultMaxHops)

	cases := []struct {
		unitID  string
		root    string
		factor  float64
		hops    int
		missing bool
	}{
		{unitID: "kg", root: "kg", factor: 1},
		{unitID: "ton", root: "kg", factor: 1000, hops: 1},
		{unitID: "l", root: "ml", factor: 1000, hops: 1},
		{unitID: "child", root: "root3", factor: 6, hops: 1},
		{unitID: "nonexistent-id", root: "nonexistent-id", factor: 1, missing: true},
		{unitID: "orphan", root: "gone", factor: 4, hops: 1, missing: true},
	}

	for _, tc := range cases {
		res, err := graph.ResolveToBase(context.Background(), tc.unitID)
		if err != nil {
			t.Fatalf("%s: resolve failed: %v", tc.unitID, err)
		}
		if res.RootUnitID != tc.root || !approxEqual(res.Factor, tc.factor) || res.Hops != tc.hops || res.Missing != tc.missing {
			t.Fatalf("%s: unexpected resolution %+v", tc.unitID, res)
		}
	}
}

func TestResolveToBaseDetectsMutualCycle(t *testing.T) {
	graph := NewGraph(newMapSource(
		domain.Unit{ID: "a", BaseUnitID: "b", Conversion: 2},
		domain.Unit{ID: "b", BaseUnitID: "a", Conversion: 3},
	), DefaultMaxHops)

	for _, id := range []string{"a", "b"} {
		_, err := graph.ResolveToBase(context.Background(), id)
		if !errors.Is(err, ErrCycleDetected) {
			t.Fatalf("%s: expected cycle error, got %v", id, err)
		}
	}
}

func TestResolveToBaseBoundsChainLength(t *testing.T) {
	units := make([]domain.Unit, 0, 20)
	ids := "abcdefghijklmnopqrst"
	for i := 0; i < len(ids); i++ {
		u := domain.Unit{ID: string(ids[i]), Conversion: 1}
		if i+1 < len(ids) {
			u.BaseUnitID = string(ids[i+1])
		}
		units = append(units, u)
	}
	src := newMapSource(units...)

	if _, err := NewGraph(src, DefaultMaxHops).ResolveToBase(context.Background(), "a"); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected hop bound to trip on a 19-hop chain, got %v", err)
	}
	if _, err := NewGraph(src, 32).ResolveToBase(context.Background(), "a"); err != nil {
		t.Fatalf("expected chain to resolve with a larger bound, got %v", err)
	}
}

func TestResolveToBasePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("store offline")
	graph := NewGraph(failingSource{err: boom}, DefaultMaxHops)
	if _, err := graph.ResolveToBase(context.Background(), "kg"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

type failingSource struct{ err error }

func (f failingSource) GetUnit(context.Context, string) (*domain.Unit, error) {
	return nil, f.err
}
