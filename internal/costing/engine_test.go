package costing

import (
	"context"
	"errors"
	"math"
	"testing"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store/memory"
	"restopos/backend/internal/uom"
)

type fixture struct {
	repo   *memory.Store
	engine *Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()

	for _, u := range []domain.Unit{
		{ID: "u-base", Name: "Base", Short: "b", Conversion: 1},
		{ID: "u-double", Name: "Double", Short: "d", BaseUnitID: "u-base", Conversion: 2},
		{ID: "u-g", Name: "Gram", Short: "g", Conversion: 1, Type: domain.UnitTypeMass},
		{ID: "u-ml", Name: "Mililiter", Short: "ml", Conversion: 1, Type: domain.UnitTypeVolume},
		{ID: "u-spoon", Name: "Spoon", Short: "spoon", BaseUnitID: "u-g", Conversion: 15, Type: domain.UnitTypeVolume},
	} {
		if _, err := repo.CreateUnit(ctx, u); err != nil {
			t.Fatalf("create unit %s: %v", u.ID, err)
		}
	}
	for _, p := range []domain.Product{
		{ID: "p-a", Name: "A", DefaultUnitID: "u-base", CostPerBaseUnit: 10},
		{ID: "p-b", Name: "B", DefaultUnitID: "u-base", CostPerBaseUnit: 5},
		{ID: "p-honey", Name: "Honey", DefaultUnitID: "u-g", CostPerBaseUnit: 3, Density: 1.4},
	} {
		if _, err := repo.CreateProduct(ctx, p); err != nil {
			t.Fatalf("create product %s: %v", p.ID, err)
		}
	}
	for _, d := range []domain.Dish{
		{ID: "d-1", Name: "One"},
		{ID: "d-2", Name: "Two"},
		{ID: "d-3", Name: "Three"},
	} {
		if _, err := repo.CreateDish(ctx, d); err != nil {
			t.Fatalf("create dish %s: %v", d.ID, err)
		}
	}

	normalizer := uom.NewNormalizer(uom.NewGraph(repo, uom.DefaultMaxHops))
	return fixture{repo: repo, engine: NewEngine(repo, normalizer)}
}

func (f fixture) addLine(t *testing.T, line domain.DishBOM) {
	t.Helper()
	if _, err := f.repo.CreateBOMLine(context.Background(), line); err != nil {
		t.Fatalf("create bom line: %v", err)
	}
}

func TestRecomputeDishHPPAggregatesPerVariant(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 2, UnitID: "u-base", Variant: domain.VariantHot})
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-b", Qty: 3, UnitID: "u-double", Variant: domain.VariantHot})

	dish, err := f.engine.RecomputeDishHPP(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if dish.HPP.HPPHot != 50 {
		t.Fatalf("expected hot hpp 50, got %v", dish.HPP.HPPHot)
	}
	if dish.HPP.HPPIce != 0 {
		t.Fatalf("expected ice hpp untouched at 0, got %v", dish.HPP.HPPIce)
	}
	if dish.HPPUpdatedAt == nil {
		t.Fatalf("expected hpp timestamp to be set")
	}

	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 1.5, UnitID: "u-double", Variant: domain.VariantIce})
	dish, err = f.engine.RecomputeDishHPP(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if dish.HPP.HPPHot != 50 || dish.HPP.HPPIce != 30 {
		t.Fatalf("expected 50/30, got %+v", dish.HPP)
	}
}

func TestRecomputeDishHPPSkipsBrokenReferences(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 2, UnitID: "u-base", Variant: domain.VariantHot})
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-deleted", Qty: 9, UnitID: "u-base", Variant: domain.VariantHot})
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-b", Qty: 9, UnitID: "u-deleted", Variant: domain.VariantHot})

	dish, err := f.engine.RecomputeDishHPP(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if dish.HPP.HPPHot != 20 {
		t.Fatalf("expected only the intact line to count, got %v", dish.HPP.HPPHot)
	}
}

func TestRecomputeDishHPPUsesDensityForCrossFamilyUnits(t *testing.T) {
	f := newFixture(t)
	// 2 spoons of honey are read as 2 volume units at density 1.4, i.e. 2.8 g.
	f.addLine(t, domain.DishBOM{DishID: "d-2", ProductID: "p-honey", Qty: 2, UnitID: "u-spoon", Variant: domain.VariantIce})

	dish, err := f.engine.RecomputeDishHPP(context.Background(), "d-2")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if math.Abs(dish.HPP.HPPIce-8.4) > 1e-9 {
		t.Fatalf("expected ice hpp 8.4, got %v", dish.HPP.HPPIce)
	}
}

func TestRecomputeDishHPPUnknownDish(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.RecomputeDishHPP(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown dish")
	}
}

func TestRecomputeDishHPPCycleLeavesDishUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 2, UnitID: "u-base", Variant: domain.VariantHot})
	if _, err := f.engine.RecomputeDishHPP(ctx, "d-1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	if _, err := f.repo.CreateUnit(ctx, domain.Unit{ID: "u-x", Name: "X", Short: "x", BaseUnitID: "u-y", Conversion: 1}); err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, err := f.repo.CreateUnit(ctx, domain.Unit{ID: "u-y", Name: "Y", Short: "y", BaseUnitID: "u-x", Conversion: 1}); err != nil {
		t.Fatalf("create unit: %v", err)
	}
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-b", Qty: 1, UnitID: "u-x", Variant: domain.VariantHot})

	_, err := f.engine.RecomputeDishHPP(ctx, "d-1")
	if !errors.Is(err, uom.ErrCycleDetected) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	dish, _ := f.repo.GetDish(ctx, "d-1")
	if dish.HPP.HPPHot != 20 {
		t.Fatalf("expected previous hpp to survive, got %v", dish.HPP.HPPHot)
	}
}

func TestRecomputeHPPForProductOnlyTouchesReferencingDishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 1, UnitID: "u-base", Variant: domain.VariantHot})
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 1, UnitID: "u-base", Variant: domain.VariantIce})
	f.addLine(t, domain.DishBOM{DishID: "d-2", ProductID: "p-a", Qty: 3, UnitID: "u-base", Variant: domain.VariantIce})
	f.addLine(t, domain.DishBOM{DishID: "d-3", ProductID: "p-b", Qty: 1, UnitID: "u-base", Variant: domain.VariantHot})

	dishes, err := f.engine.RecomputeHPPForProduct(ctx, "p-a")
	if err != nil {
		t.Fatalf("bulk recompute: %v", err)
	}
	if len(dishes) != 2 {
		t.Fatalf("expected 2 recomputed dishes, got %d", len(dishes))
	}

	d1, _ := f.repo.GetDish(ctx, "d-1")
	d2, _ := f.repo.GetDish(ctx, "d-2")
	d3, _ := f.repo.GetDish(ctx, "d-3")
	if d1.HPP.HPPHot != 10 || d1.HPP.HPPIce != 10 {
		t.Fatalf("unexpected d-1 hpp %+v", d1.HPP)
	}
	if d2.HPP.HPPIce != 30 {
		t.Fatalf("unexpected d-2 hpp %+v", d2.HPP)
	}
	if d3.HPPUpdatedAt != nil || d3.HPP.HPPHot != 0 {
		t.Fatalf("expected d-3 untouched, got %+v", d3)
	}
}

func TestRecomputeDishHPPSkipsLinesOutsideProductBase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.repo.CreateProduct(ctx, domain.Product{ID: "p-syrup", Name: "Syrup", DefaultUnitID: "u-ml", CostPerBaseUnit: 2, Density: 1.25}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 2, UnitID: "u-base", Variant: domain.VariantHot})
	// p-a has no density, so grams cannot be costed against its base unit.
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 7, UnitID: "u-g", Variant: domain.VariantHot})
	// 5 g of syrup at 1.25 g/ml is 4 ml.
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-syrup", Qty: 5, UnitID: "u-g", Variant: domain.VariantIce})

	dish, err := f.engine.RecomputeDishHPP(ctx, "d-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if dish.HPP.HPPHot != 20 {
		t.Fatalf("expected the gram line on p-a to be skipped, got %v", dish.HPP.HPPHot)
	}
	if math.Abs(dish.HPP.HPPIce-8) > 1e-9 {
		t.Fatalf("expected ice hpp 8, got %v", dish.HPP.HPPIce)
	}
}

func TestRecomputeDishHPPResetsVariantWithoutLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.repo.UpdateDishHPP(ctx, "d-1", domain.DishHPP{HPPHot: 99, HPPIce: 77}); err != nil {
		t.Fatalf("seed hpp: %v", err)
	}
	f.addLine(t, domain.DishBOM{DishID: "d-1", ProductID: "p-a", Qty: 2, UnitID: "u-base", Variant: domain.VariantHot})

	dish, err := f.engine.RecomputeDishHPP(ctx, "d-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if dish.HPP.HPPHot != 20 || dish.HPP.HPPIce != 0 {
		t.Fatalf("expected 20/0 after recompute, got %+v", dish.HPP)
	}
}
