package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("RESTOPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RESTOPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestRunInTxRollsBackBOMAndHPPTogether(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	unitID := fmt.Sprintf("unit-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)
	dishID := fmt.Sprintf("dish-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM dish_bom WHERE dish_id = $1`, dishID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM dishes WHERE id = $1`, dishID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM units WHERE id = $1`, unitID)
	})

	if _, err := s.CreateUnit(ctx, domain.Unit{ID: unitID, Name: "Gram IT", Short: fmt.Sprintf("git%d", stamp), Conversion: 1, Type: domain.UnitTypeMass}); err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{ID: productID, Name: "Kopi IT", DefaultUnitID: unitID, CostPerBaseUnit: 200}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateDish(ctx, domain.Dish{ID: dishID, Name: "Espresso IT", Price: domain.DishPrice{Hot: 15000, Ice: 17000}}); err != nil {
		t.Fatalf("create dish: %v", err)
	}

	boom := errors.New("abort")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if !store.InTx(ctx) {
			t.Fatalf("expected transactional context")
		}
		if _, err := s.CreateBOMLine(ctx, domain.DishBOM{DishID: dishID, ProductID: productID, Qty: 18, UnitID: unitID, Variant: domain.VariantHot, QtyBase: 18, UnitBaseID: unitID}); err != nil {
			return err
		}
		if _, err := s.UpdateDishHPP(ctx, dishID, domain.DishHPP{HPPHot: 3600}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected abort error, got %v", err)
	}

	lines, err := s.ListDishBOM(ctx, dishID)
	if err != nil {
		t.Fatalf("list bom: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected bom insert to roll back, got %d lines", len(lines))
	}
	dish, err := s.GetDish(ctx, dishID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	if dish.HPP.HPPHot != 0 || dish.HPPUpdatedAt != nil {
		t.Fatalf("expected hpp to roll back, got %+v", dish)
	}

	err = s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.CreateBOMLine(ctx, domain.DishBOM{DishID: dishID, ProductID: productID, Qty: 18, UnitID: unitID, Variant: domain.VariantHot, QtyBase: 18, UnitBaseID: unitID}); err != nil {
			return err
		}
		_, err := s.UpdateDishHPP(ctx, dishID, domain.DishHPP{HPPHot: 3600})
		return err
	})
	if err != nil {
		t.Fatalf("commit tx: %v", err)
	}

	refs, err := s.CountUnitReferences(ctx, unitID)
	if err != nil {
		t.Fatalf("count refs: %v", err)
	}
	if refs != 2 {
		t.Fatalf("expected product and bom line to reference unit, got %d", refs)
	}
	dish, _ = s.GetDish(ctx, dishID)
	if dish.HPP.HPPHot != 3600 || dish.HPPUpdatedAt == nil {
		t.Fatalf("expected committed hpp, got %+v", dish)
	}
}
