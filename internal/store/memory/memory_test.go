package memory

import (
	"context"
	"errors"
	"testing"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

func TestRunInTxRollsBackOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if !store.InTx(ctx) {
			t.Fatalf("expected transactional context")
		}
		if _, err := s.UpdateDishHPP(ctx, "dish-americano", domain.DishHPP{HPPHot: 999}); err != nil {
			return err
		}
		if err := s.DeleteBOMLine(ctx, "bom-am-hot-coffee"); err != nil {
			return err
		}
		if _, err := s.AdjustProductStock(ctx, "prd-coffee", -100, -0.1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	dish, err := s.GetDish(ctx, "dish-americano")
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	if dish.HPP.HPPHot != 0 || dish.HPPUpdatedAt != nil {
		t.Fatalf("expected hpp rollback, got %+v", dish.HPP)
	}
	if _, err := s.GetBOMLine(ctx, "bom-am-hot-coffee"); err != nil {
		t.Fatalf("expected bom line restored, got %v", err)
	}
	product, _ := s.GetProduct(ctx, "prd-coffee")
	if product.StockBase != 5000 {
		t.Fatalf("expected stock rollback to 5000, got %v", product.StockBase)
	}
}

func TestRunInTxCommitsAndNests(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		return s.RunInTx(ctx, func(ctx context.Context) error {
			_, err := s.UpdateDishHPP(ctx, "dish-americano", domain.DishHPP{HPPHot: 4500, HPPIce: 5600})
			return err
		})
	})
	if err != nil {
		t.Fatalf("run in tx: %v", err)
	}

	dish, _ := s.GetDish(ctx, "dish-americano")
	if dish.HPP.HPPHot != 4500 || dish.HPP.HPPIce != 5600 || dish.HPPUpdatedAt == nil {
		t.Fatalf("expected committed hpp, got %+v", dish)
	}
}

func TestCountUnitReferencesCoversEveryReferrer(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	refs, err := s.CountUnitReferences(ctx, "unit-g")
	if err != nil {
		t.Fatalf("count references: %v", err)
	}
	if refs == 0 {
		t.Fatalf("expected gram to be referenced")
	}

	unit, err := s.CreateUnit(ctx, domain.Unit{Name: "Sendok", Short: "sdm", BaseUnitID: "unit-ml", Conversion: 15, Type: domain.UnitTypeVolume})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	refs, _ = s.CountUnitReferences(ctx, unit.ID)
	if refs != 0 {
		t.Fatalf("expected fresh unit to be unreferenced, got %d", refs)
	}
}

func TestCreateUnitRejectsDuplicateShort(t *testing.T) {
	s := NewSeeded()
	_, err := s.CreateUnit(context.Background(), domain.Unit{Name: "Kilo", Short: "KG", Conversion: 1})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSeededStockMatchesLedger(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range products {
		in, out, err := s.SumStock(ctx, p.ID)
		if err != nil {
			t.Fatalf("sum stock: %v", err)
		}
		if in-out != p.StockBase {
			t.Fatalf("%s: ledger balance %v does not match stock %v", p.ID, in-out, p.StockBase)
		}
	}
}

func TestListBOMByUnitMatchesDirectAndBaseUnit(t *testing.T) {
	s := NewSeeded()
	lines, err := s.ListBOMByUnit(context.Background(), "unit-kg")
	if err != nil {
		t.Fatalf("list bom by unit: %v", err)
	}
	if len(lines) != 1 || lines[0].ID != "bom-am-ice-ice" {
		t.Fatalf("expected only the kilogram ice line, got %+v", lines)
	}

	lines, _ = s.ListBOMByUnit(context.Background(), "unit-ml")
	for _, line := range lines {
		if line.UnitID != "unit-ml" && line.UnitBaseID != "unit-ml" {
			t.Fatalf("unexpected line %+v", line)
		}
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 millilitre lines, got %d", len(lines))
	}
}
