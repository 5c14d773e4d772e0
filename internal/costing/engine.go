package costing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/uom"
)

// Store is the slice of the repository the engine reads and writes.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetDish(ctx context.Context, id string) (*domain.Dish, error)
	ListDishBOM(ctx context.Context, dishID string) ([]domain.DishBOM, error)
	ListBOMByProduct(ctx context.Context, productID string) ([]domain.DishBOM, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateDishHPP(ctx context.Context, id string, hpp domain.DishHPP) (*domain.Dish, error)
}

type Engine struct {
	store      Store
	normalizer *uom.Normalizer
}

func NewEngine(store Store, normalizer *uom.Normalizer) *Engine {
	return &Engine{store: store, normalizer: normalizer}
}

// RecomputeDishHPP rebuilds both variant totals of a dish from its current
// BOM lines and persists them. Lines with a missing product or unit, or
// whose unit does not reduce to the product's base unit, are skipped.
func (e *Engine) RecomputeDishHPP(ctx context.Context, dishID string) (*domain.Dish, error) {
	var updated *domain.Dish
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		dish, err := e.recompute(ctx, dishID)
		if err != nil {
			return err
		}
		updated = dish
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecomputeHPPForProduct recomputes every dish with at least one BOM line
// using productID, once per dish.
func (e *Engine) RecomputeHPPForProduct(ctx context.Context, productID string) ([]domain.Dish, error) {
	var dishes []domain.Dish
	err := e.store.RunInTx(ctx, func(ctx context.Context) error {
		lines, err := e.store.ListBOMByProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("list bom for product %s: %w", productID, err)
		}

		seen := make(map[string]struct{}, len(lines))
		dishes = make([]domain.Dish, 0, len(lines))
		for _, line := range lines {
			if _, done := seen[line.DishID]; done {
				continue
			}
			seen[line.DishID] = struct{}{}

			dish, err := e.recompute(ctx, line.DishID)
			if err != nil {
				return err
			}
			dishes = append(dishes, *dish)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dishes, nil
}

func (e *Engine) recompute(ctx context.Context, dishID string) (*domain.Dish, error) {
	if _, err := e.store.GetDish(ctx, dishID); err != nil {
		return nil, fmt.Errorf("get dish %s: %w", dishID, err)
	}

	lines, err := e.store.ListDishBOM(ctx, dishID)
	if err != nil {
		return nil, fmt.Errorf("list bom for dish %s: %w", dishID, err)
	}

	productIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := e.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load bom products for dish %s: %w", dishID, err)
	}

	var hpp domain.DishHPP
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || line.UnitID == "" {
			skipLine(line, "product or unit missing")
			continue
		}

		normalized, _, err := e.normalizer.NormalizeToProduct(ctx, line.Qty, line.UnitID, &product)
		if errors.Is(err, uom.ErrForeignBaseUnit) {
			if normalized.Passthrough {
				skipLine(line, "unit missing")
			} else {
				skipLine(line, "unit does not reduce to the product base unit")
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("normalize bom line %s: %w", line.ID, err)
		}

		cost := normalized.QtyBase * product.CostPerBaseUnit
		switch line.Variant {
		case domain.VariantHot:
			hpp.HPPHot += cost
		case domain.VariantIce:
			hpp.HPPIce += cost
		default:
			skipLine(line, "unknown variant")
		}
	}

	dish, err := e.store.UpdateDishHPP(ctx, dishID, hpp)
	if err != nil {
		return nil, fmt.Errorf("update hpp for dish %s: %w", dishID, err)
	}
	return dish, nil
}

func skipLine(line domain.DishBOM, reason string) {
	log.Warn().
		Str("dish_id", line.DishID).
		Str("bom_id", line.ID).
		Str("product_id", line.ProductID).
		Str("unit_id", line.UnitID).
		Msgf("skipping bom line: %s", reason)
}
