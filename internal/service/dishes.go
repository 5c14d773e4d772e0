package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/uom"
)

func (s *Service) ListDishes(ctx context.Context) ([]domain.Dish, error) {
	return s.repo.ListDishes(ctx)
}

func (s *Service) GetDish(ctx context.Context, id string) (domain.Dish, error) {
	dish, err := s.repo.GetDish(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Dish{}, err
	}
	return *dish, nil
}

func (s *Service) CreateDish(ctx context.Context, req domain.DishCreateRequest) (domain.Dish, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Dish{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Dish{}, invalidInput("name is required")
	}
	if req.Price.Hot < 0 || req.Price.Ice < 0 {
		return domain.Dish{}, invalidInput("prices must not be negative")
	}

	created, err := s.repo.CreateDish(ctx, domain.Dish{
		Name:     name,
		Category: strings.TrimSpace(req.Category),
		Price:    req.Price,
	})
	if err != nil {
		return domain.Dish{}, err
	}

	s.logAudit(ctx, "dish_create", "dish", created.ID,
		fmt.Sprintf("name=%s,hot=%d,ice=%d", created.Name, created.Price.Hot, created.Price.Ice))
	return *created, nil
}

func (s *Service) RecomputeDishHPP(ctx context.Context, dishID string) (domain.Dish, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Dish{}, err
	}
	dish, err := s.coster.RecomputeDishHPP(ctx, strings.TrimSpace(dishID))
	if err != nil {
		return domain.Dish{}, err
	}

	s.logAudit(ctx, "dish_hpp_recompute", "dish", dish.ID,
		fmt.Sprintf("hpphot=%g,hppice=%g", dish.HPP.HPPHot, dish.HPP.HPPIce))
	return *dish, nil
}

func (s *Service) ListDishBOM(ctx context.Context, dishID string) ([]domain.DishBOM, error) {
	dishID = strings.TrimSpace(dishID)
	if _, err := s.repo.GetDish(ctx, dishID); err != nil {
		return nil, err
	}
	return s.repo.ListDishBOM(ctx, dishID)
}

// AddBOMLine stores a new ingredient line and refreshes the dish HPP in the
// same transaction.
func (s *Service) AddBOMLine(ctx context.Context, dishID string, req domain.BOMLineRequest) (domain.BOMLineResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.BOMLineResponse{}, err
	}

	line := domain.DishBOM{
		DishID:    strings.TrimSpace(dishID),
		ProductID: strings.TrimSpace(req.ProductID),
		Qty:       req.Qty,
		UnitID:    strings.TrimSpace(req.UnitID),
		Variant:   strings.ToLower(strings.TrimSpace(req.Variant)),
	}

	var resp domain.BOMLineResponse
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetDish(ctx, line.DishID); err != nil {
			return err
		}
		if err := s.prepareBOMLine(ctx, &line); err != nil {
			return err
		}
		created, err := s.repo.CreateBOMLine(ctx, line)
		if err != nil {
			return err
		}
		dish, err := s.coster.RecomputeDishHPP(ctx, created.DishID)
		if err != nil {
			return err
		}
		resp = domain.BOMLineResponse{Line: *created, Dish: *dish}
		return nil
	})
	if err != nil {
		return domain.BOMLineResponse{}, err
	}

	s.logAudit(ctx, "bom_create", "dish_bom", resp.Line.ID,
		fmt.Sprintf("dish=%s,product=%s,qty=%g,unit=%s,variant=%s", resp.Line.DishID, resp.Line.ProductID, resp.Line.Qty, resp.Line.UnitID, resp.Line.Variant))
	return resp, nil
}

func (s *Service) UpdateBOMLine(ctx context.Context, id string, req domain.BOMLineUpdateRequest) (domain.BOMLineResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.BOMLineResponse{}, err
	}
	id = strings.TrimSpace(id)

	var resp domain.BOMLineResponse
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetBOMLine(ctx, id)
		if err != nil {
			return err
		}

		next := *current
		if req.ProductID != nil {
			next.ProductID = trimmed(req.ProductID)
		}
		if req.Qty != nil {
			next.Qty = *req.Qty
		}
		if req.UnitID != nil {
			next.UnitID = trimmed(req.UnitID)
		}
		if req.Variant != nil {
			next.Variant = strings.ToLower(trimmed(req.Variant))
		}
		if err := s.prepareBOMLine(ctx, &next); err != nil {
			return err
		}

		updated, err := s.repo.UpdateBOMLine(ctx, next)
		if err != nil {
			return err
		}
		dish, err := s.coster.RecomputeDishHPP(ctx, updated.DishID)
		if err != nil {
			return err
		}
		resp = domain.BOMLineResponse{Line: *updated, Dish: *dish}
		return nil
	})
	if err != nil {
		return domain.BOMLineResponse{}, err
	}

	s.logAudit(ctx, "bom_update", "dish_bom", resp.Line.ID,
		fmt.Sprintf("dish=%s,product=%s,qty=%g,unit=%s,variant=%s", resp.Line.DishID, resp.Line.ProductID, resp.Line.Qty, resp.Line.UnitID, resp.Line.Variant))
	return resp, nil
}

// DeleteBOMLine removes the line and returns the dish with its refreshed HPP.
func (s *Service) DeleteBOMLine(ctx context.Context, id string) (domain.Dish, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Dish{}, err
	}
	id = strings.TrimSpace(id)

	var dish *domain.Dish
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		line, err := s.repo.GetBOMLine(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteBOMLine(ctx, id); err != nil {
			return err
		}
		dish, err = s.coster.RecomputeDishHPP(ctx, line.DishID)
		return err
	})
	if err != nil {
		return domain.Dish{}, err
	}

	s.logAudit(ctx, "bom_delete", "dish_bom", id, "dish="+dish.ID)
	return *dish, nil
}

// prepareBOMLine validates the line and fills its derived base quantity. An
// unknown product is rejected; an unknown unit is stored as a passthrough.
func (s *Service) prepareBOMLine(ctx context.Context, line *domain.DishBOM) error {
	if line.ProductID == "" || line.UnitID == "" {
		return invalidInput("product_id and unit_id are required")
	}
	if line.Qty <= 0 {
		return invalidInput("qty must be positive")
	}
	if line.Variant != domain.VariantHot && line.Variant != domain.VariantIce {
		return invalidInput("variant must be %q or %q", domain.VariantHot, domain.VariantIce)
	}

	product, err := s.repo.GetProduct(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalidInput("product %s does not exist", line.ProductID)
		}
		return err
	}

	normalized, _, err := s.normalizer.NormalizeToProduct(ctx, line.Qty, line.UnitID, product)
	switch {
	case errors.Is(err, uom.ErrForeignBaseUnit) && normalized.Passthrough:
		// Unknown units are kept as written; costing skips them.
	case errors.Is(err, uom.ErrForeignBaseUnit):
		return invalidInput("unit %s does not reduce to the base unit of product %s", line.UnitID, line.ProductID)
	case err != nil:
		return err
	}
	line.QtyBase = normalized.QtyBase
	line.UnitBaseID = normalized.UnitBaseID
	return nil
}
