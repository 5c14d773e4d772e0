package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:            strings.TrimSpace(req.Name),
		Category:        strings.TrimSpace(req.Category),
		DefaultUnitID:   strings.TrimSpace(req.DefaultUnitID),
		PriceCents:      req.PriceCents,
		CostPerBaseUnit: req.CostPerBaseUnit,
		Density:         req.Density,
	}
	if err := s.validateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,unit=%s,cost=%g", created.Name, created.DefaultUnitID, created.CostPerBaseUnit))
	return *created, nil
}

// UpdateProduct applies the patch. A cost or density change recomputes every
// dish using the product before the transaction commits.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	id = strings.TrimSpace(id)

	var updated *domain.Product
	var recomputed int
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			return err
		}

		next := *current
		if req.Name != nil {
			next.Name = trimmed(req.Name)
		}
		if req.Category != nil {
			next.Category = trimmed(req.Category)
		}
		if req.DefaultUnitID != nil {
			next.DefaultUnitID = trimmed(req.DefaultUnitID)
		}
		if req.PriceCents != nil {
			next.PriceCents = *req.PriceCents
		}
		if req.CostPerBaseUnit != nil {
			next.CostPerBaseUnit = *req.CostPerBaseUnit
		}
		if req.Density != nil {
			next.Density = *req.Density
		}
		if req.Active != nil {
			next.Active = *req.Active
		}
		if err := s.validateProduct(ctx, next); err != nil {
			return err
		}
		if next.DefaultUnitID != current.DefaultUnitID {
			if err := s.checkSameRoot(ctx, current.DefaultUnitID, next.DefaultUnitID); err != nil {
				return err
			}
		}

		updated, err = s.repo.UpdateProduct(ctx, next)
		if err != nil {
			return err
		}

		if next.DefaultUnitID != current.DefaultUnitID {
			factor, err := s.displayFactor(ctx, *updated)
			if err != nil {
				return err
			}
			display := updated.StockBase / factor
			updated, err = s.repo.AdjustProductStock(ctx, id, 0, display-updated.StockDisplay)
			if err != nil {
				return err
			}
		}

		if next.CostPerBaseUnit != current.CostPerBaseUnit || next.Density != current.Density {
			dishes, err := s.coster.RecomputeHPPForProduct(ctx, id)
			if err != nil {
				return err
			}
			recomputed = len(dishes)
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", updated.ID,
		fmt.Sprintf("cost=%g,density=%g,active=%t,dishes_recomputed=%d", updated.CostPerBaseUnit, updated.Density, updated.Active, recomputed))
	return *updated, nil
}

func (s *Service) StockBalance(ctx context.Context, productID string) (domain.StockBalance, error) {
	productID = strings.TrimSpace(productID)
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockBalance{}, err
	}
	in, out, err := s.repo.SumStock(ctx, productID)
	if err != nil {
		return domain.StockBalance{}, err
	}
	res, err := s.normalizer.Graph().ResolveToBase(ctx, product.DefaultUnitID)
	if err != nil {
		return domain.StockBalance{}, err
	}

	factor := res.Factor
	if factor == 0 {
		factor = 1
	}
	balance := in - out
	return domain.StockBalance{
		ProductID:     productID,
		In:            in,
		Out:           out,
		Balance:       balance,
		UnitBaseID:    res.RootUnitID,
		Display:       balance / factor,
		DisplayUnitID: product.DefaultUnitID,
	}, nil
}

// checkSameRoot keeps a product's stock and ledger in one base unit when its
// default unit is swapped.
func (s *Service) checkSameRoot(ctx context.Context, fromUnitID string, toUnitID string) error {
	graph := s.normalizer.Graph()
	from, err := graph.ResolveToBase(ctx, fromUnitID)
	if err != nil {
		return err
	}
	to, err := graph.ResolveToBase(ctx, toUnitID)
	if err != nil {
		return err
	}
	if from.RootUnitID != to.RootUnitID {
		return invalidInput("default unit %s reduces to %s, product stock is kept in %s", toUnitID, to.RootUnitID, from.RootUnitID)
	}
	return nil
}

func (s *Service) validateProduct(ctx context.Context, product domain.Product) error {
	if product.Name == "" {
		return invalidInput("name is required")
	}
	if product.DefaultUnitID == "" {
		return invalidInput("default_unit_id is required")
	}
	if product.CostPerBaseUnit < 0 {
		return invalidInput("cost_per_base_unit must not be negative")
	}
	if product.Density < 0 {
		return invalidInput("density must not be negative")
	}
	if product.PriceCents < 0 {
		return invalidInput("price_cents must not be negative")
	}
	if _, err := s.repo.GetUnit(ctx, product.DefaultUnitID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalidInput("default unit %s does not exist", product.DefaultUnitID)
		}
		return err
	}
	return nil
}
