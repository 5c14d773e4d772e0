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

func (s *Service) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	return s.repo.ListUnits(ctx)
}

func (s *Service) GetUnit(ctx context.Context, id string) (domain.Unit, error) {
	unit, err := s.repo.GetUnit(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Unit{}, err
	}
	return *unit, nil
}

func (s *Service) CreateUnit(ctx context.Context, req domain.UnitCreateRequest) (domain.Unit, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Unit{}, err
	}

	unit := domain.Unit{
		Name:       strings.TrimSpace(req.Name),
		Short:      strings.TrimSpace(req.Short),
		BaseUnitID: strings.TrimSpace(req.BaseUnitID),
		Conversion: req.Conversion,
		Type:       strings.ToLower(strings.TrimSpace(req.Type)),
	}
	if err := s.validateUnit(ctx, &unit); err != nil {
		return domain.Unit{}, err
	}

	created, err := s.repo.CreateUnit(ctx, unit)
	if err != nil {
		return domain.Unit{}, err
	}

	s.logAudit(ctx, "unit_create", "unit", created.ID,
		fmt.Sprintf("short=%s,base=%s,conversion=%g", created.Short, created.BaseUnitID, created.Conversion))
	return *created, nil
}

// UpdateUnit applies the patch and renormalizes every BOM line whose chain
// runs through the unit, recomputing the affected dishes in the same
// transaction.
func (s *Service) UpdateUnit(ctx context.Context, id string, req domain.UnitUpdateRequest) (domain.Unit, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Unit{}, err
	}
	id = strings.TrimSpace(id)

	var updated *domain.Unit
	var touchedLines int
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetUnit(ctx, id)
		if err != nil {
			return err
		}

		next := *current
		if req.Name != nil {
			next.Name = strings.TrimSpace(*req.Name)
		}
		if req.Short != nil {
			next.Short = strings.TrimSpace(*req.Short)
		}
		if req.BaseUnitID != nil {
			next.BaseUnitID = strings.TrimSpace(*req.BaseUnitID)
		}
		if req.Conversion != nil {
			next.Conversion = *req.Conversion
		}
		if req.Type != nil {
			next.Type = strings.ToLower(strings.TrimSpace(*req.Type))
		}
		if err := s.validateUnit(ctx, &next); err != nil {
			return err
		}

		var rootsBefore map[string]string
		if next.BaseUnitID != current.BaseUnitID {
			if rootsBefore, err = s.productRoots(ctx, id); err != nil {
				return err
			}
		}

		updated, err = s.repo.UpdateUnit(ctx, next)
		if err != nil {
			return err
		}

		if rootsBefore != nil {
			rootsAfter, err := s.productRoots(ctx, id)
			if err != nil {
				return err
			}
			for productID, root := range rootsBefore {
				if rootsAfter[productID] != root {
					return invalidInput("base change moves product %s from %s to %s", productID, root, rootsAfter[productID])
				}
			}
		}

		touchedLines, err = s.renormalizeUnitLines(ctx, id)
		return err
	})
	if err != nil {
		return domain.Unit{}, err
	}
	s.units.Invalidate(ctx, id)

	s.logAudit(ctx, "unit_update", "unit", updated.ID,
		fmt.Sprintf("short=%s,base=%s,conversion=%g,bom_lines=%d", updated.Short, updated.BaseUnitID, updated.Conversion, touchedLines))
	return *updated, nil
}

func (s *Service) DeleteUnit(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)

	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetUnit(ctx, id); err != nil {
			return err
		}
		refs, err := s.repo.CountUnitReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: unit %s is referenced %d times", store.ErrConflict, id, refs)
		}
		return s.repo.DeleteUnit(ctx, id)
	})
	if err != nil {
		return err
	}
	s.units.Invalidate(ctx, id)

	s.logAudit(ctx, "unit_delete", "unit", id, "")
	return nil
}

func (s *Service) ResolveUnit(ctx context.Context, id string) (domain.UnitResolveResponse, error) {
	res, err := s.normalizer.Graph().ResolveToBase(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.UnitResolveResponse{}, err
	}
	return domain.UnitResolveResponse{
		UnitID:     res.UnitID,
		RootUnitID: res.RootUnitID,
		Factor:     res.Factor,
		Hops:       res.Hops,
		Missing:    res.Missing,
	}, nil
}

func (s *Service) Normalize(ctx context.Context, req domain.NormalizeRequest) (domain.NormalizeResponse, error) {
	req.UnitID = strings.TrimSpace(req.UnitID)
	if req.UnitID == "" {
		return domain.NormalizeResponse{}, invalidInput("unit_id is required")
	}

	var product *domain.Product
	if productID := strings.TrimSpace(req.ProductID); productID != "" {
		p, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return domain.NormalizeResponse{}, err
		}
		product = p
	}

	normalized, err := s.normalizer.Normalize(ctx, req.Qty, req.UnitID, product)
	if err != nil {
		return domain.NormalizeResponse{}, err
	}
	return domain.NormalizeResponse{
		QtyBase:     normalized.QtyBase,
		UnitBaseID:  normalized.UnitBaseID,
		Passthrough: normalized.Passthrough,
	}, nil
}

func (s *Service) validateUnit(ctx context.Context, unit *domain.Unit) error {
	if unit.Name == "" || unit.Short == "" {
		return invalidInput("name and short are required")
	}
	if unit.Conversion == 0 {
		unit.Conversion = 1
	}
	if unit.Conversion < 0 {
		return invalidInput("conversion must be positive")
	}
	switch unit.Type {
	case "", domain.UnitTypeMass, domain.UnitTypeVolume, domain.UnitTypeCount:
	default:
		return invalidInput("unsupported unit type %q", unit.Type)
	}
	if unit.BaseUnitID == "" {
		return nil
	}
	if unit.BaseUnitID == unit.ID {
		return invalidInput("unit cannot be its own base")
	}
	return s.checkBaseChain(ctx, unit.ID, unit.BaseUnitID)
}

// checkBaseChain walks from baseID to its root and rejects chains that would
// come back to unitID or that are already too long.
func (s *Service) checkBaseChain(ctx context.Context, unitID string, baseID string) error {
	currentID := baseID
	for hops := 0; hops <= uom.DefaultMaxHops; hops++ {
		current, err := s.repo.GetUnit(ctx, currentID)
		if errors.Is(err, store.ErrNotFound) {
			if currentID == baseID {
				return invalidInput("base unit %s does not exist", baseID)
			}
			return nil
		}
		if err != nil {
			return err
		}
		if unitID != "" && current.BaseUnitID == unitID {
			return invalidInput("base unit %s would create a cycle", baseID)
		}
		if current.IsRoot() {
			return nil
		}
		currentID = current.BaseUnitID
	}
	return invalidInput("base unit chain of %s is longer than %d hops", baseID, uom.DefaultMaxHops)
}

func (s *Service) renormalizeUnitLines(ctx context.Context, unitID string) (int, error) {
	affected, err := s.unitWithDescendants(ctx, unitID)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	dishIDs := make([]string, 0, 8)
	dishSeen := make(map[string]struct{})
	for _, id := range affected {
		lines, err := s.repo.ListBOMByUnit(ctx, id)
		if err != nil {
			return 0, err
		}
		for _, line := range lines {
			if _, done := seen[line.ID]; done {
				continue
			}
			seen[line.ID] = struct{}{}

			if err := s.renormalizeLine(ctx, line); err != nil {
				return 0, err
			}
			if _, ok := dishSeen[line.DishID]; !ok {
				dishSeen[line.DishID] = struct{}{}
				dishIDs = append(dishIDs, line.DishID)
			}
		}
	}

	for _, dishID := range dishIDs {
		if _, err := s.coster.RecomputeDishHPP(ctx, dishID); err != nil {
			return 0, err
		}
	}
	return len(seen), nil
}

func (s *Service) renormalizeLine(ctx context.Context, line domain.DishBOM) error {
	var product *domain.Product
	p, err := s.repo.GetProduct(ctx, line.ProductID)
	switch {
	case err == nil:
		product = p
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	var normalized uom.Normalized
	if product == nil {
		normalized, err = s.normalizer.Normalize(ctx, line.Qty, line.UnitID, nil)
	} else {
		normalized, _, err = s.normalizer.NormalizeToProduct(ctx, line.Qty, line.UnitID, product)
		if errors.Is(err, uom.ErrForeignBaseUnit) {
			if !normalized.Passthrough {
				return invalidInput("bom line %s would no longer reduce to the base unit of product %s", line.ID, line.ProductID)
			}
			err = nil
		}
	}
	if err != nil {
		return err
	}
	line.QtyBase = normalized.QtyBase
	line.UnitBaseID = normalized.UnitBaseID
	_, err = s.repo.UpdateBOMLine(ctx, line)
	return err
}

// productRoots maps every product whose default unit is unitID or one of its
// descendants to the root that unit resolves to.
func (s *Service) productRoots(ctx context.Context, unitID string) (map[string]string, error) {
	affected, err := s.unitWithDescendants(ctx, unitID)
	if err != nil {
		return nil, err
	}
	inChain := make(map[string]struct{}, len(affected))
	for _, id := range affected {
		inChain[id] = struct{}{}
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	roots := make(map[string]string)
	for _, product := range products {
		if _, ok := inChain[product.DefaultUnitID]; !ok {
			continue
		}
		res, err := s.normalizer.Graph().ResolveToBase(ctx, product.DefaultUnitID)
		if err != nil {
			return nil, err
		}
		roots[product.ID] = res.RootUnitID
	}
	return roots, nil
}

func (s *Service) unitWithDescendants(ctx context.Context, unitID string) ([]string, error) {
	units, err := s.repo.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	children := make(map[string][]string, len(units))
	for _, u := range units {
		if u.BaseUnitID != "" {
			children[u.BaseUnitID] = append(children[u.BaseUnitID], u.ID)
		}
	}

	result := []string{unitID}
	visited := map[string]struct{}{unitID: {}}
	for i := 0; i < len(result); i++ {
		for _, child := range children[result[i]] {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			result = append(result, child)
		}
	}
	return result, nil
}
