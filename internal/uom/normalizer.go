package uom

import (
	"context"
	"errors"
	"fmt"

	"restopos/backend/internal/domain"
)

// ErrForeignBaseUnit reports a quantity whose unit chain ends at a root that
// is not the root of the product's default unit and cannot be bridged.
var ErrForeignBaseUnit = errors.New("unit does not reduce to the product base unit")

type Normalized struct {
	QtyBase     float64
	UnitBaseID  string
	Passthrough bool
}

type Normalizer struct {
	graph *Graph
}

func NewNormalizer(graph *Graph) *Normalizer {
	return &Normalizer{graph: graph}
}

func (n *Normalizer) Graph() *Graph {
	return n.graph
}

// Normalize reduces qty in unitID to its root unit. With a product, a hop
// whose unit and base unit sit in different families is converted through
// the product's density instead of the plain conversion factor.
func (n *Normalizer) Normalize(ctx context.Context, qty float64, unitID string, product *domain.Product) (Normalized, error) {
	if product == nil {
		res, err := n.graph.ResolveToBase(ctx, unitID)
		if err != nil {
			return Normalized{}, err
		}
		return Normalized{
			QtyBase:     qty * res.Factor,
			UnitBaseID:  res.RootUnitID,
			Passthrough: res.Missing,
		}, nil
	}
	return n.normalizeWithDensity(ctx, qty, unitID, product)
}

// NormalizeToProduct normalizes qty in unitID into the root unit of the
// product's default unit, which is returned as target. A mass root meets a
// volume root through the product density when one is set. Any other
// mismatch wraps ErrForeignBaseUnit and still returns the unbridged result.
func (n *Normalizer) NormalizeToProduct(ctx context.Context, qty float64, unitID string, product *domain.Product) (normalized Normalized, target Resolution, err error) {
	target, err = n.graph.ResolveToBase(ctx, product.DefaultUnitID)
	if err != nil {
		return Normalized{}, Resolution{}, fmt.Errorf("resolve default unit of product %s: %w", product.ID, err)
	}
	normalized, err = n.Normalize(ctx, qty, unitID, product)
	if err != nil {
		return Normalized{}, target, err
	}
	if normalized.UnitBaseID == target.RootUnitID {
		return normalized, target, nil
	}

	foreign := fmt.Errorf("%w: %s reduces to %s, product %s uses %s",
		ErrForeignBaseUnit, unitID, normalized.UnitBaseID, product.ID, target.RootUnitID)
	if normalized.Passthrough || target.Missing || product.Density <= 0 {
		return normalized, target, foreign
	}

	from, found, err := n.graph.lookup(ctx, normalized.UnitBaseID)
	if err != nil {
		return Normalized{}, target, err
	}
	to, toFound, err := n.graph.lookup(ctx, target.RootUnitID)
	if err != nil {
		return Normalized{}, target, err
	}
	if !found || !toFound || !bridgesMassVolume(from, to) {
		return normalized, target, foreign
	}
	return Normalized{
		QtyBase:    ConvertCrossFamily(normalized.QtyBase, *from, *to, product.Density),
		UnitBaseID: to.ID,
	}, target, nil
}

func (n *Normalizer) normalizeWithDensity(ctx context.Context, qty float64, unitID string, product *domain.Product) (Normalized, error) {
	g := n.graph
	visited := make(map[string]struct{}, 4)
	currentID := unitID
	var current *domain.Unit

	for hops := 0; ; hops++ {
		if err := g.guard(visited, currentID, hops); err != nil {
			return Normalized{}, fmt.Errorf("normalize %s for product %s: %w", unitID, product.ID, err)
		}

		if current == nil {
			unit, found, err := g.lookup(ctx, currentID)
			if err != nil {
				return Normalized{}, fmt.Errorf("normalize %s for product %s: %w", unitID, product.ID, err)
			}
			if !found {
				return Normalized{QtyBase: qty, UnitBaseID: currentID, Passthrough: true}, nil
			}
			current = unit
		}

		if current.IsRoot() {
			return Normalized{QtyBase: qty * conversionOf(current), UnitBaseID: current.ID}, nil
		}

		base, found, err := g.lookup(ctx, current.BaseUnitID)
		if err != nil {
			return Normalized{}, fmt.Errorf("normalize %s for product %s: %w", unitID, product.ID, err)
		}
		if found && crossesFamily(current, base) {
			qty = ConvertCrossFamily(qty, *current, *base, product.Density)
		} else {
			qty *= conversionOf(current)
		}

		currentID = current.BaseUnitID
		if !found {
			return Normalized{QtyBase: qty, UnitBaseID: currentID, Passthrough: true}, nil
		}
		current = base
	}
}

func crossesFamily(unit *domain.Unit, base *domain.Unit) bool {
	return unit.Type != "" && base.Type != "" && unit.Type != base.Type
}

func bridgesMassVolume(from *domain.Unit, to *domain.Unit) bool {
	switch {
	case from.Type == domain.UnitTypeMass && to.Type == domain.UnitTypeVolume:
		return true
	case from.Type == domain.UnitTypeVolume && to.Type == domain.UnitTypeMass:
		return true
	}
	return false
}
