package uom

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

const DefaultMaxHops = 16

var ErrCycleDetected = errors.New("unit cycle detected")

// UnitSource looks units up by id. A missing unit is reported as store.ErrNotFound.
type UnitSource interface {
	GetUnit(ctx context.Context, id string) (*domain.Unit, error)
}

type Resolution struct {
	UnitID     string
	RootUnitID string
	Factor     float64
	Hops       int
	Missing    bool
}

type Graph struct {
	source  UnitSource
	maxHops int
}

func NewGraph(source UnitSource, maxHops int) *Graph {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Graph{source: source, maxHops: maxHops}
}

// ResolveToBase follows the base-unit chain of unitID to its root and returns
// the product of every conversion on the way, the root's own included. A unit
// that cannot be found is treated as the root of whatever chain led to it.
func (g *Graph) ResolveToBase(ctx context.Context, unitID string) (Resolution, error) {
	res := Resolution{UnitID: unitID, Factor: 1}
	visited := make(map[string]struct{}, 4)
	currentID := unitID

	for {
		if err := g.guard(visited, currentID, res.Hops); err != nil {
			return Resolution{}, fmt.Errorf("resolve unit %s: %w", unitID, err)
		}

		unit, found, err := g.lookup(ctx, currentID)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolve unit %s: %w", unitID, err)
		}
		if !found {
			res.RootUnitID = currentID
			res.Missing = true
			return res, nil
		}

		res.Factor *= conversionOf(unit)
		if unit.IsRoot() {
			res.RootUnitID = unit.ID
			return res, nil
		}
		currentID = unit.BaseUnitID
		res.Hops++
	}
}

func (g *Graph) guard(visited map[string]struct{}, id string, hops int) error {
	if hops > g.maxHops {
		return fmt.Errorf("%w: more than %d hops at unit %s", ErrCycleDetected, g.maxHops, id)
	}
	if _, seen := visited[id]; seen {
		return fmt.Errorf("%w: unit %s revisited", ErrCycleDetected, id)
	}
	visited[id] = struct{}{}
	return nil
}

// lookup reports found=false for a dangling reference and logs it.
func (g *Graph) lookup(ctx context.Context, id string) (*domain.Unit, bool, error) {
	unit, err := g.source.GetUnit(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Str("unit_id", id).Msg("unit not found, passing quantity through")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return unit, true, nil
}

func conversionOf(unit *domain.Unit) float64 {
	if unit.Conversion <= 0 {
		return 1
	}
	return unit.Conversion
}
