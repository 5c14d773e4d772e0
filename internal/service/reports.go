package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CostingReport lists every active dish with its HPP and margin per variant.
func (s *Service) CostingReport(ctx context.Context) (domain.CostingReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.CostingReport{}, err
	}
	dishes, err := s.repo.ListDishes(ctx)
	if err != nil {
		return domain.CostingReport{}, err
	}

	report := domain.CostingReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Dishes:      make([]domain.CostingReportLine, 0, len(dishes)),
	}
	for _, dish := range dishes {
		if !dish.Active {
			continue
		}
		line := domain.CostingReportLine{
			DishID:        dish.ID,
			Name:          dish.Name,
			Category:      dish.Category,
			PriceHot:      dish.Price.Hot,
			PriceIce:      dish.Price.Ice,
			HPPHot:        dish.HPP.HPPHot,
			HPPIce:        dish.HPP.HPPIce,
			MarginHotPct:  marginPct(dish.Price.Hot, dish.HPP.HPPHot),
			MarginIcePct:  marginPct(dish.Price.Ice, dish.HPP.HPPIce),
			NeverComputed: dish.HPPUpdatedAt == nil,
		}
		if dish.HPPUpdatedAt != nil {
			line.HPPUpdatedAt = dish.HPPUpdatedAt.UTC().Format(time.RFC3339)
		}
		report.Dishes = append(report.Dishes, line)
	}
	return report, nil
}

func marginPct(price int64, hpp float64) string {
	if price <= 0 {
		return decimal.Zero.StringFixed(2)
	}
	p := decimal.NewFromInt(price)
	return p.Sub(decimal.NewFromFloat(hpp)).Div(p).Mul(hundred).StringFixed(2)
}
