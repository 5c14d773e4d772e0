package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/uom"
)

func (s *Service) CreateStockTransaction(ctx context.Context, req domain.StockTransactionRequest) (domain.StockTransaction, error) {
	txn := domain.StockTransaction{
		ProductID: strings.TrimSpace(req.ProductID),
		Type:      strings.ToUpper(strings.TrimSpace(req.Type)),
		Qty:       req.Qty,
		UnitID:    strings.TrimSpace(req.UnitID),
		OrderID:   strings.TrimSpace(req.OrderID),
		DishID:    strings.TrimSpace(req.DishID),
		Note:      strings.TrimSpace(req.Note),
	}
	if txn.ProductID == "" || txn.UnitID == "" {
		return domain.StockTransaction{}, invalidInput("product_id and unit_id are required")
	}
	if txn.Qty <= 0 {
		return domain.StockTransaction{}, invalidInput("qty must be positive")
	}
	if txn.Type != domain.StockIn && txn.Type != domain.StockOut {
		return domain.StockTransaction{}, invalidInput("type must be %s or %s", domain.StockIn, domain.StockOut)
	}

	var created *domain.StockTransaction
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.recordStockMovement(ctx, txn)
		return err
	})
	if errors.Is(err, uom.ErrForeignBaseUnit) {
		return domain.StockTransaction{}, invalidInput("unit %s does not reduce to the base unit of product %s", txn.UnitID, txn.ProductID)
	}
	if err != nil {
		return domain.StockTransaction{}, err
	}

	s.logAudit(ctx, "stock_"+strings.ToLower(created.Type), "stock_transaction", created.ID,
		fmt.Sprintf("product=%s,qty=%g,unit=%s,qty_base=%g", created.ProductID, created.Qty, created.UnitID, created.QtyBase))
	return *created, nil
}

// DeleteStockTransaction removes a ledger entry and reverses its effect on
// the product stock.
func (s *Service) DeleteStockTransaction(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)

	var removed *domain.StockTransaction
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		txn, err := s.repo.GetStockTransaction(ctx, id)
		if err != nil {
			return err
		}
		product, err := s.repo.GetProduct(ctx, txn.ProductID)
		if err != nil {
			return err
		}
		factor, err := s.displayFactor(ctx, *product)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteStockTransaction(ctx, id); err != nil {
			return err
		}

		delta := -signedQty(*txn)
		if _, err := s.repo.AdjustProductStock(ctx, txn.ProductID, delta, delta/factor); err != nil {
			return err
		}
		removed = txn
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "stock_delete", "stock_transaction", id,
		fmt.Sprintf("product=%s,type=%s,qty_base=%g", removed.ProductID, removed.Type, removed.QtyBase))
	return nil
}

func (s *Service) ListStockTransactions(ctx context.Context, productID string, limit int) ([]domain.StockTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListStockTransactions(ctx, strings.TrimSpace(productID), limit)
}

// ConsumeDish books one OUT movement per BOM line of the served variant.
// Lines whose product or unit cannot be resolved are skipped.
func (s *Service) ConsumeDish(ctx context.Context, dishID string, req domain.ConsumeDishRequest) (domain.ConsumeDishResponse, error) {
	dishID = strings.TrimSpace(dishID)
	variant := strings.ToLower(strings.TrimSpace(req.Variant))
	if variant != domain.VariantHot && variant != domain.VariantIce {
		return domain.ConsumeDishResponse{}, invalidInput("variant must be %q or %q", domain.VariantHot, domain.VariantIce)
	}
	portions := req.Portions
	if portions == 0 {
		portions = 1
	}
	if portions < 0 {
		return domain.ConsumeDishResponse{}, invalidInput("portions must be positive")
	}

	resp := domain.ConsumeDishResponse{
		DishID:       dishID,
		Variant:      variant,
		Portions:     portions,
		Transactions: make([]domain.StockTransaction, 0, 8),
	}
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetDish(ctx, dishID); err != nil {
			return err
		}
		lines, err := s.repo.ListDishBOM(ctx, dishID)
		if err != nil {
			return err
		}

		for _, line := range lines {
			if line.Variant != variant {
				continue
			}
			created, err := s.recordStockMovement(ctx, domain.StockTransaction{
				ProductID: line.ProductID,
				Type:      domain.StockOut,
				Qty:       line.Qty * portions,
				UnitID:    line.UnitID,
				OrderID:   strings.TrimSpace(req.OrderID),
				DishID:    dishID,
				Note:      "consume " + variant,
			})
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, uom.ErrForeignBaseUnit) {
				log.Warn().
					Err(err).
					Str("dish_id", dishID).
					Str("bom_id", line.ID).
					Str("product_id", line.ProductID).
					Msg("skipping bom line on consumption")
				continue
			}
			if err != nil {
				return err
			}
			resp.Transactions = append(resp.Transactions, *created)
		}
		return nil
	})
	if err != nil {
		return domain.ConsumeDishResponse{}, err
	}

	s.logAudit(ctx, "dish_consume", "dish", dishID,
		fmt.Sprintf("variant=%s,portions=%g,order=%s,movements=%d", variant, portions, req.OrderID, len(resp.Transactions)))
	return resp, nil
}

// recordStockMovement normalizes txn with the product density, writes it and
// moves the product stock. It must run inside a store transaction.
func (s *Service) recordStockMovement(ctx context.Context, txn domain.StockTransaction) (*domain.StockTransaction, error) {
	product, err := s.repo.GetProduct(ctx, txn.ProductID)
	if err != nil {
		return nil, err
	}
	normalized, base, err := s.normalizer.NormalizeToProduct(ctx, txn.Qty, txn.UnitID, product)
	if err != nil {
		return nil, err
	}
	txn.QtyBase = normalized.QtyBase
	txn.UnitBaseID = normalized.UnitBaseID

	created, err := s.repo.CreateStockTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}

	factor := base.Factor
	if factor == 0 {
		factor = 1
	}
	delta := signedQty(*created)
	if _, err := s.repo.AdjustProductStock(ctx, created.ProductID, delta, delta/factor); err != nil {
		return nil, err
	}
	return created, nil
}

func signedQty(txn domain.StockTransaction) float64 {
	if txn.Type == domain.StockOut {
		return -txn.QtyBase
	}
	return txn.QtyBase
}
