package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/uom"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Supplier{}, invalidInput("name is required")
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:  name,
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListPurchases(ctx, limit)
}

// ReceivePurchase books every item as an IN movement, folds its cost into the
// product's weighted average cost and recomputes the dishes of every product
// whose cost moved. Everything commits or nothing does.
func (s *Service) ReceivePurchase(ctx context.Context, req domain.PurchaseReceiveRequest) (domain.PurchaseResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseResponse{}, err
	}
	supplierID := strings.TrimSpace(req.SupplierID)
	if supplierID == "" {
		return domain.PurchaseResponse{}, invalidInput("supplier_id is required")
	}
	if len(req.Items) == 0 {
		return domain.PurchaseResponse{}, invalidInput("at least one item is required")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" || strings.TrimSpace(item.UnitID) == "" {
			return domain.PurchaseResponse{}, invalidInput("item %d: product_id and unit_id are required", i)
		}
		if item.Qty <= 0 {
			return domain.PurchaseResponse{}, invalidInput("item %d: qty must be positive", i)
		}
		if item.TotalCost < 0 {
			return domain.PurchaseResponse{}, invalidInput("item %d: total_cost must not be negative", i)
		}
	}

	var resp domain.PurchaseResponse
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetSupplier(ctx, supplierID); err != nil {
			return err
		}

		purchase := domain.Purchase{
			SupplierID: supplierID,
			Note:       strings.TrimSpace(req.Note),
			Items:      make([]domain.PurchaseItem, 0, len(req.Items)),
			ReceivedAt: time.Now().UTC(),
		}
		total := decimal.Zero
		costMoved := make([]string, 0, len(req.Items))
		moved := make(map[string]struct{}, len(req.Items))

		for _, item := range req.Items {
			productID := strings.TrimSpace(item.ProductID)
			product, err := s.repo.GetProduct(ctx, productID)
			if errors.Is(err, store.ErrNotFound) {
				return invalidInput("product %s does not exist", productID)
			}
			if err != nil {
				return err
			}
			stockBefore := product.StockBase

			txn, err := s.recordStockMovement(ctx, domain.StockTransaction{
				ProductID: productID,
				Type:      domain.StockIn,
				Qty:       item.Qty,
				UnitID:    strings.TrimSpace(item.UnitID),
				Note:      "purchase receipt",
			})
			if errors.Is(err, uom.ErrForeignBaseUnit) {
				return invalidInput("unit %s does not reduce to the base unit of product %s", item.UnitID, productID)
			}
			if err != nil {
				return err
			}

			cost := weightedAverageCost(stockBefore, product.CostPerBaseUnit, txn.QtyBase, item.TotalCost)
			if cost != product.CostPerBaseUnit {
				next := *product
				next.CostPerBaseUnit = cost
				if _, err := s.repo.UpdateProduct(ctx, next); err != nil {
					return err
				}
				if _, seen := moved[productID]; !seen {
					moved[productID] = struct{}{}
					costMoved = append(costMoved, productID)
				}
			}

			total = total.Add(decimal.NewFromFloat(item.TotalCost))
			purchase.Items = append(purchase.Items, domain.PurchaseItem{
				ProductID:  productID,
				Qty:        item.Qty,
				UnitID:     txn.UnitID,
				TotalCost:  item.TotalCost,
				QtyBase:    txn.QtyBase,
				UnitBaseID: txn.UnitBaseID,
			})
		}
		purchase.TotalCost = total.InexactFloat64()

		dishes := make(map[string]struct{})
		for _, productID := range costMoved {
			updated, err := s.coster.RecomputeHPPForProduct(ctx, productID)
			if err != nil {
				return err
			}
			for _, dish := range updated {
				dishes[dish.ID] = struct{}{}
			}
		}

		created, err := s.repo.CreatePurchase(ctx, purchase)
		if err != nil {
			return err
		}
		resp = domain.PurchaseResponse{Purchase: *created, UpdatedDishes: len(dishes)}
		return nil
	})
	if err != nil {
		return domain.PurchaseResponse{}, err
	}

	s.logAudit(ctx, "purchase_receive", "purchase", resp.Purchase.ID,
		fmt.Sprintf("supplier=%s,items=%d,total=%g,dishes_recomputed=%d", supplierID, len(resp.Purchase.Items), resp.Purchase.TotalCost, resp.UpdatedDishes))
	return resp, nil
}

// weightedAverageCost blends the cost of the stock on hand with the unit
// cost of a receipt. Negative stock on hand counts as empty.
func weightedAverageCost(stockBase float64, costPerBase float64, qtyBase float64, totalCost float64) float64 {
	if qtyBase <= 0 {
		return costPerBase
	}
	stock := decimal.NewFromFloat(stockBase)
	if stock.IsNegative() {
		stock = decimal.Zero
	}
	received := decimal.NewFromFloat(qtyBase)
	onHandValue := stock.Mul(decimal.NewFromFloat(costPerBase))

	return onHandValue.Add(decimal.NewFromFloat(totalCost)).
		Div(stock.Add(received)).
		InexactFloat64()
}
