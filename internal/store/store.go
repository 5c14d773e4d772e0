package store

import (
	"context"
	"errors"

	"restopos/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

type Repository interface {
	// RunInTx runs fn with a context bound to a single store transaction.
	// Calls made with that context observe one snapshot and commit together;
	// an error from fn rolls every write back. Nested calls reuse the outer
	// transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	ListUnits(ctx context.Context) ([]domain.Unit, error)
	GetUnit(ctx context.Context, id string) (*domain.Unit, error)
	CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error)
	UpdateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error)
	DeleteUnit(ctx context.Context, id string) error
	CountUnitReferences(ctx context.Context, id string) (int, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustProductStock(ctx context.Context, id string, deltaBase float64, deltaDisplay float64) (*domain.Product, error)

	ListDishes(ctx context.Context) ([]domain.Dish, error)
	GetDish(ctx context.Context, id string) (*domain.Dish, error)
	CreateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error)
	UpdateDishHPP(ctx context.Context, id string, hpp domain.DishHPP) (*domain.Dish, error)

	ListDishBOM(ctx context.Context, dishID string) ([]domain.DishBOM, error)
	ListBOMByProduct(ctx context.Context, productID string) ([]domain.DishBOM, error)
	ListBOMByUnit(ctx context.Context, unitID string) ([]domain.DishBOM, error)
	GetBOMLine(ctx context.Context, id string) (*domain.DishBOM, error)
	CreateBOMLine(ctx context.Context, line domain.DishBOM) (*domain.DishBOM, error)
	UpdateBOMLine(ctx context.Context, line domain.DishBOM) (*domain.DishBOM, error)
	DeleteBOMLine(ctx context.Context, id string) error

	CreateStockTransaction(ctx context.Context, txn domain.StockTransaction) (*domain.StockTransaction, error)
	GetStockTransaction(ctx context.Context, id string) (*domain.StockTransaction, error)
	DeleteStockTransaction(ctx context.Context, id string) error
	ListStockTransactions(ctx context.Context, productID string, limit int) ([]domain.StockTransaction, error)
	SumStock(ctx context.Context, productID string) (in float64, out float64, err error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type txKey struct{}

// WithTx marks ctx as carrying tx. Implementations store their own handle.
func WithTx(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction handle bound to ctx, if any.
func TxFrom(ctx context.Context) (any, bool) {
	tx := ctx.Value(txKey{})
	if tx == nil {
		return nil, false
	}
	return tx, true
}

func InTx(ctx context.Context) bool {
	_, ok := TxFrom(ctx)
	return ok
}
