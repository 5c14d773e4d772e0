package memory

import (
	"context"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

type Store struct {
	// txMu serializes writers: RunInTx holds it for the whole callback, plain
	// writes hold it for a single call.
	txMu sync.Mutex
	mu   sync.RWMutex
	data dataset
}

type dataset struct {
	units           map[string]domain.Unit
	products        map[string]domain.Product
	dishes          map[string]domain.Dish
	bomLines        map[string]domain.DishBOM
	stockTxns       map[string]domain.StockTransaction
	suppliersByID   map[string]domain.Supplier
	purchasesByID   map[string]domain.Purchase
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func (d dataset) clone() dataset {
	purchases := make(map[string]domain.Purchase, len(d.purchasesByID))
	for id, p := range d.purchasesByID {
		p.Items = slices.Clone(p.Items)
		purchases[id] = p
	}
	dishes := make(map[string]domain.Dish, len(d.dishes))
	for id, dish := range d.dishes {
		dishes[id] = cloneDish(dish)
	}
	return dataset{
		units:           maps.Clone(d.units),
		products:        maps.Clone(d.products),
		dishes:          dishes,
		bomLines:        maps.Clone(d.bomLines),
		stockTxns:       maps.Clone(d.stockTxns),
		suppliersByID:   maps.Clone(d.suppliersByID),
		purchasesByID:   purchases,
		auditLogs:       slices.Clone(d.auditLogs),
		usersByUsername: maps.Clone(d.usersByUsername),
	}
}

// New returns an empty store with the seeded user accounts only.
func New() *Store {
	return &Store{data: dataset{
		units:           make(map[string]domain.Unit),
		products:        make(map[string]domain.Product),
		dishes:          make(map[string]domain.Dish),
		bomLines:        make(map[string]domain.DishBOM),
		stockTxns:       make(map[string]domain.StockTransaction),
		suppliersByID:   make(map[string]domain.Supplier),
		purchasesByID:   make(map[string]domain.Purchase),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD;
// unset variables fall back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Warn().Msg("memory store using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"operator", operatorPwd, domain.RoleOperator},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store holding a small coffee-bar catalogue.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, u := range []domain.Unit{
		{ID: "unit-g", Name: "Gram", Short: "g", Conversion: 1, Type: domain.UnitTypeMass},
		{ID: "unit-kg", Name: "Kilogram", Short: "kg", BaseUnitID: "unit-g", Conversion: 1000, Type: domain.UnitTypeMass},
		{ID: "unit-ml", Name: "Mililiter", Short: "ml", Conversion: 1, Type: domain.UnitTypeVolume},
		{ID: "unit-l", Name: "Liter", Short: "L", BaseUnitID: "unit-ml", Conversion: 1000, Type: domain.UnitTypeVolume},
		{ID: "unit-pcs", Name: "Pieces", Short: "pcs", Conversion: 1, Type: domain.UnitTypeCount},
	} {
		u.CreatedAt, u.UpdatedAt = now, now
		s.data.units[u.ID] = u
	}

	// Costs are per root unit: gram, millilitre or piece.
	for _, p := range []domain.Product{
		{ID: "prd-coffee", Name: "Biji Kopi Arabika", Category: "ingredient", DefaultUnitID: "unit-kg", CostPerBaseUnit: 250, StockBase: 5000},
		{ID: "prd-milk", Name: "Susu Segar", Category: "ingredient", DefaultUnitID: "unit-l", CostPerBaseUnit: 20, Density: 1.03, StockBase: 10000},
		{ID: "prd-sugar", Name: "Gula Aren Cair", Category: "ingredient", DefaultUnitID: "unit-ml", CostPerBaseUnit: 40, Density: 1.3, StockBase: 2000},
		{ID: "prd-ice", Name: "Es Batu", Category: "ingredient", DefaultUnitID: "unit-kg", CostPerBaseUnit: 2, StockBase: 20000},
		{ID: "prd-cup", Name: "Gelas Plastik 16oz", Category: "packaging", DefaultUnitID: "unit-pcs", CostPerBaseUnit: 800, StockBase: 500},
	} {
		p.StockDisplay = p.StockBase / s.data.units[p.DefaultUnitID].Conversion
		p.Active = true
		p.CreatedAt, p.UpdatedAt = now, now
		s.data.products[p.ID] = p

		baseUnit := s.data.units[p.DefaultUnitID].BaseUnitID
		if baseUnit == "" {
			baseUnit = p.DefaultUnitID
		}
		txnID := "stx-seed-" + strings.TrimPrefix(p.ID, "prd-")
		s.data.stockTxns[txnID] = domain.StockTransaction{
			ID:         txnID,
			ProductID:  p.ID,
			Type:       domain.StockIn,
			Qty:        p.StockBase,
			UnitID:     baseUnit,
			QtyBase:    p.StockBase,
			UnitBaseID: baseUnit,
			Note:       "opening stock",
			CreatedAt:  now,
		}
	}

	for _, d := range []domain.Dish{
		{ID: "dish-kopi-susu", Name: "Kopi Susu Gula Aren", Category: "coffee", Price: domain.DishPrice{Hot: 22000, Ice: 25000}},
		{ID: "dish-americano", Name: "Americano", Category: "coffee", Price: domain.DishPrice{Hot: 18000, Ice: 20000}},
	} {
		d.Active = true
		d.CreatedAt, d.UpdatedAt = now, now
		s.data.dishes[d.ID] = d
	}

	for _, line := range []domain.DishBOM{
		{ID: "bom-ks-hot-coffee", DishID: "dish-kopi-susu", ProductID: "prd-coffee", Qty: 18, UnitID: "unit-g", Variant: domain.VariantHot, QtyBase: 18, UnitBaseID: "unit-g"},
		{ID: "bom-ks-hot-milk", DishID: "dish-kopi-susu", ProductID: "prd-milk", Qty: 150, UnitID: "unit-ml", Variant: domain.VariantHot, QtyBase: 150, UnitBaseID: "unit-ml"},
		{ID: "bom-ks-hot-sugar", DishID: "dish-kopi-susu", ProductID: "prd-sugar", Qty: 20, UnitID: "unit-ml", Variant: domain.VariantHot, QtyBase: 20, UnitBaseID: "unit-ml"},
		{ID: "bom-ks-ice-coffee", DishID: "dish-kopi-susu", ProductID: "prd-coffee", Qty: 18, UnitID: "unit-g", Variant: domain.VariantIce, QtyBase: 18, UnitBaseID: "unit-g"},
		{ID: "bom-ks-ice-milk", DishID: "dish-kopi-susu", ProductID: "prd-milk", Qty: 0.12, UnitID: "unit-l", Variant: domain.VariantIce, QtyBase: 120, UnitBaseID: "unit-ml"},
		{ID: "bom-ks-ice-sugar", DishID: "dish-kopi-susu", ProductID: "prd-sugar", Qty: 25, UnitID: "unit-ml", Variant: domain.VariantIce, QtyBase: 25, UnitBaseID: "unit-ml"},
		{ID: "bom-ks-ice-ice", DishID: "dish-kopi-susu", ProductID: "prd-ice", Qty: 100, UnitID: "unit-g", Variant: domain.VariantIce, QtyBase: 100, UnitBaseID: "unit-g"},
		{ID: "bom-ks-ice-cup", DishID: "dish-kopi-susu", ProductID: "prd-cup", Qty: 1, UnitID: "unit-pcs", Variant: domain.VariantIce, QtyBase: 1, UnitBaseID: "unit-pcs"},
		{ID: "bom-am-hot-coffee", DishID: "dish-americano", ProductID: "prd-coffee", Qty: 18, UnitID: "unit-g", Variant: domain.VariantHot, QtyBase: 18, UnitBaseID: "unit-g"},
		{ID: "bom-am-ice-coffee", DishID: "dish-americano", ProductID: "prd-coffee", Qty: 18, UnitID: "unit-g", Variant: domain.VariantIce, QtyBase: 18, UnitBaseID: "unit-g"},
		{ID: "bom-am-ice-ice", DishID: "dish-americano", ProductID: "prd-ice", Qty: 0.15, UnitID: "unit-kg", Variant: domain.VariantIce, QtyBase: 150, UnitBaseID: "unit-g"},
		{ID: "bom-am-ice-cup", DishID: "dish-americano", ProductID: "prd-cup", Qty: 1, UnitID: "unit-pcs", Variant: domain.VariantIce, QtyBase: 1, UnitBaseID: "unit-pcs"},
	} {
		line.CreatedAt, line.UpdatedAt = now, now
		s.data.bomLines[line.ID] = line
	}

	return s
}

// RunInTx snapshots the dataset and restores it when fn fails.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.ownsTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(store.WithTx(ctx, s)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) ownsTx(ctx context.Context) bool {
	tx, ok := store.TxFrom(ctx)
	return ok && tx == s
}

// lockWrite takes the write lock, joining the caller's transaction when ctx
// carries one.
func (s *Store) lockWrite(ctx context.Context) func() {
	inTx := s.ownsTx(ctx)
	if !inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !inTx {
			s.txMu.Unlock()
		}
	}
}

func (s *Store) ListUnits(_ context.Context) ([]domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := slices.Collect(maps.Values(s.data.units))
	slices.SortFunc(units, func(a, b domain.Unit) int {
		if a.Type == b.Type {
			return strings.Compare(a.Short, b.Short)
		}
		return strings.Compare(a.Type, b.Type)
	})
	return units, nil
}

func (s *Store) GetUnit(_ context.Context, id string) (*domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, exists := s.data.units[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &unit, nil
}

func (s *Store) CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	defer s.lockWrite(ctx)()

	if strings.TrimSpace(unit.Name) == "" || strings.TrimSpace(unit.Short) == "" || unit.Conversion <= 0 {
		return nil, store.ErrInvalidInput
	}
	if s.shortTaken(unit.Short, "") {
		return nil, store.ErrConflict
	}
	if unit.ID == "" {
		unit.ID = xid.New("unit")
	}
	now := time.Now().UTC()
	unit.CreatedAt, unit.UpdatedAt = now, now

	s.data.units[unit.ID] = unit
	return &unit, nil
}

func (s *Store) UpdateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	defer s.lockWrite(ctx)()

	current, exists := s.data.units[unit.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(unit.Name) == "" || strings.TrimSpace(unit.Short) == "" || unit.Conversion <= 0 {
		return nil, store.ErrInvalidInput
	}
	if s.shortTaken(unit.Short, unit.ID) {
		return nil, store.ErrConflict
	}
	unit.CreatedAt = current.CreatedAt
	unit.UpdatedAt = time.Now().UTC()

	s.data.units[unit.ID] = unit
	return &unit, nil
}

func (s *Store) shortTaken(short string, exceptID string) bool {
	for _, u := range s.data.units {
		if u.ID != exceptID && strings.EqualFold(u.Short, short) {
			return true
		}
	}
	return false
}

func (s *Store) DeleteUnit(ctx context.Context, id string) error {
	defer s.lockWrite(ctx)()

	if _, exists := s.data.units[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.data.units, id)
	return nil
}

func (s *Store) CountUnitReferences(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, u := range s.data.units {
		if u.BaseUnitID == id {
			count++
		}
	}
	for _, p := range s.data.products {
		if p.DefaultUnitID == id {
			count++
		}
	}
	for _, line := range s.data.bomLines {
		if line.UnitID == id || line.UnitBaseID == id {
			count++
		}
	}
	for _, txn := range s.data.stockTxns {
		if txn.UnitID == id || txn.UnitBaseID == id {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.data.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, exists := s.data.products[id]; exists {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	defer s.lockWrite(ctx)()

	if strings.TrimSpace(product.Name) == "" || product.DefaultUnitID == "" || product.CostPerBaseUnit < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.data.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt, product.UpdatedAt = now, now

	s.data.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	defer s.lockWrite(ctx)()

	current, exists := s.data.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(product.Name) == "" || product.DefaultUnitID == "" || product.CostPerBaseUnit < 0 {
		return nil, store.ErrInvalidInput
	}
	// Stock levels only move through AdjustProductStock.
	product.StockBase = current.StockBase
	product.StockDisplay = current.StockDisplay
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	s.data.products[product.ID] = product
	return &product, nil
}

func (s *Store) AdjustProductStock(ctx context.Context, id string, deltaBase float64, deltaDisplay float64) (*domain.Product, error) {
	defer s.lockWrite(ctx)()

	product, exists := s.data.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.StockBase += deltaBase
	product.StockDisplay += deltaDisplay
	product.UpdatedAt = time.Now().UTC()

	s.data.products[id] = product
	return &product, nil
}

func (s *Store) ListDishes(_ context.Context) ([]domain.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dishes := make([]domain.Dish, 0, len(s.data.dishes))
	for _, d := range s.data.dishes {
		dishes = append(dishes, cloneDish(d))
	}
	slices.SortFunc(dishes, func(a, b domain.Dish) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return dishes, nil
}

func (s *Store) GetDish(_ context.Context, id string) (*domain.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dish, exists := s.data.dishes[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyDish := cloneDish(dish)
	return &copyDish, nil
}

func (s *Store) CreateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error) {
	defer s.lockWrite(ctx)()

	if strings.TrimSpace(dish.Name) == "" || dish.Price.Hot < 0 || dish.Price.Ice < 0 {
		return nil, store.ErrInvalidInput
	}
	if dish.ID == "" {
		dish.ID = xid.New("dish")
	}
	now := time.Now().UTC()
	dish.Active = true
	dish.HPP = domain.DishHPP{}
	dish.HPPUpdatedAt = nil
	dish.CreatedAt, dish.UpdatedAt = now, now

	s.data.dishes[dish.ID] = dish
	return &dish, nil
}

func (s *Store) UpdateDishHPP(ctx context.Context, id string, hpp domain.DishHPP) (*domain.Dish, error) {
	defer s.lockWrite(ctx)()

	dish, exists := s.data.dishes[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	now := time.Now().UTC()
	dish.HPP = hpp
	dish.HPPUpdatedAt = &now
	dish.UpdatedAt = now

	s.data.dishes[id] = dish
	copyDish := cloneDish(dish)
	return &copyDish, nil
}

func (s *Store) ListDishBOM(_ context.Context, dishID string) ([]domain.DishBOM, error) {
	return s.filterBOM(func(line domain.DishBOM) bool { return line.DishID == dishID }), nil
}

func (s *Store) ListBOMByProduct(_ context.Context, productID string) ([]domain.DishBOM, error) {
	return s.filterBOM(func(line domain.DishBOM) bool { return line.ProductID == productID }), nil
}

func (s *Store) ListBOMByUnit(_ context.Context, unitID string) ([]domain.DishBOM, error) {
	return s.filterBOM(func(line domain.DishBOM) bool {
		return line.UnitID == unitID || line.UnitBaseID == unitID
	}), nil
}

func (s *Store) filterBOM(keep func(domain.DishBOM) bool) []domain.DishBOM {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.DishBOM, 0, 16)
	for _, line := range s.data.bomLines {
		if keep(line) {
			lines = append(lines, line)
		}
	}
	slices.SortFunc(lines, func(a, b domain.DishBOM) int {
		if a.DishID != b.DishID {
			return strings.Compare(a.DishID, b.DishID)
		}
		if a.Variant != b.Variant {
			return strings.Compare(a.Variant, b.Variant)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return lines
}

func (s *Store) GetBOMLine(_ context.Context, id string) (*domain.DishBOM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, exists := s.data.bomLines[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &line, nil
}

func (s *Store) CreateBOMLine(ctx context.Context, line domain.DishBOM) (*domain.DishBOM, error) {
	defer s.lockWrite(ctx)()

	if err := validateBOMLine(line); err != nil {
		return nil, err
	}
	if _, exists := s.data.dishes[line.DishID]; !exists {
		return nil, store.ErrNotFound
	}
	if line.ID == "" {
		line.ID = xid.New("bom")
	}
	now := time.Now().UTC()
	line.CreatedAt, line.UpdatedAt = now, now

	s.data.bomLines[line.ID] = line
	return &line, nil
}

func (s *Store) UpdateBOMLine(ctx context.Context, line domain.DishBOM) (*domain.DishBOM, error) {
	defer s.lockWrite(ctx)()

	current, exists := s.data.bomLines[line.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if err := validateBOMLine(line); err != nil {
		return nil, err
	}
	line.DishID = current.DishID
	line.CreatedAt = current.CreatedAt
	line.UpdatedAt = time.Now().UTC()

	s.data.bomLines[line.ID] = line
	return &line, nil
}

func validateBOMLine(line domain.DishBOM) error {
	if line.DishID == "" || line.ProductID == "" || line.UnitID == "" || line.Qty <= 0 {
		return store.ErrInvalidInput
	}
	if line.Variant != domain.VariantHot && line.Variant != domain.VariantIce {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) DeleteBOMLine(ctx context.Context, id string) error {
	defer s.lockWrite(ctx)()

	if _, exists := s.data.bomLines[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.data.bomLines, id)
	return nil
}

func (s *Store) CreateStockTransaction(ctx context.Context, txn domain.StockTransaction) (*domain.StockTransaction, error) {
	defer s.lockWrite(ctx)()

	if txn.ProductID == "" || txn.UnitID == "" || txn.Qty <= 0 {
		return nil, store.ErrInvalidInput
	}
	if txn.Type != domain.StockIn && txn.Type != domain.StockOut {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.data.products[txn.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if txn.ID == "" {
		txn.ID = xid.New("stx")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	s.data.stockTxns[txn.ID] = txn
	return &txn, nil
}

func (s *Store) GetStockTransaction(_ context.Context, id string) (*domain.StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, exists := s.data.stockTxns[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &txn, nil
}

func (s *Store) DeleteStockTransaction(ctx context.Context, id string) error {
	defer s.lockWrite(ctx)()

	if _, exists := s.data.stockTxns[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.data.stockTxns, id)
	return nil
}

func (s *Store) ListStockTransactions(_ context.Context, productID string, limit int) ([]domain.StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockTransaction, 0, 64)
	for _, txn := range s.data.stockTxns {
		if productID != "" && txn.ProductID != productID {
			continue
		}
		result = append(result, txn)
	}
	slices.SortFunc(result, func(a, b domain.StockTransaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SumStock(_ context.Context, productID string) (float64, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var in, out float64
	for _, txn := range s.data.stockTxns {
		if txn.ProductID != productID {
			continue
		}
		switch txn.Type {
		case domain.StockIn:
			in += txn.QtyBase
		case domain.StockOut:
			out += txn.QtyBase
		}
	}
	return in, out, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	defer s.lockWrite(ctx)()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.data.suppliersByID[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.data.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := slices.Collect(maps.Values(s.data.suppliersByID))
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.Name, b.Name)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return suppliers, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	defer s.lockWrite(ctx)()

	if purchase.SupplierID == "" || len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.data.suppliersByID[purchase.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.ReceivedAt.IsZero() {
		purchase.ReceivedAt = time.Now().UTC()
	}
	purchase.Items = slices.Clone(purchase.Items)

	s.data.purchasesByID[purchase.ID] = purchase
	return &purchase, nil
}

func (s *Store) ListPurchases(_ context.Context, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.data.purchasesByID))
	for _, p := range s.data.purchasesByID {
		p.Items = slices.Clone(p.Items)
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.Purchase) int {
		if a.ReceivedAt.Equal(b.ReceivedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.ReceivedAt.Compare(a.ReceivedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	defer s.lockWrite(ctx)()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.data.auditLogs = append(s.data.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.data.auditLogs)
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	defer s.lockWrite(ctx)()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.data.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.data.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := slices.Collect(maps.Values(s.data.usersByUsername))
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	defer s.lockWrite(ctx)()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.data.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.data.usersByUsername[username] = user
	return nil
}

func cloneDish(src domain.Dish) domain.Dish {
	if src.HPPUpdatedAt != nil {
		at := *src.HPPUpdatedAt
		src.HPPUpdatedAt = &at
	}
	return src
}

var _ store.Repository = (*Store)(nil)
