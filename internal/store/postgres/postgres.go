package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const maxSerializationRetries = 3

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type boundTx struct {
	owner *Store
	tx    *sql.Tx
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(ctx context.Context) querier {
	if bound, ok := s.boundTx(ctx); ok {
		return bound.tx
	}
	return s.db
}

func (s *Store) boundTx(ctx context.Context) (*boundTx, bool) {
	raw, ok := store.TxFrom(ctx)
	if !ok {
		return nil, false
	}
	bound, ok := raw.(*boundTx)
	if !ok || bound.owner != s {
		return nil, false
	}
	return bound, true
}

// RunInTx runs fn inside one serializable transaction. Serialization
// failures are retried a few times before the error is returned.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := s.boundTx(ctx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= maxSerializationRetries; attempt++ {
		err = s.runOnce(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
		log.Warn().Int("attempt", attempt).Err(err).Msg("serialization failure, retrying transaction")
	}
	return err
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(store.WithTx(ctx, &boundTx{owner: s, tx: pgTx})); err != nil {
		return err
	}
	return pgTx.Commit()
}

const unitColumns = `id, name, short, COALESCE(base_unit_id, ''), conversion, type, created_at, updated_at`

func scanUnit(row interface{ Scan(...any) error }) (domain.Unit, error) {
	var u domain.Unit
	err := row.Scan(&u.ID, &u.Name, &u.Short, &u.BaseUnitID, &u.Conversion, &u.Type, &u.CreatedAt, &u.UpdatedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, err
}

func (s *Store) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+unitColumns+` FROM units ORDER BY type, short`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.Unit, 0, 32)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *Store) GetUnit(ctx context.Context, id string) (*domain.Unit, error) {
	u, err := scanUnit(s.q(ctx).QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if strings.TrimSpace(unit.Name) == "" || strings.TrimSpace(unit.Short) == "" || unit.Conversion <= 0 {
		return nil, store.ErrInvalidInput
	}
	if unit.ID == "" {
		unit.ID = xid.New("unit")
	}

	created, err := scanUnit(s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO units (id, name, short, base_unit_id, conversion, type, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING `+unitColumns,
		unit.ID, unit.Name, unit.Short, nullIfEmpty(unit.BaseUnitID), unit.Conversion, unit.Type))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if strings.TrimSpace(unit.Name) == "" || strings.TrimSpace(unit.Short) == "" || unit.Conversion <= 0 {
		return nil, store.ErrInvalidInput
	}

	updated, err := scanUnit(s.q(ctx).QueryRowContext(ctx, `
		UPDATE units
		SET name = $2, short = $3, base_unit_id = $4, conversion = $5, type = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+unitColumns,
		unit.ID, unit.Name, unit.Short, nullIfEmpty(unit.BaseUnitID), unit.Conversion, unit.Type))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteUnit(ctx context.Context, id string) error {
	return expectAffected(s.q(ctx).ExecContext(ctx, `DELETE FROM units WHERE id = $1`, id))
}

func (s *Store) CountUnitReferences(ctx context.Context, id string) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM units WHERE base_unit_id = $1) +
			(SELECT count(*) FROM products WHERE default_unit_id = $1) +
			(SELECT count(*) FROM dish_bom WHERE unit_id = $1 OR unit_base_id = $1) +
			(SELECT count(*) FROM stock_transactions WHERE unit_id = $1 OR unit_base_id = $1)
	`, id).Scan(&count)
	return count, err
}

const productColumns = `id, name, category, default_unit_id, price_cents, cost_per_base_unit, density,
	stock_base, stock_display, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.DefaultUnitID, &p.PriceCents, &p.CostPerBaseUnit, &p.Density,
		&p.StockBase, &p.StockDisplay, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.q(ctx).QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.DefaultUnitID == "" || product.CostPerBaseUnit < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	created, err := scanProduct(s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO products (id, name, category, default_unit_id, price_cents, cost_per_base_unit, density,
			stock_base, stock_display, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,true,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.DefaultUnitID, product.PriceCents,
		product.CostPerBaseUnit, product.Density, product.StockBase, product.StockDisplay))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.DefaultUnitID == "" || product.CostPerBaseUnit < 0 {
		return nil, store.ErrInvalidInput
	}

	updated, err := scanProduct(s.q(ctx).QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, default_unit_id = $4, price_cents = $5, cost_per_base_unit = $6,
			density = $7, active = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.DefaultUnitID, product.PriceCents,
		product.CostPerBaseUnit, product.Density, product.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) AdjustProductStock(ctx context.Context, id string, deltaBase float64, deltaDisplay float64) (*domain.Product, error) {
	updated, err := scanProduct(s.q(ctx).QueryRowContext(ctx, `
		UPDATE products
		SET stock_base = stock_base + $2, stock_display = stock_display + $3, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, deltaBase, deltaDisplay))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

const dishColumns = `id, name, category, price_hot, price_ice, hpp_hot, hpp_ice, hpp_updated_at, active, created_at, updated_at`

func scanDish(row interface{ Scan(...any) error }) (domain.Dish, error) {
	var d domain.Dish
	var hppUpdatedAt sql.NullTime
	err := row.Scan(&d.ID, &d.Name, &d.Category, &d.Price.Hot, &d.Price.Ice, &d.HPP.HPPHot, &d.HPP.HPPIce,
		&hppUpdatedAt, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if hppUpdatedAt.Valid {
		at := hppUpdatedAt.Time.UTC()
		d.HPPUpdatedAt = &at
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, err
}

func (s *Store) ListDishes(ctx context.Context) ([]domain.Dish, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+dishColumns+` FROM dishes ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dishes := make([]domain.Dish, 0, 64)
	for rows.Next() {
		d, err := scanDish(rows)
		if err != nil {
			return nil, err
		}
		dishes = append(dishes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dishes, nil
}

func (s *Store) GetDish(ctx context.Context, id string) (*domain.Dish, error) {
	d, err := scanDish(s.q(ctx).QueryRowContext(ctx, `SELECT `+dishColumns+` FROM dishes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) CreateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error) {
	if strings.TrimSpace(dish.Name) == "" || dish.Price.Hot < 0 || dish.Price.Ice < 0 {
		return nil, store.ErrInvalidInput
	}
	if dish.ID == "" {
		dish.ID = xid.New("dish")
	}

	created, err := scanDish(s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO dishes (id, name, category, price_hot, price_ice, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,true,now(),now())
		RETURNING `+dishColumns,
		dish.ID, dish.Name, dish.Category, dish.Price.Hot, dish.Price.Ice))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateDishHPP(ctx context.Context, id string, hpp domain.DishHPP) (*domain.Dish, error) {
	updated, err := scanDish(s.q(ctx).QueryRowContext(ctx, `
		UPDATE dishes
		SET hpp_hot = $2, hpp_ice = $3, hpp_updated_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING `+dishColumns,
		id, hpp.HPPHot, hpp.HPPIce))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

const bomColumns = `id, dish_id, product_id, qty, unit_id, variant, qty_base, unit_base_id, created_at, updated_at`

func scanBOMLine(row interface{ Scan(...any) error }) (domain.DishBOM, error) {
	var line domain.DishBOM
	err := row.Scan(&line.ID, &line.DishID, &line.ProductID, &line.Qty, &line.UnitID, &line.Variant,
		&line.QtyBase, &line.UnitBaseID, &line.CreatedAt, &line.UpdatedAt)
	line.CreatedAt = line.CreatedAt.UTC()
	line.UpdatedAt = line.UpdatedAt.UTC()
	return line, err
}

func (s *Store) queryBOM(ctx context.Context, where string, arg string) ([]domain.DishBOM, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+bomColumns+`
		FROM dish_bom
		WHERE `+where+`
		ORDER BY dish_id, variant, created_at, id
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.DishBOM, 0, 16)
	for rows.Next() {
		line, err := scanBOMLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListDishBOM(ctx context.Context, dishID string) ([]domain.DishBOM, error) {
	return s.queryBOM(ctx, `dish_id = $1`, dishID)
}

func (s *Store) ListBOMByProduct(ctx context.Context, productID string) ([]domain.DishBOM, error) {
	return s.queryBOM(ctx, `product_id = $1`, productID)
}

func (s *Store) ListBOMByUnit(ctx context.Context, unitID string) ([]domain.DishBOM, error) {
	return s.queryBOM(ctx, `unit_id = $1 OR unit_base_id = $1`, unitID)
}

func (s *Store) GetBOMLine(ctx context.Context, id string) (*domain.DishBOM, error) {
	line, err := scanBOMLine(s.q(ctx).QueryRowContext(ctx, `SELECT `+bomColumns+` FROM dish_bom WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

func (s *Store) CreateBOMLine(ctx context.Context, line domain.DishBOM) (*domain.DishBOM, error) {
	if err := validateBOMLine(line); err != nil {
		return nil, err
	}
	if line.ID == "" {
		line.ID = xid.New("bom")
	}

	created, err := scanBOMLine(s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO dish_bom (id, dish_id, product_id, qty, unit_id, variant, qty_base, unit_base_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING `+bomColumns,
		line.ID, line.DishID, line.ProductID, line.Qty, line.UnitID, line.Variant, line.QtyBase, line.UnitBaseID))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateBOMLine(ctx context.Context, line domain.DishBOM) (*domain.DishBOM, error) {
	if err := validateBOMLine(line); err != nil {
		return nil, err
	}

	updated, err := scanBOMLine(s.q(ctx).QueryRowContext(ctx, `
		UPDATE dish_bom
		SET product_id = $2, qty = $3, unit_id = $4, variant = $5, qty_base = $6, unit_base_id = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+bomColumns,
		line.ID, line.ProductID, line.Qty, line.UnitID, line.Variant, line.QtyBase, line.UnitBaseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
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
	return expectAffected(s.q(ctx).ExecContext(ctx, `DELETE FROM dish_bom WHERE id = $1`, id))
}

const stockColumns = `id, product_id, type, qty, unit_id, qty_base, unit_base_id,
	COALESCE(order_id, ''), COALESCE(dish_id, ''), COALESCE(purchase_id, ''), COALESCE(note, ''), created_at`

func scanStockTransaction(row interface{ Scan(...any) error }) (domain.StockTransaction, error) {
	var txn domain.StockTransaction
	err := row.Scan(&txn.ID, &txn.ProductID, &txn.Type, &txn.Qty, &txn.UnitID, &txn.QtyBase, &txn.UnitBaseID,
		&txn.OrderID, &txn.DishID, &txn.PurchaseID, &txn.Note, &txn.CreatedAt)
	txn.CreatedAt = txn.CreatedAt.UTC()
	return txn, err
}

func (s *Store) CreateStockTransaction(ctx context.Context, txn domain.StockTransaction) (*domain.StockTransaction, error) {
	if txn.ProductID == "" || txn.UnitID == "" || txn.Qty <= 0 {
		return nil, store.ErrInvalidInput
	}
	if txn.Type != domain.StockIn && txn.Type != domain.StockOut {
		return nil, store.ErrInvalidInput
	}
	if txn.ID == "" {
		txn.ID = xid.New("stx")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	created, err := scanStockTransaction(s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO stock_transactions (id, product_id, type, qty, unit_id, qty_base, unit_base_id,
			order_id, dish_id, purchase_id, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+stockColumns,
		txn.ID, txn.ProductID, txn.Type, txn.Qty, txn.UnitID, txn.QtyBase, txn.UnitBaseID,
		nullIfEmpty(txn.OrderID), nullIfEmpty(txn.DishID), nullIfEmpty(txn.PurchaseID), nullIfEmpty(txn.Note), txn.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetStockTransaction(ctx context.Context, id string) (*domain.StockTransaction, error) {
	txn, err := scanStockTransaction(s.q(ctx).QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stock_transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (s *Store) DeleteStockTransaction(ctx context.Context, id string) error {
	return expectAffected(s.q(ctx).ExecContext(ctx, `DELETE FROM stock_transactions WHERE id = $1`, id))
}

func (s *Store) ListStockTransactions(ctx context.Context, productID string, limit int) ([]domain.StockTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+stockColumns+`
		FROM stock_transactions
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockTransaction, 0, limit)
	for rows.Next() {
		txn, err := scanStockTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SumStock(ctx context.Context, productID string) (float64, float64, error) {
	var in, out float64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(qty_base) FILTER (WHERE type = 'IN'), 0),
			COALESCE(SUM(qty_base) FILTER (WHERE type = 'OUT'), 0)
		FROM stock_transactions
		WHERE product_id = $1
	`, productID).Scan(&in, &out)
	return in, out, err
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	supplier.CreatedAt = supplier.CreatedAt.UTC()
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), created_at
		FROM suppliers
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 64)
	for rows.Next() {
		var item domain.Supplier
		if err := rows.Scan(&item.ID, &item.Name, &item.Phone, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		suppliers = append(suppliers, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.SupplierID == "" || len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.ReceivedAt.IsZero() {
		purchase.ReceivedAt = time.Now().UTC()
	}

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		if _, err := q.ExecContext(ctx, `
			INSERT INTO purchases (id, supplier_id, note, total_cost, received_at)
			VALUES ($1,$2,$3,$4,$5)
		`, purchase.ID, purchase.SupplierID, nullIfEmpty(purchase.Note), purchase.TotalCost, purchase.ReceivedAt); err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
		for i, item := range purchase.Items {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO purchase_items (purchase_id, line_no, product_id, qty, unit_id, total_cost, qty_base, unit_base_id)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, purchase.ID, i+1, item.ProductID, item.Qty, item.UnitID, item.TotalCost, item.QtyBase, item.UnitBaseID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	saved := purchase
	return &saved, nil
}

func (s *Store) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, supplier_id, COALESCE(note,''), total_cost, received_at
		FROM purchases
		ORDER BY received_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, limit)
	index := make(map[string]int, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.SupplierID, &p.Note, &p.TotalCost, &p.ReceivedAt); err != nil {
			return nil, err
		}
		p.ReceivedAt = p.ReceivedAt.UTC()
		p.Items = make([]domain.PurchaseItem, 0, 4)
		index[p.ID] = len(purchases)
		ids = append(ids, p.ID)
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return purchases, nil
	}

	itemRows, err := s.q(ctx).QueryContext(ctx, `
		SELECT purchase_id, product_id, qty, unit_id, total_cost, qty_base, unit_base_id
		FROM purchase_items
		WHERE purchase_id = ANY($1)
		ORDER BY purchase_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var purchaseID string
		var item domain.PurchaseItem
		if err := itemRows.Scan(&purchaseID, &item.ProductID, &item.Qty, &item.UnitID, &item.TotalCost, &item.QtyBase, &item.UnitBaseID); err != nil {
			return nil, err
		}
		i := index[purchaseID]
		purchases[i].Items = append(purchases[i].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID,
		nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, COALESCE(detail,''), created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	return expectAffected(s.q(ctx).ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password))
}

func expectAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isSerializationFailure(err error) bool {
	return pgCode(err) == "40001"
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

var _ store.Repository = (*Store)(nil)
