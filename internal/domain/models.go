package domain

import "time"

const (
	UnitTypeMass   = "mass"
	UnitTypeVolume = "volume"
	UnitTypeCount  = "count"
)

const (
	VariantHot = "hot"
	VariantIce = "ice"
)

const (
	StockIn  = "IN"
	StockOut = "OUT"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// Unit is a measurement unit. A unit with an empty BaseUnitID is a root (base) unit.
type Unit struct {
	ID         string    `json:"id" msgpack:"id"`
	Name       string    `json:"name" msgpack:"name"`
	Short      string    `json:"short" msgpack:"short"`
	BaseUnitID string    `json:"base_unit_id,omitempty" msgpack:"base_unit_id,omitempty"`
	Conversion float64   `json:"conversion" msgpack:"conversion"`
	Type       string    `json:"type,omitempty" msgpack:"type,omitempty"`
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" msgpack:"updated_at"`
}

func (u Unit) IsRoot() bool {
	return u.BaseUnitID == ""
}

type UnitCreateRequest struct {
	Name       string  `json:"name"`
	Short      string  `json:"short"`
	BaseUnitID string  `json:"base_unit_id,omitempty"`
	Conversion float64 `json:"conversion"`
	Type       string  `json:"type,omitempty"`
}

type UnitUpdateRequest struct {
	Name       *string  `json:"name,omitempty"`
	Short      *string  `json:"short,omitempty"`
	BaseUnitID *string  `json:"base_unit_id,omitempty"`
	Conversion *float64 `json:"conversion,omitempty"`
	Type       *string  `json:"type,omitempty"`
}

type UnitResolveResponse struct {
	UnitID     string  `json:"unit_id"`
	RootUnitID string  `json:"root_unit_id"`
	Factor     float64 `json:"factor"`
	Hops       int     `json:"hops"`
	Missing    bool    `json:"missing"`
}

// Product is a stockable ingredient or sellable item. CostPerBaseUnit is the
// cost of one root unit of the product's default unit chain.
type Product struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	DefaultUnitID   string    `json:"default_unit_id"`
	PriceCents      int64     `json:"price_cents"`
	CostPerBaseUnit float64   `json:"cost_per_base_unit"`
	Density         float64   `json:"density,omitempty"`
	StockBase       float64   `json:"stock_base"`
	StockDisplay    float64   `json:"stock_display"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	DefaultUnitID   string  `json:"default_unit_id"`
	PriceCents      int64   `json:"price_cents"`
	CostPerBaseUnit float64 `json:"cost_per_base_unit"`
	Density         float64 `json:"density,omitempty"`
}

type ProductUpdateRequest struct {
	Name            *string  `json:"name,omitempty"`
	Category        *string  `json:"category,omitempty"`
	DefaultUnitID   *string  `json:"default_unit_id,omitempty"`
	PriceCents      *int64   `json:"price_cents,omitempty"`
	CostPerBaseUnit *float64 `json:"cost_per_base_unit,omitempty"`
	Density         *float64 `json:"density,omitempty"`
	Active          *bool    `json:"active,omitempty"`
}

type StockBalance struct {
	ProductID     string  `json:"product_id"`
	In            float64 `json:"in"`
	Out           float64 `json:"out"`
	Balance       float64 `json:"balance"`
	UnitBaseID    string  `json:"unit_base_id"`
	Display       float64 `json:"display"`
	DisplayUnitID string  `json:"display_unit_id"`
}

type DishPrice struct {
	Hot int64 `json:"hot"`
	Ice int64 `json:"ice"`
}

type DishHPP struct {
	HPPHot float64 `json:"hpphot"`
	HPPIce float64 `json:"hppice"`
}

// Dish is a menu item served in a hot and an ice variant. HPP is written only
// by the costing engine.
type Dish struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	Price        DishPrice  `json:"price"`
	HPP          DishHPP    `json:"hpp"`
	HPPUpdatedAt *time.Time `json:"hpp_updated_at,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type DishCreateRequest struct {
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Price    DishPrice `json:"price"`
}

// DishBOM is one ingredient line of a dish variant. QtyBase and UnitBaseID are
// derived from Qty and UnitID and never set by callers.
type DishBOM struct {
	ID         string    `json:"id"`
	DishID     string    `json:"dish_id"`
	ProductID  string    `json:"product_id"`
	Qty        float64   `json:"qty"`
	UnitID     string    `json:"unit_id"`
	Variant    string    `json:"variant"`
	QtyBase    float64   `json:"qty_base"`
	UnitBaseID string    `json:"unit_base_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type BOMLineRequest struct {
	ProductID string  `json:"product_id"`
	Qty       float64 `json:"qty"`
	UnitID    string  `json:"unit_id"`
	Variant   string  `json:"variant"`
}

type BOMLineUpdateRequest struct {
	ProductID *string  `json:"product_id,omitempty"`
	Qty       *float64 `json:"qty,omitempty"`
	UnitID    *string  `json:"unit_id,omitempty"`
	Variant   *string  `json:"variant,omitempty"`
}

type BOMLineResponse struct {
	Line DishBOM `json:"line"`
	Dish Dish    `json:"dish"`
}

// StockTransaction is an immutable inventory ledger entry.
type StockTransaction struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Type       string    `json:"type"`
	Qty        float64   `json:"qty"`
	UnitID     string    `json:"unit_id"`
	QtyBase    float64   `json:"qty_base"`
	UnitBaseID string    `json:"unit_base_id"`
	OrderID    string    `json:"order_id,omitempty"`
	DishID     string    `json:"dish_id,omitempty"`
	PurchaseID string    `json:"purchase_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type StockTransactionRequest struct {
	ProductID string  `json:"product_id"`
	Type      string  `json:"type"`
	Qty       float64 `json:"qty"`
	UnitID    string  `json:"unit_id"`
	OrderID   string  `json:"order_id,omitempty"`
	DishID    string  `json:"dish_id,omitempty"`
	Note      string  `json:"note,omitempty"`
}

type NormalizeRequest struct {
	Qty       float64 `json:"qty"`
	UnitID    string  `json:"unit_id"`
	ProductID string  `json:"product_id,omitempty"`
}

type NormalizeResponse struct {
	QtyBase     float64 `json:"qty_base"`
	UnitBaseID  string  `json:"unit_base_id"`
	Passthrough bool    `json:"passthrough"`
}

type ConsumeDishRequest struct {
	Variant  string  `json:"variant"`
	Portions float64 `json:"portions"`
	OrderID  string  `json:"order_id,omitempty"`
}

type ConsumeDishResponse struct {
	DishID       string             `json:"dish_id"`
	Variant      string             `json:"variant"`
	Portions     float64            `json:"portions"`
	Transactions []StockTransaction `json:"transactions"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type PurchaseItem struct {
	ProductID  string  `json:"product_id"`
	Qty        float64 `json:"qty"`
	UnitID     string  `json:"unit_id"`
	TotalCost  float64 `json:"total_cost"`
	QtyBase    float64 `json:"qty_base"`
	UnitBaseID string  `json:"unit_base_id"`
}

type Purchase struct {
	ID         string         `json:"id"`
	SupplierID string         `json:"supplier_id"`
	Note       string         `json:"note,omitempty"`
	Items      []PurchaseItem `json:"items"`
	TotalCost  float64        `json:"total_cost"`
	ReceivedAt time.Time      `json:"received_at"`
}

type PurchaseItemRequest struct {
	ProductID string  `json:"product_id"`
	Qty       float64 `json:"qty"`
	UnitID    string  `json:"unit_id"`
	TotalCost float64 `json:"total_cost"`
}

type PurchaseReceiveRequest struct {
	SupplierID string                `json:"supplier_id"`
	Note       string                `json:"note,omitempty"`
	Items      []PurchaseItemRequest `json:"items"`
}

type PurchaseResponse struct {
	Purchase      Purchase `json:"purchase"`
	UpdatedDishes int      `json:"updated_dishes"`
}

type CostingReportLine struct {
	DishID        string  `json:"dish_id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	PriceHot      int64   `json:"price_hot"`
	PriceIce      int64   `json:"price_ice"`
	HPPHot        float64 `json:"hpphot"`
	HPPIce        float64 `json:"hppice"`
	MarginHotPct  string  `json:"margin_hot_pct"`
	MarginIcePct  string  `json:"margin_ice_pct"`
	HPPUpdatedAt  string  `json:"hpp_updated_at,omitempty"`
	NeverComputed bool    `json:"never_computed"`
}

type CostingReport struct {
	GeneratedAt string              `json:"generated_at"`
	Dishes      []CostingReportLine `json:"dishes"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
