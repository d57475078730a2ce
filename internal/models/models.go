package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a grocery item in the catalog
type Product struct {
	ID            uuid.UUID           `db:"id" json:"id"`
	Name          string              `db:"name" json:"name"`
	Description   string              `db:"description" json:"description"`
	Price         decimal.Decimal     `db:"price" json:"price"`
	OriginalPrice decimal.NullDecimal `db:"original_price" json:"original_price"`
	Category      string              `db:"category" json:"category"`
	Image         string              `db:"image" json:"image"`
	StockQuantity int                 `db:"stock_quantity" json:"quantity"`
	InStock       bool                `db:"in_stock" json:"in_stock"`
	Unit          string              `db:"unit" json:"unit"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// SetStock sets the stock quantity and keeps the availability flag in sync with it.
func (p *Product) SetStock(quantity int) {
	p.StockQuantity = quantity
	p.InStock = quantity > 0
}

// ProductFilter narrows ListProducts. Empty fields match everything.
type ProductFilter struct {
	Category string
	Search   string
}

// Normalize trims the filter and maps the "all" category to no filter.
func (f ProductFilter) Normalize() ProductFilter {
	f.Category = strings.TrimSpace(f.Category)
	if strings.EqualFold(f.Category, "all") {
		f.Category = ""
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Matches reports whether p passes the filter; search is a case-insensitive substring of the name.
func (f ProductFilter) Matches(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// Address is a delivery address; it is stored as a JSON document.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// Validate checks that every delivery field is filled in.
func (a Address) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(a.ZipCode) == "" {
		missing = append(missing, "zip_code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: delivery address is missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return errors.New("address: unsupported scan type")
	}
}

// User is the profile data owned by the authentication collaborator
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Address   Address   `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer order
type Order struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Items           []OrderItem     `db:"-" json:"items"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	Currency        string          `db:"currency" json:"currency"`
	Status          OrderStatus     `db:"status" json:"status"`
	DeliveryAddress Address         `db:"delivery_address" json:"delivery_address"`
	PaymentStatus   PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"payment_method"`
	IdempotencyKey  *string         `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// MaxItemQuantity bounds a single line quantity to the INTEGER stock column.
const MaxItemQuantity = math.MaxInt32

// OrderItem is a line item snapshotted at order time
type OrderItem struct {
	OrderID   uuid.UUID       `db:"order_id" json:"-"`
	Position  int             `db:"position" json:"-"`
	ProductID uuid.UUID       `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Image     string          `db:"image" json:"image"`
	Unit      string          `db:"unit" json:"unit"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ComputeTotal sums price x quantity over the line items.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// UserSummary is the denormalized user shown alongside an order
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ProductSummary is the denormalized product shown alongside a line item
type ProductSummary struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Image    string    `json:"image"`
}

// OrderItemView is a line item with the current catalog display fields, if the product still exists.
type OrderItemView struct {
	OrderItem
	Product *ProductSummary `json:"product,omitempty"`
}

// OrderView is the read-side projection returned to callers
type OrderView struct {
	Order
	User  *UserSummary    `json:"user,omitempty"`
	Items []OrderItemView `json:"items"`
}
