package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the ordered list of items a user has selected before checkout
type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem keeps the product fields shown in the cart at the time it was added
type CartItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Unit      string          `json:"unit"`
	Quantity  int             `json:"quantity"`
}

func NewCart(userID string) *Cart {
	return &Cart{UserID: userID, Items: []CartItem{}}
}

func (c *Cart) find(productID uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add puts quantity units of p into the cart. An existing line keeps its position.
func (c *Cart) Add(p Product, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if quantity > MaxItemQuantity {
		return fmt.Errorf("%w: quantity for %s is too large", ErrValidation, p.Name)
	}
	if !p.InStock {
		return fmt.Errorf("%w: %s is out of stock", ErrValidation, p.Name)
	}

	if i := c.find(p.ID); i >= 0 {
		if quantity > MaxItemQuantity-c.Items[i].Quantity {
			return fmt.Errorf("%w: quantity for %s is too large", ErrValidation, p.Name)
		}
		c.Items[i].Quantity += quantity
	} else {
		c.Items = append(c.Items, CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Unit:      p.Unit,
			Quantity:  quantity,
		})
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetQuantity replaces the quantity of a line; zero or less removes it.
func (c *Cart) SetQuantity(productID uuid.UUID, quantity int) error {
	i := c.find(productID)
	if i < 0 {
		return fmt.Errorf("cart item %s: %w", productID, ErrNotFound)
	}
	if quantity <= 0 {
		c.Remove(productID)
		return nil
	}
	if quantity > MaxItemQuantity {
		return fmt.Errorf("%w: quantity for %s is too large", ErrValidation, c.Items[i].Name)
	}
	c.Items[i].Quantity = quantity
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Remove drops a line and reports whether it was present.
func (c *Cart) Remove(productID uuid.UUID) bool {
	i := c.find(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.UpdatedAt = time.Now().UTC()
	return true
}

// RemoveProducts drops the lines for the given products and returns how many were present.
func (c *Cart) RemoveProducts(productIDs ...uuid.UUID) int {
	var removed int
	for _, id := range productIDs {
		if c.Remove(id) {
			removed++
		}
	}
	return removed
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.UpdatedAt = time.Now().UTC()
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	var n int
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// OrderItems converts the cart lines into requested line items for checkout.
func (c *Cart) OrderItems() []OrderItem {
	items := make([]OrderItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
			Unit:      item.Unit,
		})
	}
	return items
}
