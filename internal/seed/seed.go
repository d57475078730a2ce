// Package seed loads the sample grocery catalog and demo customers.
package seed

import (
	"context"
	"fmt"

	"grocery-service/internal/models"
	"grocery-service/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type sampleProduct struct {
	name          string
	description   string
	price         int64
	originalPrice int64
	category      string
	image         string
	quantity      int
	unit          string
}

var sampleProducts = []sampleProduct{
	{"Fresh Apples", "Fresh and crispy red apples, rich in fiber and vitamins", 120, 150, "Fruits", "https://images.unsplash.com/photo-1568702846914-96b305d2aaeb?w=300", 50, "kg"},
	{"Bananas", "Fresh yellow bananas, perfect for smoothies and snacks", 40, 0, "Fruits", "https://images.unsplash.com/photo-1571771894821-ce9b6c11b08e?w=300", 100, "dozen"},
	{"Carrots", "Organic fresh carrots, great for cooking and salads", 60, 80, "Vegetables", "https://images.unsplash.com/photo-1598170845058-32b9d6a5da37?w=300", 75, "kg"},
	{"Broccoli", "Fresh green broccoli, packed with nutrients", 80, 0, "Vegetables", "https://plus.unsplash.com/premium_photo-1663858367004-1b6d8c8f0c3c?w=300&auto=format&fit=crop", 30, "piece"},
	{"Milk", "Fresh full cream milk, 1 liter tetra pack", 65, 0, "Dairy", "https://images.unsplash.com/photo-1563636619-e9143da7973b?w=300", 40, "liter"},
	{"Eggs", "Farm fresh eggs, pack of 12", 90, 110, "Dairy", "https://images.unsplash.com/photo-1582722872445-44dc5f7e3c8f?w=300", 60, "dozen"},
	{"Brown Bread", "Whole wheat brown bread, 400g packet", 45, 0, "Bakery", "https://images.unsplash.com/photo-1549931319-a545dcf3bc73?w=300", 25, "packet"},
	{"Cookies", "Chocolate chip cookies, 200g pack", 75, 90, "Snacks", "https://images.unsplash.com/photo-1499636136210-6f4ee915583e?w=300", 80, "pack"},
	{"Basmati Rice", "Premium quality basmati rice, 1kg pack", 120, 0, "Grains", "https://images.unsplash.com/photo-1584270354949-c26b0d5b4a0c?w=300&fit=crop", 45, "kg"},
	{"Chicken Breast", "Fresh chicken breast, 500g pack", 220, 250, "Meat", "https://images.unsplash.com/photo-1604503468506-a8da13d82791?w=300", 20, "pack"},
	{"Orange Juice", "100% pure orange juice, 1 liter", 110, 0, "Beverages", "https://images.unsplash.com/photo-1613478223719-2ab802602423?w=300", 35, "liter"},
	{"Potatoes", "Fresh potatoes, perfect for all recipes", 30, 0, "Vegetables", "https://images.unsplash.com/photo-1518977676601-b53f82aba655?w=300", 100, "kg"},
}

// Products returns a fresh copy of the sample catalog with new ids
func Products() []models.Product {
	products := make([]models.Product, 0, len(sampleProducts))
	for _, s := range sampleProducts {
		p := models.Product{
			ID:          uuid.New(),
			Name:        s.name,
			Description: s.description,
			Price:       decimal.NewFromInt(s.price),
			Category:    s.category,
			Image:       s.image,
			Unit:        s.unit,
		}
		if s.originalPrice > 0 {
			p.OriginalPrice = decimal.NewNullDecimal(decimal.NewFromInt(s.originalPrice))
		}
		p.SetStock(s.quantity)
		products = append(products, p)
	}
	return products
}

// Users returns the demo customers
func Users() []models.User {
	return []models.User{
		{
			ID:    uuid.NewString(),
			Name:  "John Doe",
			Email: "john@example.com",
			Phone: "9876543210",
			Address: models.Address{
				Street:  "123 Main Street",
				City:    "Mumbai",
				State:   "Maharashtra",
				ZipCode: "400001",
			},
		},
		{
			ID:    uuid.NewString(),
			Name:  "Jane Smith",
			Email: "jane@example.com",
			Phone: "9876543211",
			Address: models.Address{
				Street:  "456 Oak Avenue",
				City:    "Delhi",
				State:   "Delhi",
				ZipCode: "110001",
			},
		},
	}
}

// Result lists what Run inserted
type Result struct {
	Products []models.Product
	Users    []models.User
}

// Run clears the catalog and users (and orders when clearOrders is set), then inserts
// the sample data
func Run(ctx context.Context, catalog port.CatalogStore, orders port.OrderStore, users port.UserStore, clearOrders bool) (*Result, error) {
	if clearOrders {
		if err := orders.DeleteAllOrders(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear orders: %w", err)
		}
	}
	if err := catalog.DeleteAllProducts(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear products: %w", err)
	}
	if err := users.DeleteAllUsers(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear users: %w", err)
	}

	result := &Result{Products: Products(), Users: Users()}
	for i := range result.Products {
		if err := catalog.CreateProduct(ctx, &result.Products[i]); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", result.Products[i].Name, err)
		}
	}
	for i := range result.Users {
		if err := users.CreateUser(ctx, &result.Users[i]); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", result.Users[i].Email, err)
		}
	}
	return result, nil
}
