package store_test

import (
	"fmt"

	"grocery-service/internal/models"
	"grocery-service/internal/port"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func fakeProduct(category string, stock int) models.Product {
	return models.Product{
		Name:          gofakeit.ProductName(),
		Description:   gofakeit.ProductDescription(),
		Price:         decimal.NewFromFloat(gofakeit.Price(1, 500)).Round(2).Add(decimal.NewFromInt(1)),
		Category:      category,
		Image:         gofakeit.URL(),
		StockQuantity: stock,
		Unit:          "kg",
	}
}

func fakeAddress() models.Address {
	return models.Address{
		Street:  gofakeit.Street(),
		City:    gofakeit.City(),
		State:   gofakeit.State(),
		ZipCode: gofakeit.Zip(),
	}
}

func newOrder(userID string, lines map[uuid.UUID]int, order ...uuid.UUID) *models.Order {
	o := &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Currency:        "INR",
		Status:          models.OrderStatusPending,
		DeliveryAddress: fakeAddress(),
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	}
	for _, id := range order {
		o.Items = append(o.Items, models.OrderItem{ProductID: id, Quantity: lines[id]})
	}
	return o
}

// snapshot is the minimal prepare step: every product must exist and have enough stock
func snapshot(order *models.Order) port.PrepareOrderFunc {
	return func(products map[uuid.UUID]models.Product) error {
		for i := range order.Items {
			item := &order.Items[i]
			p, ok := products[item.ProductID]
			if !ok {
				return &models.ProductNotFoundError{Name: item.ProductID.String()}
			}
			if p.StockQuantity < item.Quantity {
				return &models.InsufficientStockError{Name: p.Name, Available: p.StockQuantity}
			}
			item.Name, item.Price, item.Image, item.Unit = p.Name, p.Price, p.Image, p.Unit
		}
		order.TotalAmount = models.ComputeTotal(order.Items)
		return nil
	}
}

func failingPrepare(map[uuid.UUID]models.Product) error {
	return fmt.Errorf("%w: rejected", models.ErrValidation)
}
