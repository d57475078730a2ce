package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"grocery-service/internal/models"
)

type CatalogStore interface {
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]string, error)

	CreateProduct(ctx context.Context, product *models.Product) error
	RestockProduct(ctx context.Context, id uuid.UUID, quantity int) (*models.Product, error)
	DeleteAllProducts(ctx context.Context) error
}

// PrepareOrderFunc runs inside the placement transaction with every referenced product locked.
// Products missing from the catalog are absent from the map. Returning an error aborts the
// transaction before any stock is touched.
type PrepareOrderFunc func(products map[uuid.UUID]models.Product) error

type OrderStore interface {
	// PlaceOrder decrements stock for every line item and inserts the order, all or nothing.
	PlaceOrder(ctx context.Context, order *models.Order, prepare PrepareOrderFunc) error

	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// GetOrderByIdempotencyKey returns nil, nil when no order carries the key.
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error)
	// UpdateOrderStatus returns the updated order and the status it had before.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) (*models.Order, models.OrderStatus, error)
	DeleteAllOrders(ctx context.Context) error

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// UserStore is the profile data owned by the authentication collaborator.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	DeleteAllUsers(ctx context.Context) error
}

type CartStore interface {
	// GetCart returns an empty cart when the user has none stored.
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
	DeleteCart(ctx context.Context, userID string) error
}

type IdempotencyStore interface {
	// Claim reserves key for token. When the key is already held, claimed is false and
	// orderID is the order recorded by the holder, or empty while it is still in progress.
	Claim(ctx context.Context, key, token string, ttl time.Duration) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, token, orderID string, ttl time.Duration) error
	Release(ctx context.Context, key, token string) error
}

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}
