package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"grocery-service/internal/models"
	"grocery-service/internal/port"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MemoryStore keeps the catalog, orders and users in process. A single lock serializes
// every mutation, so placements behave as if run one after another.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[uuid.UUID]models.Product
	orders    map[uuid.UUID]models.Order
	users     map[string]models.User
	events    map[string]string
	lastStamp time.Time
}

var (
	_ port.CatalogStore = (*MemoryStore)(nil)
	_ port.OrderStore   = (*MemoryStore)(nil)
	_ port.UserStore    = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[uuid.UUID]models.Product),
		orders:   make(map[uuid.UUID]models.Order),
		users:    make(map[string]models.User),
		events:   make(map[string]string),
	}
}

// now returns strictly increasing timestamps so newest-first ordering is stable.
func (m *MemoryStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(m.lastStamp) {
		t = m.lastStamp.Add(time.Microsecond)
	}
	m.lastStamp = t
	return t
}

func (m *MemoryStore) ListProducts(_ context.Context, filter models.ProductFilter) ([]models.Product, error) {
	filter = filter.Normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	products := []models.Product{}
	for _, p := range m.products {
		if filter.Matches(p) {
			products = append(products, p)
		}
	}
	sortProducts(products)
	return products, nil
}

func (m *MemoryStore) GetProductByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) GetProductsByIDs(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := []models.Product{}
	for _, id := range lo.Uniq(ids) {
		if p, ok := m.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (m *MemoryStore) ListCategories(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	categories := lo.Uniq(lo.MapToSlice(m.products, func(_ uuid.UUID, p models.Product) string {
		return p.Category
	}))
	sort.Strings(categories)
	return categories, nil
}

func (m *MemoryStore) CreateProduct(_ context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if _, exists := m.products[product.ID]; exists {
		return fmt.Errorf("%w: product %s already exists", models.ErrConflict, product.ID)
	}
	product.SetStock(product.StockQuantity)
	product.CreatedAt = m.now()
	product.UpdatedAt = product.CreatedAt
	m.products[product.ID] = *product
	return nil
}

func (m *MemoryStore) RestockProduct(_ context.Context, id uuid.UUID, quantity int) (*models.Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: restock quantity must be positive", models.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	p.SetStock(p.StockQuantity + quantity)
	p.UpdatedAt = m.now()
	m.products[id] = p
	return &p, nil
}

func (m *MemoryStore) DeleteAllProducts(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.products = make(map[uuid.UUID]models.Product)
	return nil
}

func (m *MemoryStore) PlaceOrder(ctx context.Context, order *models.Order, prepare port.PrepareOrderFunc) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: no items in order", models.ErrValidation)
	}
	quantities, err := requestedQuantities(order.Items)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if order.IdempotencyKey != nil {
		for _, existing := range m.orders {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *order.IdempotencyKey {
				return fmt.Errorf("%w: idempotency key already used", models.ErrConflict)
			}
		}
	}

	locked := make(map[uuid.UUID]models.Product, len(order.Items))
	for _, item := range order.Items {
		if p, ok := m.products[item.ProductID]; ok {
			locked[p.ID] = p
		}
	}

	if err := prepare(locked); err != nil {
		return err
	}

	for productID, quantity := range quantities {
		p, ok := locked[productID]
		if !ok || p.StockQuantity < quantity {
			return &models.InsufficientStockError{Name: p.Name, Available: p.StockQuantity}
		}
	}

	stamp := m.now()
	for productID, quantity := range quantities {
		p := locked[productID]
		p.SetStock(p.StockQuantity - quantity)
		p.UpdatedAt = stamp
		m.products[productID] = p
	}

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}
	order.CreatedAt = stamp
	order.UpdatedAt = stamp
	m.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (m *MemoryStore) GetOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (m *MemoryStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetOrdersByUserID(_ context.Context, userID string) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := []models.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (m *MemoryStore) UpdateOrderStatus(_ context.Context, id uuid.UUID, status models.OrderStatus) (*models.Order, models.OrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, "", fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	previous := o.Status
	o.Status = status
	o.UpdatedAt = m.now()
	m.orders[id] = o

	o = cloneOrder(o)
	return &o, previous, nil
}

func (m *MemoryStore) DeleteAllOrders(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders = make(map[uuid.UUID]models.Order)
	return nil
}

func (m *MemoryStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.events[eventID]
	return ok, nil
}

func (m *MemoryStore) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[eventID]; !ok {
		m.events[eventID] = eventType
	}
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return &u, nil
}

func (m *MemoryStore) GetUsersByIDs(_ context.Context, ids []string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := []models.User{}
	for _, id := range lo.Uniq(ids) {
		if u, ok := m.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.ID == user.ID || u.Email == user.Email {
			return fmt.Errorf("%w: user %s already exists", models.ErrConflict, user.Email)
		}
	}
	user.CreatedAt = m.now()
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryStore) DeleteAllUsers(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = make(map[string]models.User)
	return nil
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem{}, o.Items...)
	return o
}

func sortProducts(products []models.Product) {
	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID.String() < products[j].ID.String()
		}
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})
}
