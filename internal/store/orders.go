package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"grocery-service/internal/models"
	"grocery-service/internal/port"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

// PlaceOrder locks the referenced products, lets prepare validate them, then decrements
// stock and inserts the order in a single transaction
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order, prepare port.PrepareOrderFunc) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: no items in order", models.ErrValidation)
	}
	quantities, err := requestedQuantities(order.Items)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := lo.Uniq(lo.Map(order.Items, func(item models.OrderItem, _ int) uuid.UUID {
		return item.ProductID
	}))

	// ORDER BY id keeps the lock order stable across concurrent placements.
	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return err
	}

	var locked []models.Product
	if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to lock products: %w", err)
	}

	products := lo.KeyBy(locked, func(p models.Product) uuid.UUID { return p.ID })
	if err := prepare(products); err != nil {
		return err
	}

	for productID, quantity := range quantities {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, in_stock = stock_quantity - $1 > 0, updated_at = NOW()
			WHERE id = $2 AND stock_quantity >= $1`,
			quantity, productID)
		if err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			p := products[productID]
			return &models.InsufficientStockError{Name: p.Name, Available: p.StockQuantity}
		}
	}

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (id, user_id, total_amount, currency, status, delivery_address, payment_status, payment_method, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *`,
		order.ID, order.UserID, order.TotalAmount, order.Currency, order.Status,
		order.DeliveryAddress, order.PaymentStatus, order.PaymentMethod, order.IdempotencyKey)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: idempotency key already used", models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO order_items (order_id, position, product_id, name, price, quantity, image, unit)
		VALUES (:order_id, :position, :product_id, :name, :price, :quantity, :image, :unit)`,
		order.Items)
	if err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order and its line items
func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id", userID)
	if err != nil {
		return nil, err
	}

	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := s.attachItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus updates order status and returns the previous one
func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) (*models.Order, models.OrderStatus, error) {
	var previous models.OrderStatus
	err := s.db.GetContext(ctx, &previous, `
		UPDATE orders o
		SET status = $1, updated_at = NOW()
		FROM (SELECT id, status FROM orders WHERE id = $2 FOR UPDATE) old
		WHERE o.id = old.id
		RETURNING old.status`,
		status, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to update order status: %w", err)
	}

	order, err := s.GetOrderByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return order, previous, nil
}

// DeleteAllOrders removes all orders and their items
func (s *Store) DeleteAllOrders(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE orders, order_items")
	return err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

func (s *Store) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := lo.Map(orders, func(o *models.Order, _ int) uuid.UUID { return o.ID })
	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY order_id, position", ids)
	if err != nil {
		return err
	}

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}

	byOrder := lo.GroupBy(items, func(item models.OrderItem) uuid.UUID { return item.OrderID })
	for _, order := range orders {
		order.Items = byOrder[order.ID]
		if order.Items == nil {
			order.Items = []models.OrderItem{}
		}
	}
	return nil
}

// requestedQuantities sums the line quantities per product. Each sum stays within
// MaxItemQuantity so it fits the INTEGER stock column.
func requestedQuantities(items []models.OrderItem) (map[uuid.UUID]int, error) {
	quantities := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > models.MaxItemQuantity-quantities[item.ProductID] {
			return nil, fmt.Errorf("%w: invalid quantity for product %s", models.ErrValidation, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	return quantities, nil
}
