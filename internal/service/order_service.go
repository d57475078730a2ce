package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grocery-service/internal/models"
	"grocery-service/internal/port"
	"grocery-service/internal/util"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Options are the business settings the order service runs with
type Options struct {
	StoreTimeout   time.Duration
	IdempotencyTTL time.Duration
	Currency       string
}

// OrderService handles order business logic
type OrderService struct {
	orders      port.OrderStore
	catalog     port.CatalogStore
	users       port.UserStore
	idempotency port.IdempotencyStore
	publisher   port.EventPublisher
	opts        Options
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders port.OrderStore,
	catalog port.CatalogStore,
	users port.UserStore,
	idempotency port.IdempotencyStore,
	publisher port.EventPublisher,
	opts Options,
) *OrderService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}

	return &OrderService{
		orders:      orders,
		catalog:     catalog,
		users:       users,
		idempotency: idempotency,
		publisher:   publisher,
		opts:        opts,
		logger:      util.GetLogger(),
	}
}

// PlaceOrderRequest represents a request to place an order
type PlaceOrderRequest struct {
	UserID          string             `json:"-"`
	Items           []OrderItemRequest `json:"items"`
	TotalAmount     *decimal.Decimal   `json:"total_amount,omitempty"`
	DeliveryAddress *models.Address    `json:"delivery_address,omitempty"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in an order. Name is only used in error messages
// when the product no longer exists.
type OrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name,omitempty"`
	Quantity  int       `json:"quantity"`
}

// PlaceOrderResult is the placed order; Replayed is set when it was answered from an
// earlier request carrying the same idempotency key.
type PlaceOrderResult struct {
	Order    *models.OrderView
	Replayed bool
}

// PlaceOrder validates the requested items against the catalog, decrements stock and
// records the order in one storage transaction
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PlaceOrderLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := s.newOrder(ctx, req)
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	if req.IdempotencyKey == "" {
		if err := s.placeOrder(ctx, order, req); err != nil {
			return nil, err
		}
		return s.placed(ctx, order)
	}

	key := req.UserID + ":" + req.IdempotencyKey
	order.IdempotencyKey = &key

	if existing, err := s.findByIdempotencyKey(ctx, key); err != nil || existing != nil {
		if err != nil {
			return nil, err
		}
		return s.replay(ctx, existing)
	}

	token := uuid.NewString()
	orderID, claimed, err := s.idempotency.Claim(ctx, key, token, s.opts.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if !claimed {
		if orderID == "" {
			util.OrdersRejectedTotal.WithLabelValues("conflict").Inc()
			return nil, fmt.Errorf("%w: a request with this idempotency key is still in progress", models.ErrConflict)
		}
		id, err := uuid.Parse(orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recorded order id: %w", err)
		}
		existing, err := s.getOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.replay(ctx, existing)
	}

	if err := s.placeOrder(ctx, order, req); err != nil {
		if releaseErr := s.idempotency.Release(context.WithoutCancel(ctx), key, token); releaseErr != nil {
			s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
		}
		if errors.Is(err, models.ErrConflict) {
			// The durable key won a race with an expired claim.
			if existing, findErr := s.findByIdempotencyKey(ctx, key); findErr == nil && existing != nil {
				return s.replay(ctx, existing)
			}
		}
		return nil, err
	}

	if err := s.idempotency.Complete(context.WithoutCancel(ctx), key, token, order.ID.String(), s.opts.IdempotencyTTL); err != nil {
		s.logger.Warn("Failed to record idempotency key", zap.String("key", key), zap.Error(err))
	}
	return s.placed(ctx, order)
}

// newOrder validates the request and builds the pending order with requested line items
func (s *OrderService) newOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user is required", models.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no order items", models.ErrValidation)
	}
	for _, item := range req.Items {
		if item.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: product id is required", models.ErrValidation)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", models.ErrValidation, itemLabel(item))
		}
		if item.Quantity > models.MaxItemQuantity {
			return nil, fmt.Errorf("%w: quantity for %s is too large", models.ErrValidation, itemLabel(item))
		}
	}
	if req.TotalAmount != nil && req.TotalAmount.IsNegative() {
		return nil, fmt.Errorf("%w: total amount must not be negative", models.ErrValidation)
	}

	method, err := models.ToPaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	address, err := s.resolveAddress(ctx, req)
	if err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
		})
	}

	return &models.Order{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Items:           items,
		Currency:        s.opts.Currency,
		Status:          models.OrderStatusPending,
		DeliveryAddress: address,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   method,
	}, nil
}

// resolveAddress prefers the request address and falls back to the user's profile
func (s *OrderService) resolveAddress(ctx context.Context, req *PlaceOrderRequest) (models.Address, error) {
	if req.DeliveryAddress != nil && !req.DeliveryAddress.IsZero() {
		if err := req.DeliveryAddress.Validate(); err != nil {
			return models.Address{}, err
		}
		return *req.DeliveryAddress, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, req.UserID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.Address{}, fmt.Errorf("failed to load user profile: %w", err)
	}
	if user == nil || user.Address.IsZero() {
		return models.Address{}, fmt.Errorf("%w: delivery address is required", models.ErrValidation)
	}
	if err := user.Address.Validate(); err != nil {
		return models.Address{}, err
	}
	return user.Address, nil
}

// placeOrder runs the storage transaction. prepare sees every referenced product locked
// and fills in the line item snapshots and the total.
func (s *OrderService) placeOrder(ctx context.Context, order *models.Order, req *PlaceOrderRequest) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	prepare := func(products map[uuid.UUID]models.Product) error {
		requested := make(map[uuid.UUID]int, len(order.Items))
		for i := range order.Items {
			item := &order.Items[i]

			product, ok := products[item.ProductID]
			if !ok {
				return &models.ProductNotFoundError{Name: itemLabel(req.Items[i])}
			}

			// compare against what is left so the running sum never exceeds the stock
			if item.Quantity > product.StockQuantity-requested[item.ProductID] {
				return &models.InsufficientStockError{Name: product.Name, Available: product.StockQuantity}
			}
			requested[item.ProductID] += item.Quantity

			item.Name = product.Name
			item.Price = product.Price
			item.Image = product.Image
			item.Unit = product.Unit
		}

		order.TotalAmount = models.ComputeTotal(order.Items)
		if req.TotalAmount != nil && !req.TotalAmount.Equal(order.TotalAmount) {
			return fmt.Errorf("%w: order total does not match current prices", models.ErrValidation)
		}
		return nil
	}

	if err := s.orders.PlaceOrder(ctx, order, prepare); err != nil {
		reason := rejectReason(err)
		util.OrdersRejectedTotal.WithLabelValues(reason).Inc()
		if reason == "internal" {
			s.logger.Error("Failed to place order", zap.String("user_id", order.UserID), zap.Error(err))
			return fmt.Errorf("failed to place order: %w", err)
		}
		s.logger.Info("Order rejected", zap.String("user_id", order.UserID), zap.String("reason", err.Error()))
		return err
	}

	util.OrdersPlacedTotal.Inc()
	for _, item := range order.Items {
		util.StockUnitsSoldTotal.Add(float64(item.Quantity))
	}
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.UserID),
		zap.String("total", order.TotalAmount.String()))

	if err := s.publisher.PublishOrderPlaced(ctx, models.NewOrderPlacedEvent(order)); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(models.EventTypeOrderPlaced).Inc()
		s.logger.Error("Failed to publish OrderPlaced event", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
	return nil
}

func (s *OrderService) placed(ctx context.Context, order *models.Order) (*PlaceOrderResult, error) {
	view, err := s.enrichOne(ctx, *order)
	if err != nil {
		return nil, err
	}
	return &PlaceOrderResult{Order: view}, nil
}

func (s *OrderService) replay(ctx context.Context, order *models.Order) (*PlaceOrderResult, error) {
	util.OrdersReplayedTotal.Inc()
	s.logger.Info("Duplicate order request detected", zap.String("order_id", order.ID.String()))

	view, err := s.enrichOne(ctx, *order)
	if err != nil {
		return nil, err
	}
	return &PlaceOrderResult{Order: view, Replayed: true}, nil
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	order, err := s.orders.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	return order, nil
}

func (s *OrderService) getOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: Order not found", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetOrdersByUser returns the user's orders, newest first
func (s *OrderService) GetOrdersByUser(ctx context.Context, userID string) ([]models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrdersByUser")
	defer span.End()

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	orders, err := s.orders.GetOrdersByUserID(storeCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return s.enrich(ctx, orders)
}

// GetOrderByID returns the order if requestingUserID owns it
func (s *OrderService) GetOrderByID(ctx context.Context, orderID uuid.UUID, requestingUserID string) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrderByID")
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requestingUserID {
		return nil, fmt.Errorf("%w: Access denied", models.ErrAccessDenied)
	}
	return s.enrichOne(ctx, *order)
}

// UpdateOrderStatus moves an order to a new status and publishes the change
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	newStatus, err := models.ToOrderStatus(status)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	order, previous, err := s.orders.UpdateOrderStatus(storeCtx, orderID, newStatus)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: Order not found", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	util.OrderStatusUpdatesTotal.WithLabelValues(string(newStatus)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(newStatus)))

	event := &models.OrderStatusChangedEvent{
		BaseEvent:      models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: previous,
		Status:         newStatus,
	}
	if err := s.publisher.PublishOrderStatusChanged(storeCtx, event); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(models.EventTypeOrderStatusChanged).Inc()
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	return s.enrichOne(ctx, *order)
}

func (s *OrderService) enrichOne(ctx context.Context, order models.Order) (*models.OrderView, error) {
	views, err := s.enrich(ctx, []models.Order{order})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// enrich attaches the owning user and current product display fields. Users or products
// that no longer exist are left out; the line item snapshots are kept as recorded.
func (s *OrderService) enrich(ctx context.Context, orders []models.Order) ([]models.OrderView, error) {
	views := make([]models.OrderView, 0, len(orders))
	if len(orders) == 0 {
		return views, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	userIDs := lo.Uniq(lo.Map(orders, func(o models.Order, _ int) string { return o.UserID }))
	productIDs := lo.Uniq(lo.FlatMap(orders, func(o models.Order, _ int) []uuid.UUID {
		return lo.Map(o.Items, func(item models.OrderItem, _ int) uuid.UUID { return item.ProductID })
	}))

	users, err := s.users.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load order users: %w", err)
	}
	products, err := s.catalog.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load order products: %w", err)
	}

	userByID := lo.KeyBy(users, func(u models.User) string { return u.ID })
	productByID := lo.KeyBy(products, func(p models.Product) uuid.UUID { return p.ID })

	for _, order := range orders {
		view := models.OrderView{Order: order, Items: make([]models.OrderItemView, 0, len(order.Items))}
		if u, ok := userByID[order.UserID]; ok {
			view.User = &models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
		}
		for _, item := range order.Items {
			itemView := models.OrderItemView{OrderItem: item}
			if p, ok := productByID[item.ProductID]; ok {
				itemView.Product = &models.ProductSummary{ID: p.ID, Name: p.Name, Category: p.Category, Image: p.Image}
			}
			view.Items = append(view.Items, itemView)
		}
		views = append(views, view)
	}
	return views, nil
}

func itemLabel(item OrderItemRequest) string {
	if item.Name != "" {
		return item.Name
	}
	return item.ProductID.String()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
