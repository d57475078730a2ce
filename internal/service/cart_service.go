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
	"go.uber.org/zap"
)

// CartService keeps a user's selected items between visits and turns them into an order
type CartService struct {
	carts   port.CartStore
	catalog port.CatalogStore
	orders  *OrderService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartService(carts port.CartStore, catalog port.CatalogStore, orders *OrderService, timeout time.Duration) *CartService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CartService{
		carts:   carts,
		catalog: catalog,
		orders:  orders,
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

// CheckoutRequest carries the order fields that are not part of the cart
type CheckoutRequest struct {
	DeliveryAddress *models.Address `json:"delivery_address,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
}

func (s *CartService) Get(ctx context.Context, userID string) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Get")
	defer span.End()

	return s.load(ctx, userID)
}

// AddItem adds quantity units of a product, merging with an existing line
func (s *CartService) AddItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	product, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := cart.Add(*product, quantity); err != nil {
		return nil, err
	}
	if err := checkAvailable(cart, product); err != nil {
		return nil, err
	}

	return s.save(ctx, cart, "add")
}

// UpdateItem sets the quantity of a line; zero or less removes it
func (s *CartService) UpdateItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := cart.SetQuantity(productID, quantity); err != nil {
		return nil, fmt.Errorf("%w: Item not in cart", models.ErrNotFound)
	}

	if quantity > 0 {
		product, err := s.product(ctx, productID)
		if err != nil {
			return nil, err
		}
		if err := checkAvailable(cart, product); err != nil {
			return nil, err
		}
	}

	return s.save(ctx, cart, "update")
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID uuid.UUID) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cart.Remove(productID) {
		return nil, fmt.Errorf("%w: Item not in cart", models.ErrNotFound)
	}

	return s.save(ctx, cart, "remove")
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.carts.DeleteCart(storeCtx, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return nil
}

// Checkout places an order for everything in the cart. On success the purchased lines are
// removed; lines added meanwhile stay in the cart.
func (s *CartService) Checkout(ctx context.Context, userID string, req *CheckoutRequest) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Checkout")
	defer span.End()

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, fmt.Errorf("%w: Cart is empty", models.ErrValidation)
	}

	lines := cart.OrderItems()
	orderReq := &PlaceOrderRequest{
		UserID: userID,
		Items: lo.Map(lines, func(item models.OrderItem, _ int) OrderItemRequest {
			return OrderItemRequest{ProductID: item.ProductID, Name: item.Name, Quantity: item.Quantity}
		}),
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  req.IdempotencyKey,
	}

	result, err := s.orders.PlaceOrder(ctx, orderReq)
	if err != nil {
		return nil, err
	}

	purchased := lo.Map(lines, func(item models.OrderItem, _ int) uuid.UUID { return item.ProductID })
	if err := s.removePurchased(ctx, userID, purchased); err != nil {
		s.logger.Warn("Failed to remove purchased items from cart", zap.String("user_id", userID), zap.Error(err))
	}
	util.CartOperationsTotal.WithLabelValues("checkout").Inc()
	return result, nil
}

// removePurchased re-reads the cart so lines added after checkout started are kept
func (s *CartService) removePurchased(ctx context.Context, userID string, productIDs []uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	if cart.RemoveProducts(productIDs...) == 0 {
		return nil
	}
	if cart.IsEmpty() {
		return s.carts.DeleteCart(ctx, userID)
	}
	return s.carts.SaveCart(ctx, cart)
}

func (s *CartService) load(ctx context.Context, userID string) (*models.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *models.Cart, op string) (*models.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues(op).Inc()
	return cart, nil
}

func (s *CartService) product(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, err := s.catalog.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: Product not found", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// checkAvailable keeps a cart line within the stock currently on hand. Stock is only
// reserved at checkout, so this is advisory.
func checkAvailable(cart *models.Cart, product *models.Product) error {
	for _, item := range cart.Items {
		if item.ProductID == product.ID && item.Quantity > product.StockQuantity {
			return &models.InsufficientStockError{Name: product.Name, Available: product.StockQuantity}
		}
	}
	return nil
}
