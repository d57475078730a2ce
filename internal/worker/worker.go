package worker

import (
	"context"
	"fmt"

	"grocery-service/internal/broker"
	"grocery-service/internal/models"
	"grocery-service/internal/port"
	"grocery-service/internal/util"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// CartWorker removes purchased products from the buyer's stored cart once an order
// has been placed
type CartWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	orders       port.OrderStore
	carts        port.CartStore
	logger       *zap.Logger
}

// NewCartWorker creates a new cart worker
func NewCartWorker(consumer *broker.Consumer, orders port.OrderStore, carts port.CartStore) *CartWorker {
	w := &CartWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		orders:       orders,
		carts:        carts,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderPlaced(w.HandleOrderPlaced)
	w.eventHandler.OnOrderStatusChanged(w.HandleOrderStatusChanged)
	return w
}

// Start starts the worker
func (w *CartWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cart worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CartWorker) Stop() error {
	w.logger.Info("Stopping cart worker...")
	return w.consumer.Close()
}

// HandleOrderPlaced drops the ordered products from the user's cart. Redelivered events
// are skipped.
func (w *CartWorker) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "CartWorker.HandleOrderPlaced")
	defer span.End()

	processed, err := w.orders.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check processed event: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	cart, err := w.carts.GetCart(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}

	removed := cart.RemoveProducts(lo.Map(event.Items, func(item models.OrderItemData, _ int) uuid.UUID {
		return item.ProductID
	})...)

	if removed > 0 {
		if cart.IsEmpty() {
			err = w.carts.DeleteCart(ctx, event.UserID)
		} else {
			err = w.carts.SaveCart(ctx, cart)
		}
		if err != nil {
			return fmt.Errorf("failed to update cart: %w", err)
		}
		util.CartOperationsTotal.WithLabelValues("purchased").Inc()
	}

	if err := w.orders.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	w.logger.Info("Removed purchased items from cart",
		zap.String("order_id", event.OrderID.String()),
		zap.String("user_id", event.UserID),
		zap.Int("removed", removed))
	return nil
}

func (w *CartWorker) HandleOrderStatusChanged(_ context.Context, event *models.OrderStatusChangedEvent) error {
	w.logger.Info("Order status changed",
		zap.String("order_id", event.OrderID.String()),
		zap.String("user_id", event.UserID),
		zap.String("from", string(event.PreviousStatus)),
		zap.String("to", string(event.Status)))
	return nil
}
