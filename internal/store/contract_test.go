package store_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"grocery-service/internal/models"
	"grocery-service/internal/port"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fullStore interface {
	port.CatalogStore
	port.OrderStore
	port.UserStore
}

// runStoreContract checks behaviour shared by the Postgres and in-memory stores.
func runStoreContract(t *testing.T, s fullStore) {
	ctx := context.Background()

	reset := func() {
		require.NoError(t, s.DeleteAllOrders(ctx))
		require.NoError(t, s.DeleteAllProducts(ctx))
		require.NoError(t, s.DeleteAllUsers(ctx))
	}

	create := func(t *testing.T, category string, stock int) models.Product {
		p := fakeProduct(category, stock)
		require.NoError(t, s.CreateProduct(ctx, &p))
		return p
	}

	t.Run("product roundtrip", func(t *testing.T) {
		reset()
		p := create(t, "Fruits", 0)
		assert.False(t, p.InStock)

		got, err := s.GetProductByID(ctx, p.ID)
		require.NoError(t, err)
		if diff := cmp.Diff(p, *got, cmpopts.IgnoreFields(models.Product{}, "CreatedAt", "UpdatedAt")); diff != "" {
			t.Errorf("product mismatch (-want +got):\n%s", diff)
		}

		_, err = s.GetProductByID(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("list products filters", func(t *testing.T) {
		reset()
		apples := fakeProduct("Fruits", 5)
		apples.Name = "Fresh Apples"
		pine := fakeProduct("Fruits", 5)
		pine.Name = "Pineapple 50% off"
		milk := fakeProduct("Dairy", 5)
		milk.Name = "Milk"
		for _, p := range []*models.Product{&apples, &pine, &milk} {
			require.NoError(t, s.CreateProduct(ctx, p))
		}

		names := func(filter models.ProductFilter) []string {
			products, err := s.ListProducts(ctx, filter)
			require.NoError(t, err)
			out := []string{}
			for _, p := range products {
				out = append(out, p.Name)
			}
			return out
		}

		assert.Equal(t, []string{"Fresh Apples", "Pineapple 50% off", "Milk"}, names(models.ProductFilter{}))
		assert.Equal(t, []string{"Fresh Apples", "Pineapple 50% off", "Milk"}, names(models.ProductFilter{Category: "All"}))
		assert.Equal(t, []string{"Fresh Apples", "Pineapple 50% off"}, names(models.ProductFilter{Category: "Fruits"}))
		assert.Equal(t, []string{"Fresh Apples", "Pineapple 50% off"}, names(models.ProductFilter{Search: "APPLE"}))
		assert.Equal(t, []string{"Pineapple 50% off"}, names(models.ProductFilter{Search: "50%"}))
		assert.Equal(t, []string{}, names(models.ProductFilter{Search: "_"}))
		assert.Equal(t, []string{}, names(models.ProductFilter{Category: "fruits"}))

		categories, err := s.ListCategories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Dairy", "Fruits"}, categories)

		byIDs, err := s.GetProductsByIDs(ctx, []uuid.UUID{milk.ID, uuid.New(), apples.ID})
		require.NoError(t, err)
		assert.Len(t, byIDs, 2)
	})

	t.Run("restock", func(t *testing.T) {
		reset()
		p := create(t, "Fruits", 0)

		got, err := s.RestockProduct(ctx, p.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, 7, got.StockQuantity)
		assert.True(t, got.InStock)

		_, err = s.RestockProduct(ctx, uuid.New(), 1)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("place order decrements stock", func(t *testing.T) {
		reset()
		a := create(t, "Fruits", 50)
		b := create(t, "Dairy", 3)

		order := newOrder("user-1", map[uuid.UUID]int{a.ID: 10, b.ID: 3}, a.ID, b.ID)
		require.NoError(t, s.PlaceOrder(ctx, order, snapshot(order)))

		gotA, err := s.GetProductByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 40, gotA.StockQuantity)
		assert.True(t, gotA.InStock)

		gotB, err := s.GetProductByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, gotB.StockQuantity)
		assert.False(t, gotB.InStock)

		stored, err := s.GetOrderByID(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, stored.Items, 2)
		assert.Equal(t, a.ID, stored.Items[0].ProductID)
		assert.Equal(t, b.Name, stored.Items[1].Name)
		assert.True(t, order.TotalAmount.Equal(stored.TotalAmount))
		assert.Equal(t, order.DeliveryAddress, stored.DeliveryAddress)
		assert.Equal(t, models.OrderStatusPending, stored.Status)
		assert.False(t, stored.CreatedAt.IsZero())
	})

	t.Run("failed placement changes nothing", func(t *testing.T) {
		reset()
		a := create(t, "Fruits", 50)
		b := create(t, "Dairy", 3)

		order := newOrder("user-1", map[uuid.UUID]int{a.ID: 5, b.ID: 4}, a.ID, b.ID)
		err := s.PlaceOrder(ctx, order, snapshot(order))
		assert.ErrorIs(t, err, models.ErrInsufficientStock)

		order = newOrder("user-1", map[uuid.UUID]int{a.ID: 5}, a.ID)
		err = s.PlaceOrder(ctx, order, failingPrepare)
		assert.ErrorIs(t, err, models.ErrValidation)

		gotA, err := s.GetProductByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, gotA.StockQuantity)

		orders, err := s.GetOrdersByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, orders)

		_, err = s.GetOrderByID(ctx, order.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("quantities that overflow are rejected", func(t *testing.T) {
		reset()
		a := create(t, "Fruits", 50)

		o := newOrder("user-1", nil)
		o.Items = []models.OrderItem{
			{ProductID: a.ID, Quantity: 1},
			{ProductID: a.ID, Quantity: math.MaxInt64},
		}
		err := s.PlaceOrder(ctx, o, func(map[uuid.UUID]models.Product) error { return nil })
		require.ErrorIs(t, err, models.ErrValidation)

		got, err := s.GetProductByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, got.StockQuantity)
		assert.True(t, got.InStock)

		orders, err := s.GetOrdersByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("idempotency key is unique", func(t *testing.T) {
		reset()
		a := create(t, "Fruits", 10)
		key := "user-1:abc"

		first := newOrder("user-1", map[uuid.UUID]int{a.ID: 1}, a.ID)
		first.IdempotencyKey = &key
		require.NoError(t, s.PlaceOrder(ctx, first, snapshot(first)))

		second := newOrder("user-1", map[uuid.UUID]int{a.ID: 1}, a.ID)
		second.IdempotencyKey = &key
		assert.ErrorIs(t, s.PlaceOrder(ctx, second, snapshot(second)), models.ErrConflict)

		got, err := s.GetOrderByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)

		none, err := s.GetOrderByIdempotencyKey(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, none)

		gotA, err := s.GetProductByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 9, gotA.StockQuantity)
	})

	t.Run("orders by user newest first", func(t *testing.T) {
		reset()
		a := create(t, "Fruits", 10)

		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			o := newOrder("user-1", map[uuid.UUID]int{a.ID: 1}, a.ID)
			require.NoError(t, s.PlaceOrder(ctx, o, snapshot(o)))
			ids = append(ids, o.ID)
		}
		other := newOrder("user-2", map[uuid.UUID]int{a.ID: 1}, a.ID)
		require.NoError(t, s.PlaceOrder(ctx, other, snapshot(other)))

		orders, err := s.GetOrdersByUserID(ctx, "user-1")
		require.NoError(t, err)
		got := []uuid.UUID{}
		for _, o := range orders {
			got = append(got, o.ID)
			assert.Len(t, o.Items, 1)
		}
		assert.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]}, got)
	})

	t.Run("update order status", func(t *testing.T) {
		reset()
		a := create(t, "Fruits", 10)
		o := newOrder("user-1", map[uuid.UUID]int{a.ID: 1}, a.ID)
		require.NoError(t, s.PlaceOrder(ctx, o, snapshot(o)))

		updated, previous, err := s.UpdateOrderStatus(ctx, o.ID, models.OrderStatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, previous)
		assert.Equal(t, models.OrderStatusConfirmed, updated.Status)
		assert.Len(t, updated.Items, 1)

		_, previous, err = s.UpdateOrderStatus(ctx, o.ID, models.OrderStatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusConfirmed, previous)

		_, _, err = s.UpdateOrderStatus(ctx, uuid.New(), models.OrderStatusDelivered)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("concurrent placements never oversell", func(t *testing.T) {
		reset()
		a := create(t, "Fruits", 10)

		const buyers = 25
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			ok, lost int
		)
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o := newOrder(uuid.NewString(), map[uuid.UUID]int{a.ID: 1}, a.ID)
				err := s.PlaceOrder(ctx, o, snapshot(o))

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, models.ErrInsufficientStock):
					lost++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, ok)
		assert.Equal(t, buyers-10, lost)

		got, err := s.GetProductByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.StockQuantity)
		assert.False(t, got.InStock)
	})

	t.Run("processed events", func(t *testing.T) {
		eventID := uuid.NewString()

		processed, err := s.IsEventProcessed(ctx, eventID)
		require.NoError(t, err)
		assert.False(t, processed)

		require.NoError(t, s.MarkEventProcessed(ctx, eventID, models.EventTypeOrderPlaced))
		require.NoError(t, s.MarkEventProcessed(ctx, eventID, models.EventTypeOrderPlaced))

		processed, err = s.IsEventProcessed(ctx, eventID)
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("users", func(t *testing.T) {
		reset()
		u := models.User{ID: uuid.NewString(), Name: "John Doe", Email: "john@example.com", Address: fakeAddress()}
		require.NoError(t, s.CreateUser(ctx, &u))

		dup := models.User{ID: uuid.NewString(), Name: "Johnny", Email: "john@example.com"}
		assert.ErrorIs(t, s.CreateUser(ctx, &dup), models.ErrConflict)

		got, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Address, got.Address)
		assert.Equal(t, "John Doe", got.Name)

		_, err = s.GetUserByID(ctx, "nobody")
		assert.ErrorIs(t, err, models.ErrNotFound)

		users, err := s.GetUsersByIDs(ctx, []string{u.ID, "nobody", u.ID})
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})
}
