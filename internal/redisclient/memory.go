package redisclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"grocery-service/internal/models"
	"grocery-service/internal/port"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryClient is an in-process stand-in for Client, used when no Redis is configured.
type MemoryClient struct {
	mu    sync.Mutex
	carts map[string]models.Cart
	keys  map[string]memoryEntry
}

var (
	_ port.CartStore        = (*MemoryClient)(nil)
	_ port.IdempotencyStore = (*MemoryClient)(nil)
)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		carts: make(map[string]models.Cart),
		keys:  make(map[string]memoryEntry),
	}
}

func (m *MemoryClient) GetCart(_ context.Context, userID string) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, ok := m.carts[userID]
	if !ok {
		return models.NewCart(userID), nil
	}
	cart.Items = append([]models.CartItem{}, cart.Items...)
	return &cart, nil
}

func (m *MemoryClient) SaveCart(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *cart
	stored.Items = append([]models.CartItem{}, cart.Items...)
	m.carts[cart.UserID] = stored
	return nil
}

func (m *MemoryClient) DeleteCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts, userID)
	return nil
}

func (m *MemoryClient) get(key string) (string, bool) {
	entry, ok := m.keys[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.keys, key)
		return "", false
	}
	return entry.value, true
}

func (m *MemoryClient) Claim(_ context.Context, key, token string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.get(key); ok {
		if strings.HasPrefix(current, pendingPrefix) {
			return "", false, nil
		}
		return current, false, nil
	}
	m.keys[key] = memoryEntry{value: pendingPrefix + token, expiresAt: time.Now().Add(ttl)}
	return "", true, nil
}

func (m *MemoryClient) Complete(_ context.Context, key, token, orderID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.get(key); !ok || current != pendingPrefix+token {
		return fmt.Errorf("idempotency key %s is no longer held", key)
	}
	m.keys[key] = memoryEntry{value: orderID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryClient) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.get(key); ok && current == pendingPrefix+token {
		delete(m.keys, key)
	}
	return nil
}
