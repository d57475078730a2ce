package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"grocery-service/internal/auth"
	"grocery-service/internal/broker"
	"grocery-service/internal/models"
	"grocery-service/internal/redisclient"
	"grocery-service/internal/service"
	"grocery-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type handlerSuite struct {
	suite.Suite

	store  *store.MemoryStore
	router *gin.Engine

	customer      models.User
	customerToken string
	otherToken    string
	adminToken    string

	apples  models.Product
	bananas models.Product
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(handlerSuite))
}

func (s *handlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	s.store = store.NewMemoryStore()
	redis := redisclient.NewMemoryClient()

	orders := service.NewOrderService(s.store, s.store, s.store, redis, broker.NopPublisher{}, service.Options{Currency: "INR"})
	catalog := service.NewCatalogService(s.store, time.Second)
	carts := service.NewCartService(redis, s.store, orders, time.Second)

	const secret, issuerName = "test-secret", "grocery-service"
	h := NewHandler(orders, catalog, carts, auth.NewJWTVerifier(secret, issuerName), map[string]Pinger{
		"database": pingerFunc(func(context.Context) error { return nil }),
	})
	s.router = gin.New()
	h.SetupRoutes(s.router)
	s.router.GET("/boom", func(*gin.Context) { panic("boom") })

	s.customer = models.User{
		ID:    "user-1",
		Name:  "John Doe",
		Email: "john@example.com",
		Address: models.Address{
			Street: "123 Main St", City: "Mumbai", State: "Maharashtra", ZipCode: "400001",
		},
	}
	s.Require().NoError(s.store.CreateUser(ctx, &s.customer))

	issuer := auth.NewIssuer(secret, issuerName, time.Hour)
	var err error
	s.customerToken, err = issuer.Issue(s.customer.ID, auth.RoleCustomer)
	s.Require().NoError(err)
	s.otherToken, err = issuer.Issue("user-2", auth.RoleCustomer)
	s.Require().NoError(err)
	s.adminToken, err = issuer.Issue("admin-1", auth.RoleAdmin)
	s.Require().NoError(err)

	s.apples = models.Product{Name: "Fresh Apples", Category: "Fruits", Price: decimal.NewFromInt(120), StockQuantity: 50, Unit: "1 kg"}
	s.bananas = models.Product{Name: "Bananas", Category: "Fruits", Price: decimal.NewFromInt(40), StockQuantity: 2, Unit: "1 dozen"}
	milk := models.Product{Name: "Organic Milk", Category: "Dairy", Price: decimal.NewFromInt(65), StockQuantity: 20, Unit: "1 L"}
	for _, p := range []*models.Product{&s.apples, &s.bananas, &milk} {
		s.Require().NoError(s.store.CreateProduct(ctx, p))
	}
}

func (s *handlerSuite) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](s *handlerSuite, w *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type messageBody struct {
	Message string `json:"message"`
}

type orderBody struct {
	Message string           `json:"message"`
	Order   models.OrderView `json:"order"`
}

func (s *handlerSuite) placeOrder(token string, items ...service.OrderItemRequest) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/api/orders", token, service.PlaceOrderRequest{Items: items})
}

func (s *handlerSuite) TestMiscRoutes() {
	w := s.do(http.MethodGet, "/api/test", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("API is working!", decode[messageBody](s, w).Message)

	w = s.do(http.MethodGet, "/api/nowhere", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Route not found", decode[messageBody](s, w).Message)

	w = s.do(http.MethodGet, "/boom", "", nil)
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("Something went wrong!", decode[messageBody](s, w).Message)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health", "", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/ready", "", nil).Code)
}

func (s *handlerSuite) TestListProducts() {
	w := s.do(http.MethodGet, "/api/products?category=Fruits", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	products := decode[[]models.Product](s, w)
	s.Len(products, 2)

	w = s.do(http.MethodGet, "/api/products?category=all&search=MILK", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	products = decode[[]models.Product](s, w)
	s.Require().Len(products, 1)
	s.Equal("Organic Milk", products[0].Name)
	s.Equal(20, products[0].StockQuantity)
	s.True(products[0].InStock)

	w = s.do(http.MethodGet, "/api/products?search=zzz", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq("[]", w.Body.String())
}

func (s *handlerSuite) TestCategories() {
	for _, path := range []string{"/api/products/categories", "/api/products/categories/all"} {
		w := s.do(http.MethodGet, path, "", nil)
		s.Require().Equal(http.StatusOK, w.Code)
		s.ElementsMatch([]string{"Fruits", "Dairy"}, decode[[]string](s, w))
	}
}

func (s *handlerSuite) TestGetProduct() {
	w := s.do(http.MethodGet, "/api/products/"+s.apples.ID.String(), "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("Fresh Apples", decode[models.Product](s, w).Name)

	w = s.do(http.MethodGet, "/api/products/"+uuid.NewString(), "", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Product not found", decode[messageBody](s, w).Message)

	w = s.do(http.MethodGet, "/api/products/not-a-uuid", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Product not found", decode[messageBody](s, w).Message)
}

func (s *handlerSuite) TestRestockRequiresAdmin() {
	path := "/api/products/" + s.bananas.ID.String() + "/stock"
	body := gin.H{"quantity": 5}

	s.Equal(http.StatusUnauthorized, s.do(http.MethodPatch, path, "", body).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodPatch, path, s.customerToken, body).Code)

	w := s.do(http.MethodPatch, path, s.adminToken, body)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(7, decode[models.Product](s, w).StockQuantity)
}

func (s *handlerSuite) TestPlaceOrder() {
	s.Equal(http.StatusUnauthorized, s.placeOrder("", service.OrderItemRequest{ProductID: s.apples.ID, Quantity: 1}).Code)

	w := s.placeOrder(s.customerToken, service.OrderItemRequest{ProductID: s.apples.ID, Quantity: 10})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	body := decode[orderBody](s, w)
	s.Equal("Order placed successfully", body.Message)
	s.Equal(s.customer.ID, body.Order.UserID)
	s.True(decimal.NewFromInt(1200).Equal(body.Order.TotalAmount))
	s.Equal(models.OrderStatusPending, body.Order.Status)
	s.Equal(s.customer.Address, body.Order.DeliveryAddress)
	s.Require().NotNil(body.Order.User)
	s.Equal("John Doe", body.Order.User.Name)
	s.Require().Len(body.Order.Items, 1)
	s.Equal("Fresh Apples", body.Order.Items[0].Name)

	p, err := s.store.GetProductByID(context.Background(), s.apples.ID)
	s.Require().NoError(err)
	s.Equal(40, p.StockQuantity)
}

func (s *handlerSuite) TestPlaceOrderRejections() {
	w := s.placeOrder(s.customerToken,
		service.OrderItemRequest{ProductID: s.apples.ID, Quantity: 1},
		service.OrderItemRequest{ProductID: s.bananas.ID, Quantity: 3},
	)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Insufficient quantity for Bananas. Available: 2", decode[messageBody](s, w).Message)

	w = s.placeOrder(s.customerToken, service.OrderItemRequest{ProductID: uuid.New(), Name: "Kiwi", Quantity: 1})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Product Kiwi not found", decode[messageBody](s, w).Message)

	w = s.placeOrder(s.customerToken)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("no order items", decode[messageBody](s, w).Message)

	w = s.do(http.MethodPost, "/api/orders", s.customerToken, "not an object")
	s.Equal(http.StatusBadRequest, w.Code)

	p, err := s.store.GetProductByID(context.Background(), s.apples.ID)
	s.Require().NoError(err)
	s.Equal(50, p.StockQuantity)
}

func (s *handlerSuite) TestPlaceOrderIdempotencyKeyHeader() {
	body := service.PlaceOrderRequest{Items: []service.OrderItemRequest{{ProductID: s.apples.ID, Quantity: 1}}}

	first := s.do(http.MethodPost, "/api/orders", s.customerToken, body, "Idempotency-Key", "abc")
	s.Require().Equal(http.StatusCreated, first.Code)
	second := s.do(http.MethodPost, "/api/orders", s.customerToken, body, "Idempotency-Key", "abc")
	s.Require().Equal(http.StatusOK, second.Code)

	s.Equal(decode[orderBody](s, first).Order.ID, decode[orderBody](s, second).Order.ID)
}

func (s *handlerSuite) TestOrderQueries() {
	first := decode[orderBody](s, s.placeOrder(s.customerToken, service.OrderItemRequest{ProductID: s.apples.ID, Quantity: 1}))
	second := decode[orderBody](s, s.placeOrder(s.customerToken, service.OrderItemRequest{ProductID: s.bananas.ID, Quantity: 1}))

	for _, path := range []string{"/api/orders/mine", "/api/orders/my-orders"} {
		w := s.do(http.MethodGet, path, s.customerToken, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		orders := decode[[]models.OrderView](s, w)
		s.Require().Len(orders, 2)
		s.Equal(second.Order.ID, orders[0].ID)
		s.Equal(first.Order.ID, orders[1].ID)
	}

	w := s.do(http.MethodGet, "/api/orders/mine", s.otherToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq("[]", w.Body.String())

	path := "/api/orders/" + first.Order.ID.String()
	s.Equal(http.StatusOK, s.do(http.MethodGet, path, s.customerToken, nil).Code)

	w = s.do(http.MethodGet, path, s.otherToken, nil)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("Access denied", decode[messageBody](s, w).Message)

	w = s.do(http.MethodGet, "/api/orders/"+uuid.NewString(), s.customerToken, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Order not found", decode[messageBody](s, w).Message)

	w = s.do(http.MethodGet, "/api/orders/not-a-uuid", s.customerToken, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Order not found", decode[messageBody](s, w).Message)
}

func (s *handlerSuite) TestUpdateOrderStatus() {
	placed := decode[orderBody](s, s.placeOrder(s.customerToken, service.OrderItemRequest{ProductID: s.apples.ID, Quantity: 1}))
	path := "/api/orders/" + placed.Order.ID.String() + "/status"

	s.Equal(http.StatusForbidden, s.do(http.MethodPatch, path, s.customerToken, gin.H{"status": "confirmed"}).Code)

	w := s.do(http.MethodPatch, path, s.adminToken, gin.H{"status": "confirmed"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(models.OrderStatusConfirmed, decode[orderBody](s, w).Order.Status)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPatch, path, s.adminToken, gin.H{"status": "lost"}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPatch, path, s.adminToken, gin.H{}).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodPatch, "/api/orders/"+uuid.NewString()+"/status", s.adminToken, gin.H{"status": "delivered"}).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodPatch, "/api/orders/not-a-uuid/status", s.adminToken, gin.H{"status": "delivered"}).Code)
}

func (s *handlerSuite) TestCartFlow() {
	w := s.do(http.MethodPost, "/api/cart/items", s.customerToken, gin.H{"product_id": s.apples.ID, "quantity": 2})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPost, "/api/cart/items", s.customerToken, gin.H{"product_id": s.bananas.ID})
	s.Require().Equal(http.StatusOK, w.Code)

	cart := decode[cartResponse](s, w)
	s.Equal(3, cart.Count)
	s.True(decimal.NewFromInt(280).Equal(cart.Total))

	w = s.do(http.MethodPatch, "/api/cart/items/"+s.apples.ID.String(), s.customerToken, gin.H{"quantity": 3})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(4, decode[cartResponse](s, w).Count)

	w = s.do(http.MethodDelete, "/api/cart/items/"+s.bananas.ID.String(), s.customerToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(3, decode[cartResponse](s, w).Count)

	w = s.do(http.MethodDelete, "/api/cart/items/not-a-uuid", s.customerToken, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Item not in cart", decode[messageBody](s, w).Message)

	w = s.do(http.MethodPost, "/api/cart/checkout", s.customerToken, gin.H{"payment_method": "card"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	order := decode[orderBody](s, w).Order
	s.True(decimal.NewFromInt(360).Equal(order.TotalAmount))
	s.Equal(models.PaymentMethodCard, order.PaymentMethod)

	w = s.do(http.MethodGet, "/api/cart", s.customerToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Zero(decode[cartResponse](s, w).Count)

	w = s.do(http.MethodPost, "/api/cart/checkout", s.customerToken, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Cart is empty", decode[messageBody](s, w).Message)

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/cart", s.customerToken, nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/cart", "", nil).Code)
}

func TestReadinessReportsFailedDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandler(nil, nil, nil, auth.NewJWTVerifier("secret", ""), map[string]Pinger{
		"redis": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	router := gin.New()
	h.SetupRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
}
