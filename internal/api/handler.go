package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"grocery-service/internal/auth"
	"grocery-service/internal/service"
	"grocery-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	catalogService *service.CatalogService
	cartService    *service.CartService
	verifier       auth.Verifier
	checks         map[string]Pinger
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	catalogService *service.CatalogService,
	cartService *service.CartService,
	verifier auth.Verifier,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		orderService:   orderService,
		catalogService: catalogService,
		cartService:    cartService,
		verifier:       verifier,
		checks:         checks,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.CustomRecovery(h.recoverPanic))
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireUser := auth.RequireUser(h.verifier, h.logger)
	requireAdmin := auth.RequireRole(auth.RoleAdmin)

	api := router.Group("/api")
	{
		api.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "API is working!"})
		})

		products := api.Group("/products")
		products.GET("", h.listProducts)
		products.GET("/categories", h.listCategories)
		products.GET("/categories/all", h.listCategories)
		products.GET("/:id", h.getProduct)
		products.PATCH("/:id/stock", requireUser, requireAdmin, h.restockProduct)

		orders := api.Group("/orders", requireUser)
		orders.POST("", h.placeOrder)
		orders.GET("/mine", h.listMyOrders)
		orders.GET("/my-orders", h.listMyOrders)
		orders.GET("/:id", h.getOrder)
		orders.PATCH("/:id/status", requireAdmin, h.updateOrderStatus)

		cart := api.Group("/cart", requireUser)
		cart.GET("", h.getCart)
		cart.DELETE("", h.clearCart)
		cart.POST("/items", h.addCartItem)
		cart.PATCH("/items/:productId", h.updateCartItem)
		cart.DELETE("/items/:productId", h.removeCartItem)
		cart.POST("/checkout", h.checkout)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing store
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) recoverPanic(c *gin.Context, recovered interface{}) {
	h.logger.Error("Recovered from panic",
		zap.Any("panic", recovered),
		zap.String("path", c.Request.URL.Path))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Something went wrong!"})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
