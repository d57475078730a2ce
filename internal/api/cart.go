package api

import (
	"net/http"
	"time"

	"grocery-service/internal/auth"
	"grocery-service/internal/models"
	"grocery-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type cartResponse struct {
	UserID    string            `json:"user_id"`
	Items     []models.CartItem `json:"items"`
	Count     int               `json:"count"`
	Total     decimal.Decimal   `json:"total"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func newCartResponse(cart *models.Cart) cartResponse {
	return cartResponse{
		UserID:    cart.UserID,
		Items:     cart.Items,
		Count:     cart.Count(),
		Total:     cart.Total(),
		UpdatedAt: cart.UpdatedAt,
	}
}

type addCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  *int      `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	cart, err := h.cartService.Get(c.Request.Context(), identity.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *Handler) addCartItem(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProductID == uuid.Nil {
		badRequest(c, "Invalid request body")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.cartService.AddItem(c.Request.Context(), identity.UserID, req.ProductID, quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *Handler) updateCartItem(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		notFound(c, "Item not in cart")
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Quantity is required")
		return
	}

	cart, err := h.cartService.UpdateItem(c.Request.Context(), identity.UserID, productID, *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *Handler) removeCartItem(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		notFound(c, "Item not in cart")
		return
	}

	cart, err := h.cartService.RemoveItem(c.Request.Context(), identity.UserID, productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(cart))
}

func (h *Handler) clearCart(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	if err := h.cartService.Clear(c.Request.Context(), identity.UserID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) checkout(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	var req service.CheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.cartService.Checkout(c.Request.Context(), identity.UserID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"message": "Order placed successfully",
		"order":   result.Order,
	})
}
