package api

import (
	"net/http"

	"grocery-service/internal/auth"
	"grocery-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// placeOrder handles order placement
func (h *Handler) placeOrder(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	req.UserID = identity.UserID

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.orderService.PlaceOrder(c.Request.Context(), &req)
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

// listMyOrders returns the caller's orders, newest first
func (h *Handler) listMyOrders(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	orders, err := h.orderService.GetOrdersByUser(c.Request.Context(), identity.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		notFound(c, "Order not found")
		return
	}

	order, err := h.orderService.GetOrderByID(c.Request.Context(), orderID, identity.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		notFound(c, "Order not found")
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Status is required")
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated",
		"order":   order,
	})
}
