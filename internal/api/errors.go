package api

import (
	"errors"
	"net/http"
	"strings"

	"grocery-service/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps the error taxonomy onto HTTP statuses. Anything unmapped is logged and
// answered with a generic message.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		notFound     *models.ProductNotFoundError
		insufficient *models.InsufficientStockError
	)

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusBadRequest, gin.H{"message": notFound.Error()})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, gin.H{"message": insufficient.Error()})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": message(err, models.ErrValidation)})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": message(err, models.ErrNotFound)})
	case errors.Is(err, models.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"message": message(err, models.ErrAccessDenied)})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": message(err, models.ErrConflict)})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

// message drops the sentinel prefix added by "%w: detail" wrapping
func message(err, sentinel error) string {
	msg := err.Error()
	if trimmed := strings.TrimPrefix(msg, sentinel.Error()+": "); trimmed != "" {
		return trimmed
	}
	return msg
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}

// notFound answers ids that cannot exist, such as a malformed UUID
func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"message": msg})
}
