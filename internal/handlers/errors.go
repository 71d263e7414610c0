package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderdesk/internal/importer"
	"github.com/imrishuroy/go-orderdesk/internal/logging"
	"github.com/imrishuroy/go-orderdesk/internal/orders"
	"github.com/imrishuroy/go-orderdesk/internal/validation"
)

// writeError maps a service error onto a status and a stable error code.
// Internal detail is logged, never returned.
func writeError(c *gin.Context, err error) {
	var fe validation.FieldErrors
	switch {
	case errors.As(err, &fe):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": fe})
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "msg": notFoundMessage(c)})
	case errors.Is(err, orders.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "msg": "order_id already exists"})
	case errors.Is(err, orders.ErrAllocationExhausted):
		logging.FromContext(c.Request.Context()).Error("order id allocation exhausted", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "allocation_exhausted", "msg": "could not allocate an order id, retry later"})
	case errors.Is(err, orders.ErrInvalidSort):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sort", "msg": err.Error()})
	case errors.Is(err, importer.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_format", "msg": "Only .csv and .xlsx files are allowed"})
	case errors.Is(err, importer.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
	default:
		logging.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func notFoundMessage(c *gin.Context) string {
	if c.Request.Method == http.MethodPost {
		return "Item not found or price missing"
	}
	return "Order not found"
}

func badQuery(c *gin.Context, param, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  "invalid_query",
		"fields": validation.FieldErrors{{Field: param, Message: msg}},
	})
}
