package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderdesk/internal/idempotency"
	"github.com/imrishuroy/go-orderdesk/internal/importer"
	"github.com/imrishuroy/go-orderdesk/internal/logging"
	"github.com/imrishuroy/go-orderdesk/internal/orders"
	"github.com/imrishuroy/go-orderdesk/internal/service"
	"github.com/imrishuroy/go-orderdesk/internal/validation"
)

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Service *service.OrderService

	// Idempotency, when set, honours the Idempotency-Key header on create.
	Idempotency idempotency.Keeper

	Validate      *validatorv10.Validate
	MaxUploadSize int64
}

type ordersHandler struct {
	svc       *service.OrderService
	keeper    idempotency.Keeper
	v         *validatorv10.Validate
	maxUpload int64
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &ordersHandler{
		svc:       cfg.Service,
		keeper:    cfg.Idempotency,
		v:         cfg.Validate,
		maxUpload: cfg.MaxUploadSize,
	}
	if h.v == nil {
		h.v = validation.New()
	}
	if h.maxUpload <= 0 {
		h.maxUpload = importer.DefaultMaxFileSize
	}

	g := r.Group("/orders")
	g.POST("/create_order", h.create)
	g.GET("/list_orders", h.list)
	g.GET("/get_all_orders", h.listAll)
	g.GET("/get_items", h.items)
	g.POST("/upload_csv", h.upload)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)

	r.GET("/export", h.export)
}

func (h *ordersHandler) create(c *gin.Context) {
	ctx := c.Request.Context()
	log := logging.FromContext(ctx)

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	idempKey := c.GetHeader("Idempotency-Key")
	claimed := false
	if idempKey != "" && h.keeper != nil {
		var rec *idempotency.Record
		claimed, rec, err = h.keeper.Claim(ctx, idempKey, idempotency.HashRequest(raw))
		if errors.Is(err, idempotency.ErrKeyReused) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused"})
			return
		}
		if err != nil {
			writeError(c, fmt.Errorf("claim idempotency key: %w", err))
			return
		}
		if !claimed {
			replay(c, rec)
			return
		}
	}

	res, err := h.svc.Create(ctx, req.Order())
	if err != nil {
		if claimed {
			if mErr := h.keeper.MarkFailed(ctx, idempKey, err.Error()); mErr != nil {
				log.Warn("mark idempotency key failed", zap.String("key", idempKey), zap.Error(mErr))
			}
		}
		writeError(c, err)
		return
	}

	body := gin.H{"message": "Order created successfully", "order_id": res.Order.OrderID}
	if len(res.Warnings) > 0 {
		body["warnings"] = res.Warnings
	}
	if claimed {
		stored, _ := json.Marshal(body)
		if err := h.keeper.MarkDone(ctx, idempKey, res.Order.OrderID, string(stored), http.StatusOK); err != nil {
			log.Warn("mark idempotency key done", zap.String("key", idempKey), zap.Error(err))
		}
	}

	c.Header("Location", "/orders/"+res.Order.OrderID)
	c.JSON(http.StatusOK, body)
}

// replay answers a repeated create from the stored idempotency record.
func replay(c *gin.Context, rec *idempotency.Record) {
	c.Header("Idempotent-Replayed", "true")
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Order created successfully", "order_id": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

func (h *ordersHandler) update(c *gin.Context) {
	id := c.Param("id")

	var req validation.UpdateOrderRequest
	req.ForOrder(id)
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	if err := h.svc.Update(c.Request.Context(), id, req.Patch(time.Now().UTC())); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order updated successfully"})
}

func (h *ordersHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted successfully"})
}

func (h *ordersHandler) list(c *gin.Context) {
	page, ok := intQuery(c, "page", 0)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	srt, ok := sortQuery(c)
	if !ok {
		return
	}

	res, err := h.svc.List(c.Request.Context(), service.ListQuery{
		Page:   page,
		Limit:  limit,
		Filter: filterQuery(c),
		Sort:   srt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ordersHandler) listAll(c *gin.Context) {
	srt, ok := sortQuery(c)
	if !ok {
		return
	}
	list, err := h.svc.ListAll(c.Request.Context(), filterQuery(c), srt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *ordersHandler) items(c *gin.Context) {
	items, err := h.svc.Items(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": items})
}

func (h *ordersHandler) upload(c *gin.Context) {
	// leave room for the multipart envelope around the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, importer.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_file", "msg": "no file provided"})
		return
	}
	if err := importer.CheckSize(header.Size, h.maxUpload); err != nil {
		writeError(c, err)
		return
	}
	if _, err := importer.DetectFormat(header.Filename); err != nil {
		writeError(c, err)
		return
	}

	f, err := header.Open()
	if err != nil {
		writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	res, err := h.svc.BulkImport(c.Request.Context(), data, header.Filename)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":              "File processed successfully",
		"valid_orders_count":   len(res.Valid),
		"invalid_orders_count": len(res.Invalid),
		"invalid_orders":       res.Invalid,
	})
}

func (h *ordersHandler) export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.svc.Export(c.Request.Context(), &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=orders.csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// intQuery reads an optional integer query parameter; it writes a 400 and
// returns false when the value is not a number.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badQuery(c, name, "must be an integer")
		return 0, false
	}
	return n, true
}

func sortQuery(c *gin.Context) (orders.Sort, bool) {
	dir, ok := intQuery(c, "sort_order", orders.DefaultSort.Direction)
	if !ok {
		return orders.Sort{}, false
	}
	field := c.Query("sort_by")
	if field == "" {
		field = orders.DefaultSort.Field
	}
	return orders.Sort{Field: field, Direction: dir}, true
}

func filterQuery(c *gin.Context) orders.Filter {
	return orders.Filter{
		Status:    c.Query("status"),
		ManagedBy: c.Query("managed_by"),
	}
}
