package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderdesk/internal/importer"
	"github.com/imrishuroy/go-orderdesk/internal/logging"
	"github.com/imrishuroy/go-orderdesk/internal/orders"
	"github.com/imrishuroy/go-orderdesk/internal/validation"
)

// RowFailure is a rejected import row with the reason.
type RowFailure struct {
	Row   importer.Row `json:"row"`
	Error string       `json:"error"`
}

// ImportResult reports every row of an import as either valid or invalid.
type ImportResult struct {
	Valid   []orders.Order
	Invalid []RowFailure
}

// BulkImport parses a CSV or XLSX upload and stores every row that validates.
//
// Rows are judged independently: a bad row is reported and never blocks the
// others. A row is also rejected when its order_id repeats an earlier row of the
// same file or an existing order, or when it has no price and its item has none
// in the catalog. Valid rows get ids and prices filled in and are written with
// conditional bulk inserts, so an order stored concurrently is never
// overwritten. Imported orders get no invoice or email.
func (s *OrderService) BulkImport(ctx context.Context, data []byte, filename string) (ImportResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.BulkImport")
	defer span.End()
	log := logging.FromContext(ctx).With(zap.String("filename", filename))

	rows, err := importer.Parse(data, filename)
	if err != nil {
		return ImportResult{}, fail(span, err)
	}

	res := ImportResult{Valid: []orders.Order{}, Invalid: []RowFailure{}}
	reject := func(row importer.Row, msg string) {
		res.Invalid = append(res.Invalid, RowFailure{Row: row, Error: msg})
	}
	now := s.now().UTC()
	taken := map[string]bool{} // ids used by accepted rows of this file
	var accepted []pendingRow  // parallel to res.Valid

	for _, row := range rows {
		o, err := validation.OrderFromRow(s.validate, row)
		if err != nil {
			var fe validation.FieldErrors
			if !errors.As(err, &fe) {
				return ImportResult{}, fail(span, err)
			}
			reject(row, fe.Error())
			continue
		}

		supplied := o.OrderID != ""
		if supplied {
			if taken[o.OrderID] {
				reject(row, "order_id: duplicate within file")
				continue
			}
			existing, err := s.repo.FindOne(ctx, orders.Filter{OrderID: o.OrderID})
			if err != nil {
				return ImportResult{}, fail(span, fmt.Errorf("check order id %s: %w", o.OrderID, err))
			}
			if existing != nil {
				reject(row, "order_id: already exists")
				continue
			}
		}

		if o.Price == 0 {
			price, err := s.prices.Resolve(ctx, o.ItemName)
			if errors.Is(err, orders.ErrNotFound) {
				reject(row, fmt.Sprintf("price: item %q not found or has no price", o.ItemName))
				continue
			}
			if err != nil {
				return ImportResult{}, fail(span, err)
			}
			o.Price = price
		}

		if o.OrderID == "" {
			id, err := s.allocateExcluding(ctx, taken)
			if err != nil {
				return ImportResult{}, fail(span, err)
			}
			o.OrderID = id
		}
		if o.Status == "" {
			o.Status = orders.StatusPending
		}
		o.CreatedDate = now
		o.ModifiedDate = nil

		taken[o.OrderID] = true
		res.Valid = append(res.Valid, o)
		accepted = append(accepted, pendingRow{row: row, supplied: supplied})
	}

	if len(res.Valid) > 0 {
		if err := s.insertImported(ctx, &res, accepted, taken); err != nil {
			return res, fail(span, err)
		}
	}
	span.SetAttributes(
		attribute.Int("import.rows", len(rows)),
		attribute.Int("import.valid", len(res.Valid)),
		attribute.Int("import.invalid", len(res.Invalid)),
	)
	log.Info("import processed", zap.Int("valid", len(res.Valid)), zap.Int("invalid", len(res.Invalid)))

	if err := s.events.OrdersImported(context.WithoutCancel(ctx), len(res.Valid), len(res.Invalid)); err != nil {
		log.Warn("publish orders.imported failed", zap.Error(err))
	}
	return res, nil
}

// pendingRow is the source of an accepted order awaiting insert.
type pendingRow struct {
	row      importer.Row
	supplied bool // order_id came from the file
}

// insertImported writes res.Valid. The store refuses ids taken since the rows
// were checked: a supplied id turns its row into a failure, an allocated one is
// redrawn and retried up to the allocator's attempt cap.
func (s *OrderService) insertImported(ctx context.Context, res *ImportResult, accepted []pendingRow, taken map[string]bool) error {
	log := logging.FromContext(ctx)
	rejected := make([]bool, len(res.Valid))
	pending := make([]int, len(res.Valid))
	for i := range pending {
		pending[i] = i
	}

	written := 0
	for attempt := 0; len(pending) > 0; attempt++ {
		docs := make([]orders.Order, len(pending))
		for j, i := range pending {
			docs[j] = res.Valid[i]
		}
		n, err := s.repo.InsertMany(ctx, docs)
		written += n
		var ce *orders.ConflictError
		if err != nil && !errors.As(err, &ce) {
			log.Error("bulk insert failed", zap.Int("written", written), zap.Int("valid", len(res.Valid)), zap.Error(err))
			return fmt.Errorf("bulk insert wrote %d of %d orders: %w", written, len(res.Valid), err)
		}

		conflicted := map[string]bool{}
		if ce != nil {
			for _, id := range ce.IDs {
				conflicted[id] = true
			}
		}
		var retry []int
		for _, i := range pending {
			switch {
			case !conflicted[res.Valid[i].OrderID]:
			case accepted[i].supplied:
				rejected[i] = true
			default:
				retry = append(retry, i)
			}
		}
		if len(retry) > 0 && attempt+1 >= s.alloc.MaxAttempts() {
			return fmt.Errorf("%w: allocated ids kept colliding at insert, wrote %d of %d orders",
				orders.ErrAllocationExhausted, written, len(res.Valid))
		}
		for _, i := range retry {
			log.Warn("allocated order id taken at insert, drawing another", zap.String("order_id", res.Valid[i].OrderID))
			id, err := s.allocateExcluding(ctx, taken)
			if err != nil {
				return err
			}
			taken[id] = true
			res.Valid[i].OrderID = id
		}
		pending = retry
	}

	valid := make([]orders.Order, 0, len(res.Valid))
	for i, o := range res.Valid {
		if rejected[i] {
			res.Invalid = append(res.Invalid, RowFailure{Row: accepted[i].row, Error: "order_id: already exists"})
			continue
		}
		valid = append(valid, o)
	}
	res.Valid = valid
	return nil
}

// allocateExcluding draws an id that is neither stored nor used earlier in the
// current import.
func (s *OrderService) allocateExcluding(ctx context.Context, taken map[string]bool) (string, error) {
	for attempt := 0; attempt < s.alloc.MaxAttempts(); attempt++ {
		id, err := s.alloc.Allocate(ctx)
		if err != nil {
			return "", err
		}
		if !taken[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: ids kept colliding within the import", orders.ErrAllocationExhausted)
}

var exportHeader = []string{
	"order_id", "customer_name", "customer_email", "item_name", "price", "qty",
	"sku", "managed_by", "added_by", "status", "created_date", "modified_date",
}

// Export writes every order as CSV, newest first.
func (s *OrderService) Export(ctx context.Context, w io.Writer) error {
	ctx, span := tracer.Start(ctx, "OrderService.Export")
	defer span.End()

	list, err := s.repo.Find(ctx, orders.Filter{}, orders.DefaultSort, 0, 0)
	if err != nil {
		return fail(span, fmt.Errorf("export orders: %w", err))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fail(span, err)
	}
	for _, o := range list {
		modified := ""
		if o.ModifiedDate != nil {
			modified = o.ModifiedDate.UTC().Format(time.RFC3339Nano)
		}
		record := []string{
			o.OrderID, o.CustomerName, o.CustomerEmail, o.ItemName,
			strconv.FormatFloat(o.Price, 'f', -1, 64), strconv.Itoa(o.Qty),
			o.SKU, o.ManagedBy, o.AddedBy, o.Status,
			o.CreatedDate.UTC().Format(time.RFC3339Nano), modified,
		}
		if err := cw.Write(record); err != nil {
			return fail(span, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fail(span, fmt.Errorf("write csv: %w", err))
	}
	span.SetAttributes(attribute.Int("export.rows", len(list)))
	return nil
}
