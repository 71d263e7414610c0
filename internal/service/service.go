// Package service orchestrates the order lifecycle: id allocation, price
// resolution, persistence, invoice rendering, notification and bulk import.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderdesk/internal/logging"
	"github.com/imrishuroy/go-orderdesk/internal/notify"
	"github.com/imrishuroy/go-orderdesk/internal/orders"
	"github.com/imrishuroy/go-orderdesk/internal/validation"
)

var tracer = otel.Tracer("github.com/imrishuroy/go-orderdesk/internal/service")

// Warnings reported when a post-persistence step fails. The order stays created.
const (
	WarnInvoiceFailed = "invoice generation failed"
	WarnEmailFailed   = "invoice email failed"
	WarnEmailDisabled = "invoice email skipped: notifications disabled"
	WarnEventFailed   = "order event not published"
)

// Repository persists orders. orders.Store and orders.MemStore implement it.
type Repository interface {
	FindOne(ctx context.Context, f orders.Filter) (*orders.Order, error)
	Find(ctx context.Context, f orders.Filter, srt orders.Sort, skip, limit int) ([]orders.Order, error)
	Count(ctx context.Context, f orders.Filter) (int, error)
	InsertOne(ctx context.Context, o orders.Order) error
	InsertMany(ctx context.Context, docs []orders.Order) (int, error)
	UpdateOne(ctx context.Context, orderID string, p orders.Patch) (int, error)
	DeleteOne(ctx context.Context, orderID string) (int, error)
}

// Catalog is the item lookup. orders.ItemStore and orders.MemItems implement it.
type Catalog interface {
	FindByName(ctx context.Context, name string) (*orders.Item, error)
	List(ctx context.Context) ([]orders.Item, error)
}

// InvoiceRenderer produces the invoice artifact for an order and returns its path.
type InvoiceRenderer interface {
	Render(ctx context.Context, o orders.Order) (string, error)
}

// Notifier delivers the invoice artifact to the customer.
type Notifier interface {
	Send(ctx context.Context, o orders.Order, artifactPath string) error
}

// EventPublisher announces lifecycle events. Failures never fail the operation.
type EventPublisher interface {
	OrderCreated(ctx context.Context, orderID string, warnings []string) error
	OrdersImported(ctx context.Context, valid, invalid int) error
}

// Deps wires an OrderService.
type Deps struct {
	Orders   Repository
	Items    Catalog
	Renderer InvoiceRenderer
	Notifier Notifier
	Events   EventPublisher // optional

	Validate      *validatorv10.Validate // defaults to validation.New()
	MaxIDAttempts int                    // defaults to orders.DefaultMaxAttempts
	Now           func() time.Time       // defaults to time.Now
}

// OrderService implements the order operations behind the HTTP surface.
type OrderService struct {
	repo     Repository
	items    Catalog
	alloc    *orders.Allocator
	prices   *orders.PriceResolver
	renderer InvoiceRenderer
	notifier Notifier
	events   EventPublisher
	validate *validatorv10.Validate
	now      func() time.Time
}

// New creates an OrderService.
func New(d Deps) *OrderService {
	s := &OrderService{
		repo:     d.Orders,
		items:    d.Items,
		alloc:    orders.NewAllocator(d.Orders, d.MaxIDAttempts),
		prices:   orders.NewPriceResolver(d.Items),
		renderer: d.Renderer,
		notifier: d.Notifier,
		events:   d.Events,
		validate: d.Validate,
		now:      d.Now,
	}
	if s.validate == nil {
		s.validate = validation.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.events == nil {
		s.events = noopEvents{}
	}
	return s
}

// CreateResult is the outcome of Create. Warnings lists side effects that failed
// after the order was stored.
type CreateResult struct {
	Order    orders.Order
	Warnings []string
}

// Create validates and stores one order, then renders its invoice and emails it.
//
// A missing order_id is allocated, and a missing (or zero) price is taken from
// the catalog; an unknown item aborts before anything is written. If the
// allocated id turns out to be taken at insert time a new one is drawn, up to
// the allocator's attempt cap. A caller-supplied id that is taken returns
// orders.ErrConflict.
func (s *OrderService) Create(ctx context.Context, o orders.Order) (CreateResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.Create")
	defer span.End()
	log := logging.FromContext(ctx)

	if err := validation.Struct(s.validate, o); err != nil {
		return CreateResult{}, fail(span, err)
	}

	supplied := o.OrderID != ""
	if !supplied {
		id, err := s.alloc.Allocate(ctx)
		if err != nil {
			return CreateResult{}, fail(span, err)
		}
		o.OrderID = id
	}

	if o.Price == 0 {
		price, err := s.prices.Resolve(ctx, o.ItemName)
		if err != nil {
			return CreateResult{}, fail(span, err)
		}
		o.Price = price
	}
	if o.Status == "" {
		o.Status = orders.StatusPending
	}
	o.CreatedDate = s.now().UTC()
	o.ModifiedDate = nil

	for attempt := 1; ; attempt++ {
		err := s.repo.InsertOne(ctx, o)
		if err == nil {
			break
		}
		if !errors.Is(err, orders.ErrConflict) || supplied {
			return CreateResult{}, fail(span, fmt.Errorf("insert order: %w", err))
		}
		if attempt >= s.alloc.MaxAttempts() {
			return CreateResult{}, fail(span, fmt.Errorf("%w: ids kept colliding at insert", orders.ErrAllocationExhausted))
		}
		log.Warn("allocated order id taken at insert, drawing another", zap.String("order_id", o.OrderID))
		id, err := s.alloc.Allocate(ctx)
		if err != nil {
			return CreateResult{}, fail(span, err)
		}
		o.OrderID = id
	}
	span.SetAttributes(attribute.String("order.id", o.OrderID))
	log = log.With(zap.String("order_id", o.OrderID))
	log.Info("order created")

	// the order is stored; a cancelled request must not cut the side effects short
	sideCtx := context.WithoutCancel(ctx)
	res := CreateResult{Order: o}

	path, err := s.renderer.Render(sideCtx, o)
	if err != nil {
		log.Warn("invoice rendering failed", zap.Error(err))
		res.Warnings = append(res.Warnings, WarnInvoiceFailed)
	} else if err := s.notifier.Send(sideCtx, o, path); err != nil {
		if errors.Is(err, notify.ErrDisabled) {
			log.Debug("invoice email skipped", zap.Error(err))
			res.Warnings = append(res.Warnings, WarnEmailDisabled)
		} else {
			log.Warn("invoice email failed", zap.Error(err))
			res.Warnings = append(res.Warnings, WarnEmailFailed)
		}
	}

	if err := s.events.OrderCreated(sideCtx, o.OrderID, res.Warnings); err != nil {
		log.Warn("publish order.created failed", zap.Error(err))
		res.Warnings = append(res.Warnings, WarnEventFailed)
	}
	if len(res.Warnings) > 0 {
		span.SetAttributes(attribute.StringSlice("order.warnings", res.Warnings))
	}
	return res, nil
}

// Update applies p to the order with id and stamps modified_date.
func (s *OrderService) Update(ctx context.Context, id string, p orders.Patch) error {
	ctx, span := tracer.Start(ctx, "OrderService.Update", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if p.Status != nil && !orders.ValidStatus(*p.Status) {
		return fail(span, validation.FieldErrors{{Field: "status", Message: "must be one of [Pending, Shipped, Delivered, Canceled]"}})
	}
	p.ModifiedDate = s.now().UTC()

	matched, err := s.repo.UpdateOne(ctx, id, p)
	if err != nil {
		return fail(span, fmt.Errorf("update order %s: %w", id, err))
	}
	if matched == 0 {
		return fail(span, fmt.Errorf("order %s: %w", id, orders.ErrNotFound))
	}
	logging.FromContext(ctx).Info("order updated", zap.String("order_id", id))
	return nil
}

// Delete removes the order with id.
func (s *OrderService) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "OrderService.Delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	deleted, err := s.repo.DeleteOne(ctx, id)
	if err != nil {
		return fail(span, fmt.Errorf("delete order %s: %w", id, err))
	}
	if deleted == 0 {
		return fail(span, fmt.Errorf("order %s: %w", id, orders.ErrNotFound))
	}
	logging.FromContext(ctx).Info("order deleted", zap.String("order_id", id))
	return nil
}

// Paging limits.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListQuery selects one page of orders.
type ListQuery struct {
	Page   int
	Limit  int
	Filter orders.Filter
	Sort   orders.Sort
}

// ListResult is one page plus the total number of matching orders.
type ListResult struct {
	Orders []orders.Order `json:"orders"`
	Total  int            `json:"total"`
}

// normalize applies the paging defaults and bounds.
func (q ListQuery) normalize() ListQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	switch {
	case q.Limit < 1:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	if q.Sort.Field == "" {
		q.Sort = orders.DefaultSort
	}
	return q
}

// List returns one page of orders. The page and the total are separate reads.
func (s *OrderService) List(ctx context.Context, q ListQuery) (ListResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.List")
	defer span.End()

	q = q.normalize()
	if err := orders.ValidateSort(q.Sort); err != nil {
		return ListResult{}, fail(span, err)
	}
	var page []orders.Order
	// a page whose offset does not fit in an int is past any stored order
	if q.Page-1 <= math.MaxInt/q.Limit {
		var err error
		page, err = s.repo.Find(ctx, q.Filter, q.Sort, (q.Page-1)*q.Limit, q.Limit)
		if err != nil {
			return ListResult{}, fail(span, fmt.Errorf("list orders: %w", err))
		}
	}
	total, err := s.repo.Count(ctx, q.Filter)
	if err != nil {
		return ListResult{}, fail(span, fmt.Errorf("count orders: %w", err))
	}
	return ListResult{Orders: nonNil(page), Total: total}, nil
}

// ListAll returns every matching order.
func (s *OrderService) ListAll(ctx context.Context, f orders.Filter, srt orders.Sort) ([]orders.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.ListAll")
	defer span.End()

	if srt.Field == "" {
		srt = orders.DefaultSort
	}
	list, err := s.repo.Find(ctx, f, srt, 0, 0)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list orders: %w", err))
	}
	return nonNil(list), nil
}

// Items returns the catalog.
func (s *OrderService) Items(ctx context.Context) ([]orders.Item, error) {
	ctx, span := tracer.Start(ctx, "OrderService.Items")
	defer span.End()

	items, err := s.items.List(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list items: %w", err))
	}
	if items == nil {
		items = []orders.Item{}
	}
	return items, nil
}

func nonNil(list []orders.Order) []orders.Order {
	if list == nil {
		return []orders.Order{}
	}
	return list
}

// fail records err on the span and returns it.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type noopEvents struct{}

func (noopEvents) OrderCreated(context.Context, string, []string) error { return nil }
func (noopEvents) OrdersImported(context.Context, int, int) error       { return nil }
