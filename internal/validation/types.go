package validation

import (
	"time"

	"github.com/imrishuroy/go-orderdesk/internal/orders"
)

// CreateOrderRequest is the payload for POST /orders/create_order.
type CreateOrderRequest struct {
	OrderID       string   `json:"order_id,omitempty"` // optional caller-chosen id
	CustomerName  string   `json:"customer_name,omitempty"`
	CustomerEmail string   `json:"customer_email" validate:"required"`
	ItemName      string   `json:"item_name" validate:"required"`
	Price         *float64 `json:"price,omitempty" validate:"omitempty,gte=0"` // nil or 0: resolved from the catalog
	Qty           *int     `json:"qty" validate:"required"`
	SKU           string   `json:"sku,omitempty"`
	ManagedBy     string   `json:"managed_by,omitempty"`
	AddedBy       string   `json:"added_by,omitempty"`
	Status        string   `json:"status,omitempty" validate:"omitempty,oneof=Pending Shipped Delivered Canceled"`
}

// Order converts the request into an unsaved order. A zero Price means the
// price still has to be resolved.
func (r CreateOrderRequest) Order() orders.Order {
	o := orders.Order{
		OrderID:       r.OrderID,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		ItemName:      r.ItemName,
		SKU:           r.SKU,
		ManagedBy:     r.ManagedBy,
		AddedBy:       r.AddedBy,
		Status:        r.Status,
	}
	if r.Price != nil {
		o.Price = *r.Price
	}
	if r.Qty != nil {
		o.Qty = *r.Qty
	}
	return o
}

// UpdateOrderRequest is the payload for PUT /orders/{id}. Only non-nil fields
// are applied. order_id may be echoed back but not changed; created_date and
// modified_date are server-owned and rejected by BindAndValidate as unknown.
type UpdateOrderRequest struct {
	OrderID       *string  `json:"order_id,omitempty"`
	CustomerName  *string  `json:"customer_name,omitempty"`
	CustomerEmail *string  `json:"customer_email,omitempty" validate:"omitempty,min=1"`
	ItemName      *string  `json:"item_name,omitempty" validate:"omitempty,min=1"`
	Price         *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Qty           *int     `json:"qty,omitempty"`
	SKU           *string  `json:"sku,omitempty"`
	ManagedBy     *string  `json:"managed_by,omitempty"`
	AddedBy       *string  `json:"added_by,omitempty"`
	Status        *string  `json:"status,omitempty" validate:"omitempty,oneof=Pending Shipped Delivered Canceled"`

	pathID string
}

// ForOrder binds the request to the order addressed by the URL so that a
// differing order_id in the body fails validation.
func (r *UpdateOrderRequest) ForOrder(id string) { r.pathID = id }

// Patch converts the request into a repository patch stamped with now.
func (r UpdateOrderRequest) Patch(now time.Time) orders.Patch {
	return orders.Patch{
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		ItemName:      r.ItemName,
		Price:         r.Price,
		Qty:           r.Qty,
		SKU:           r.SKU,
		ManagedBy:     r.ManagedBy,
		AddedBy:       r.AddedBy,
		Status:        r.Status,
		ModifiedDate:  now,
	}
}
