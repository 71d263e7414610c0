package orders

import "time"

// Order statuses. Status is a label: any of these may follow any other.
const (
	StatusPending   = "Pending"
	StatusShipped   = "Shipped"
	StatusDelivered = "Delivered"
	StatusCanceled  = "Canceled"
)

// Statuses lists the accepted status values.
var Statuses = []string{StatusPending, StatusShipped, StatusDelivered, StatusCanceled}

// ValidStatus reports whether s is one of Statuses.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Order represents the item stored in the orders table.
type Order struct {
	OrderID       string     `json:"order_id" dynamodbav:"order_id"` // PK
	CustomerName  string     `json:"customer_name,omitempty" dynamodbav:"customer_name,omitempty"`
	CustomerEmail string     `json:"customer_email" dynamodbav:"customer_email" validate:"required"`
	ItemName      string     `json:"item_name" dynamodbav:"item_name" validate:"required"`
	Price         float64    `json:"price" dynamodbav:"price" validate:"gte=0"`
	Qty           int        `json:"qty" dynamodbav:"qty"`
	SKU           string     `json:"sku,omitempty" dynamodbav:"sku,omitempty"`
	ManagedBy     string     `json:"managed_by,omitempty" dynamodbav:"managed_by,omitempty"`
	AddedBy       string     `json:"added_by,omitempty" dynamodbav:"added_by,omitempty"`
	Status        string     `json:"status" dynamodbav:"status" validate:"omitempty,oneof=Pending Shipped Delivered Canceled"`
	CreatedDate   time.Time  `json:"created_date" dynamodbav:"created_date"`
	ModifiedDate  *time.Time `json:"modified_date,omitempty" dynamodbav:"modified_date,omitempty"`
}

// Filter selects orders. Empty fields match everything.
type Filter struct {
	OrderID   string
	Status    string
	ManagedBy string
}

// Sort directions, matching the query-string convention (1 / -1).
const (
	Ascending  = 1
	Descending = -1
)

// Sort orders a result set by one Order field.
type Sort struct {
	Field     string
	Direction int
}

// DefaultSort is newest first.
var DefaultSort = Sort{Field: "created_date", Direction: Descending}

// Patch carries the fields an update sets. Nil fields are left untouched;
// order_id and created_date are not patchable.
type Patch struct {
	CustomerName  *string
	CustomerEmail *string
	ItemName      *string
	Price         *float64
	Qty           *int
	SKU           *string
	ManagedBy     *string
	AddedBy       *string
	Status        *string
	ModifiedDate  time.Time
}

// fields returns the attribute name/value pairs the patch sets, in a stable order.
func (p Patch) fields() []patchField {
	var out []patchField
	add := func(name string, set bool, v any) {
		if set {
			out = append(out, patchField{name: name, value: v})
		}
	}
	add("customer_name", p.CustomerName != nil, deref(p.CustomerName))
	add("customer_email", p.CustomerEmail != nil, deref(p.CustomerEmail))
	add("item_name", p.ItemName != nil, deref(p.ItemName))
	if p.Price != nil {
		add("price", true, *p.Price)
	}
	if p.Qty != nil {
		add("qty", true, *p.Qty)
	}
	add("sku", p.SKU != nil, deref(p.SKU))
	add("managed_by", p.ManagedBy != nil, deref(p.ManagedBy))
	add("added_by", p.AddedBy != nil, deref(p.AddedBy))
	add("status", p.Status != nil, deref(p.Status))
	add("modified_date", !p.ModifiedDate.IsZero(), p.ModifiedDate)
	return out
}

// Apply returns a copy of o with the patch applied.
func (p Patch) Apply(o Order) Order {
	if p.CustomerName != nil {
		o.CustomerName = *p.CustomerName
	}
	if p.CustomerEmail != nil {
		o.CustomerEmail = *p.CustomerEmail
	}
	if p.ItemName != nil {
		o.ItemName = *p.ItemName
	}
	if p.Price != nil {
		o.Price = *p.Price
	}
	if p.Qty != nil {
		o.Qty = *p.Qty
	}
	if p.SKU != nil {
		o.SKU = *p.SKU
	}
	if p.ManagedBy != nil {
		o.ManagedBy = *p.ManagedBy
	}
	if p.AddedBy != nil {
		o.AddedBy = *p.AddedBy
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if !p.ModifiedDate.IsZero() {
		md := p.ModifiedDate
		o.ModifiedDate = &md
	}
	return o
}

type patchField struct {
	name  string
	value any
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
