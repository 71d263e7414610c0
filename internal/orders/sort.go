package orders

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

var sortKeys = map[string]func(a, b Order) int{
	"order_id":       func(a, b Order) int { return strings.Compare(a.OrderID, b.OrderID) },
	"customer_name":  func(a, b Order) int { return strings.Compare(a.CustomerName, b.CustomerName) },
	"customer_email": func(a, b Order) int { return strings.Compare(a.CustomerEmail, b.CustomerEmail) },
	"item_name":      func(a, b Order) int { return strings.Compare(a.ItemName, b.ItemName) },
	"price":          func(a, b Order) int { return cmp.Compare(a.Price, b.Price) },
	"qty":            func(a, b Order) int { return cmp.Compare(a.Qty, b.Qty) },
	"sku":            func(a, b Order) int { return strings.Compare(a.SKU, b.SKU) },
	"managed_by":     func(a, b Order) int { return strings.Compare(a.ManagedBy, b.ManagedBy) },
	"added_by":       func(a, b Order) int { return strings.Compare(a.AddedBy, b.AddedBy) },
	"status":         func(a, b Order) int { return strings.Compare(a.Status, b.Status) },
	"created_date":   func(a, b Order) int { return a.CreatedDate.Compare(b.CreatedDate) },
	"modified_date":  func(a, b Order) int { return compareTimePtr(a.ModifiedDate, b.ModifiedDate) },
}

// ValidateSort checks the sort field and direction.
func ValidateSort(s Sort) error {
	if _, ok := sortKeys[s.Field]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidSort, s.Field)
	}
	if s.Direction != Ascending && s.Direction != Descending {
		return fmt.Errorf("%w: direction must be 1 or -1, got %d", ErrInvalidSort, s.Direction)
	}
	return nil
}

// SortOrders sorts list in place. Ties keep order_id ascending so pages are stable.
func SortOrders(list []Order, s Sort) error {
	if err := ValidateSort(s); err != nil {
		return err
	}
	less := sortKeys[s.Field]
	slices.SortStableFunc(list, func(a, b Order) int {
		c := less(a, b)
		if s.Direction == Descending {
			c = -c
		}
		if c == 0 {
			return strings.Compare(a.OrderID, b.OrderID)
		}
		return c
	})
	return nil
}

// Page returns list[skip:skip+limit]; limit 0 means no upper bound.
func Page(list []Order, skip, limit int) []Order {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(list) {
		return []Order{}
	}
	end := len(list)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return list[skip:end]
}

// Matches reports whether o satisfies f.
func (f Filter) Matches(o Order) bool {
	if f.OrderID != "" && o.OrderID != f.OrderID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.ManagedBy != "" && o.ManagedBy != f.ManagedBy {
		return false
	}
	return true
}

// nil sorts before any timestamp
func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}
