package validation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-orderdesk/internal/orders"
)

// Columns accepted in an import row. created_date and modified_date are set by
// the server and rejected like any other unknown column.
var rowColumns = map[string]bool{
	"order_id":       true,
	"customer_name":  true,
	"customer_email": true,
	"item_name":      true,
	"price":          true,
	"qty":            true,
	"sku":            true,
	"managed_by":     true,
	"added_by":       true,
	"status":         true,
}

// OrderFromRow coerces one imported row into an order. Every problem in the row
// is reported in the returned FieldErrors. A zero Price or empty OrderID in the
// result means the value was absent and still has to be filled in.
func OrderFromRow(v *validatorv10.Validate, row map[string]any) (orders.Order, error) {
	var (
		o    orders.Order
		errs FieldErrors
	)
	fail := func(field, msg string) { errs = append(errs, FieldError{Field: field, Message: msg}) }

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !rowColumns[k] {
			fail(k, "unknown column")
		}
	}

	str := func(field string, dst *string) {
		switch val := row[field].(type) {
		case nil:
		case string:
			*dst = val
		default:
			fail(field, fmt.Sprintf("must be a string, got %T", val))
		}
	}
	str("order_id", &o.OrderID)
	str("customer_name", &o.CustomerName)
	str("customer_email", &o.CustomerEmail)
	str("item_name", &o.ItemName)
	str("sku", &o.SKU)
	str("managed_by", &o.ManagedBy)
	str("added_by", &o.AddedBy)
	str("status", &o.Status)

	if qty, ok, err := toInt(row["qty"]); err != nil {
		fail("qty", err.Error())
	} else if !ok {
		fail("qty", "is required")
	} else {
		o.Qty = qty
	}

	if price, err := toPrice(row["price"]); err != nil {
		fail("price", err.Error())
	} else {
		o.Price = price
	}

	if err := Struct(v, o); err != nil {
		if fe, ok := err.(FieldErrors); ok {
			errs = append(errs, dedupe(errs, fe)...)
		} else {
			return orders.Order{}, err
		}
	}

	if len(errs) > 0 {
		return orders.Order{}, errs
	}
	return o, nil
}

// toInt accepts integers, integral floats and integer strings. ok is false when
// the value is absent.
func toInt(v any) (int, bool, error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false, fmt.Errorf("must be an integer, got %v", n)
		}
		return int(n), true, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, fmt.Errorf("must be an integer, got %q", n)
		}
		return i, true, nil
	default:
		return 0, false, fmt.Errorf("must be an integer, got %T", v)
	}
}

// toPrice accepts numbers and numeric strings; absent and empty give 0.
func toPrice(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		a, err := orders.ParseAmount(n)
		if err != nil {
			return 0, fmt.Errorf("must be a number, got %q", n)
		}
		if !a.Valid {
			return 0, nil
		}
		f, _ := a.Float64()
		return f, nil
	default:
		return 0, fmt.Errorf("must be a number, got %T", v)
	}
}

// dedupe drops struct-rule errors for fields that already failed coercion.
func dedupe(have, more FieldErrors) FieldErrors {
	seen := map[string]bool{}
	for _, fe := range have {
		seen[fe.Field] = true
	}
	var out FieldErrors
	for _, fe := range more {
		if !seen[fe.Field] {
			out = append(out, fe)
		}
	}
	return out
}
