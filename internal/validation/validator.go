package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is a list of field problems. It renders as a single message.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(parts, "; ")
}

// New returns a configured validator. Field names in errors use the json tag,
// so they match the keys callers send.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(updateOrderStructValidation, UpdateOrderRequest{})
	return v
}

// Struct validates s and returns FieldErrors for rule violations.
func Struct(v *validatorv10.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := make(FieldErrors, 0, len(ve))
	for _, fe := range ve {
		out = append(out, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return "must be >= " + fe.Param()
	case "min":
		return "must not be empty"
	case "immutable":
		return "cannot be changed"
	default:
		return "failed " + fe.Tag()
	}
}

// updateOrderStructValidation rejects updates that try to move an order to a
// different id.
func updateOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateOrderRequest)
	if req.OrderID != nil && req.pathID != "" && *req.OrderID != req.pathID {
		sl.ReportError(req.OrderID, "order_id", "OrderID", "immutable", "")
	}
}
