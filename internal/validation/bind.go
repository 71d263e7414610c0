package validation

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// Keys that `out` has no json field for are rejected, so server-owned fields
// such as created_date cannot be slipped in.
// If any step fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindBodyWith(out, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}

	var body []byte
	if cached, ok := c.Get(gin.BodyBytesKey); ok {
		body, _ = cached.([]byte)
	}
	fields := UnknownFields(body, out)

	if err := Struct(v, out); err != nil {
		var fe FieldErrors
		if !errors.As(err, &fe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed"})
			return err
		}
		fields = append(fields, fe...)
	}
	if len(fields) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": fields,
		})
		return fields
	}
	return nil
}

// UnknownFields lists, sorted, the top-level keys of a JSON object that out's
// struct type has no json field for. Bodies that are not objects, and targets
// that are not structs, yield nil.
func UnknownFields(body []byte, out any) FieldErrors {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil
	}
	known := jsonFields(reflect.TypeOf(out))
	if known == nil {
		return nil
	}

	var names []string
	for k := range keys {
		if !known[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	var fe FieldErrors
	for _, k := range names {
		fe = append(fe, FieldError{Field: k, Message: "unknown field"})
	}
	return fe
}

func jsonFields(t reflect.Type) map[string]bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	known := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		known[name] = true
	}
	return known
}
