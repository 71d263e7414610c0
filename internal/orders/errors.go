package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced order or item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert collides with an existing order_id.
	ErrConflict = errors.New("order_id already exists")

	// ErrAllocationExhausted is returned when no free order id was drawn within the attempt cap.
	ErrAllocationExhausted = errors.New("order id allocation exhausted")

	// ErrInvalidSort is returned for a sort field that is not an order attribute.
	ErrInvalidSort = errors.New("invalid sort field")
)

// ConflictError reports the order ids a bulk insert skipped because they were
// already stored. It matches ErrConflict under errors.Is.
type ConflictError struct {
	IDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d order ids already exist: %s", len(e.IDs), strings.Join(e.IDs, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
