package orders

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// IDPrefix starts every allocated order id.
	IDPrefix = "ORD-"

	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 6

	// DefaultMaxAttempts caps order id draws.
	DefaultMaxAttempts = 10
)

// Finder is the read side of the repository that the allocator needs.
type Finder interface {
	FindOne(ctx context.Context, f Filter) (*Order, error)
}

// Allocator draws short, human-readable order ids that are not yet taken.
// The check is advisory: the conditional insert remains the authority, and the
// caller re-allocates on ErrConflict.
type Allocator struct {
	finder      Finder
	maxAttempts int
	draw        func() (string, error)
}

// NewAllocator returns an Allocator that gives up after maxAttempts collisions.
func NewAllocator(finder Finder, maxAttempts int) *Allocator {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{
		finder:      finder,
		maxAttempts: maxAttempts,
		draw:        randomID,
	}
}

// Allocate returns an order id that no stored order currently uses.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := a.draw()
		if err != nil {
			return "", fmt.Errorf("draw order id: %w", err)
		}
		existing, err := a.finder.FindOne(ctx, Filter{OrderID: id})
		if err != nil {
			return "", fmt.Errorf("check order id %s: %w", id, err)
		}
		if existing == nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrAllocationExhausted, a.maxAttempts)
}

// MaxAttempts reports the allocation cap.
func (a *Allocator) MaxAttempts() int { return a.maxAttempts }

func randomID() (string, error) {
	buf := make([]byte, idLength)
	n := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		k, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		buf[i] = idAlphabet[k.Int64()]
	}
	return IDPrefix + string(buf), nil
}
