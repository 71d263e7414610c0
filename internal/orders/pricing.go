package orders

import (
	"context"
	"fmt"
)

// ItemFinder looks up catalog items by name.
type ItemFinder interface {
	FindByName(ctx context.Context, name string) (*Item, error)
}

// PriceResolver supplies the catalog price for orders submitted without one.
type PriceResolver struct {
	items ItemFinder
}

// NewPriceResolver creates a PriceResolver over items.
func NewPriceResolver(items ItemFinder) *PriceResolver {
	return &PriceResolver{items: items}
}

// Resolve returns the price of the first item named itemName, rounded to cents.
// ErrNotFound is returned when no item matches or the item has no price.
func (r *PriceResolver) Resolve(ctx context.Context, itemName string) (float64, error) {
	it, err := r.items.FindByName(ctx, itemName)
	if err != nil {
		return 0, fmt.Errorf("lookup item %q: %w", itemName, err)
	}
	if it == nil || !it.Price.Valid {
		return 0, fmt.Errorf("item %q not found or price missing: %w", itemName, ErrNotFound)
	}
	price, _ := it.Price.Round(2).Float64()
	return price, nil
}
