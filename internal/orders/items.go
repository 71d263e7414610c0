package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-orderdesk/internal/aws"
)

// Amount is a catalog price. The catalog holds prices either as numbers or as
// display strings such as "$1,250.00"; both decode to a decimal.
type Amount struct {
	decimal.Decimal
	Valid bool
}

// NewAmount returns a valid Amount.
func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d, Valid: true} }

// ParseAmount parses a number that may carry a currency symbol, spaces or
// thousands separators.
func ParseAmount(s string) (Amount, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', ',', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if cleaned == "" {
		return Amount{}, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Amount{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return NewAmount(d), nil
}

// UnmarshalDynamoDBAttributeValue accepts N, S and NULL attributes.
func (a *Amount) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		d, err := decimal.NewFromString(v.Value)
		if err != nil {
			return fmt.Errorf("parse price %q: %w", v.Value, err)
		}
		*a = NewAmount(d)
	case *types.AttributeValueMemberS:
		parsed, err := ParseAmount(v.Value)
		if err != nil {
			return err
		}
		*a = parsed
	case *types.AttributeValueMemberNULL:
		*a = Amount{}
	default:
		return fmt.Errorf("unsupported price attribute %T", av)
	}
	return nil
}

// MarshalDynamoDBAttributeValue writes the price as a number.
func (a Amount) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if !a.Valid {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberN{Value: a.Decimal.String()}, nil
}

// MarshalJSON writes the price as a JSON number, or null when unset.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON accepts a JSON number or string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = Amount{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		s = string(b)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Item is a catalog entry, used for price lookup.
type Item struct {
	ItemName      string     `json:"item_name" dynamodbav:"item_name"`
	Price         Amount     `json:"price" dynamodbav:"price"`
	SKU           string     `json:"sku,omitempty" dynamodbav:"sku,omitempty"`
	ItemInventory string     `json:"item_inventory,omitempty" dynamodbav:"item_inventory,omitempty"`
	CreatedDate   *time.Time `json:"created_date,omitempty" dynamodbav:"created_date,omitempty"`
}

// ItemStore reads the items table.
type ItemStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewItemStore creates an ItemStore.
func NewItemStore(client aws.DynamoDBAPI, tableName string) *ItemStore {
	return &ItemStore{client: client, tableName: tableName}
}

// FindByName returns the first item named name, projecting only its name and
// price. Returns (nil, nil) if there is none.
func (s *ItemStore) FindByName(ctx context.Context, name string) (*Item, error) {
	filter := expression.Name("item_name").Equal(expression.Value(name))
	proj := expression.NamesList(expression.Name("item_name"), expression.Name("price"))
	expr, err := expression.NewBuilder().WithFilter(filter).WithProjection(proj).Build()
	if err != nil {
		return nil, fmt.Errorf("build item filter: %w", err)
	}

	in := &dyn.ScanInput{
		TableName:                 &s.tableName,
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan items: %w", err)
		}
		if len(out.Items) > 0 {
			var it Item
			if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
				return nil, fmt.Errorf("unmarshal item: %w", err)
			}
			return &it, nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// List returns every catalog item.
func (s *ItemStore) List(ctx context.Context) ([]Item, error) {
	in := &dyn.ScanInput{TableName: &s.tableName}
	items := []Item{}
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan items: %w", err)
		}
		var page []Item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		items = append(items, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// MemItems is an in-process catalog for STORAGE_BACKEND=memory and tests.
type MemItems struct {
	mu    sync.RWMutex
	items []Item
}

// NewMemItems returns a catalog seeded with items.
func NewMemItems(items ...Item) *MemItems {
	return &MemItems{items: append([]Item(nil), items...)}
}

// Add appends an item to the catalog.
func (m *MemItems) Add(it Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, it)
}

func (m *MemItems) FindByName(_ context.Context, name string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.ItemName == name {
			found := it
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemItems) List(context.Context) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Item{}, m.items...), nil
}
