package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-orderdesk/internal/aws"
)

const (
	// transactWriteLimit is DynamoDB's per-call TransactWriteItems cap.
	transactWriteLimit = 100

	// maxTransactRetries bounds retries of transactions cancelled by contention.
	maxTransactRetries = 5
)

// Store encapsulates operations on the orders table. The table's primary key is
// order_id, and conditional writes make the table the authority on id uniqueness.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	backoff   func(attempt int) time.Duration
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 50 * time.Millisecond
		},
	}
}

// FindOne returns the first order matching f. Returns (nil, nil) if not found.
func (s *Store) FindOne(ctx context.Context, f Filter) (*Order, error) {
	if f.OrderID != "" {
		o, err := s.get(ctx, f.OrderID)
		if err != nil || o == nil {
			return nil, err
		}
		if !f.Matches(*o) {
			return nil, nil
		}
		return o, nil
	}

	var found *Order
	err := s.scan(ctx, f, false, func(page []map[string]types.AttributeValue) (bool, error) {
		if len(page) == 0 {
			return true, nil
		}
		var o Order
		if err := attributevalue.UnmarshalMap(page[0], &o); err != nil {
			return false, fmt.Errorf("unmarshal order: %w", err)
		}
		found = &o
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Find returns matching orders sorted by srt, skipping skip and returning at most
// limit (0 for all). DynamoDB has no server-side sort across a scan, so the full
// match set is read and ordered in process.
func (s *Store) Find(ctx context.Context, f Filter, srt Sort, skip, limit int) ([]Order, error) {
	if err := ValidateSort(srt); err != nil {
		return nil, err
	}

	var all []Order
	err := s.scan(ctx, f, false, func(page []map[string]types.AttributeValue) (bool, error) {
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page, &batch); err != nil {
			return false, fmt.Errorf("unmarshal orders: %w", err)
		}
		all = append(all, batch...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if err := SortOrders(all, srt); err != nil {
		return nil, err
	}
	return Page(all, skip, limit), nil
}

// Count returns the number of orders matching f.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	total := 0
	in, err := s.scanInput(f, true)
	if err != nil {
		return 0, err
	}
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("count scan: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// InsertOne writes o unless its order_id is taken, in which case ErrConflict is returned.
func (s *Store) InsertOne(ctx context.Context, o Order) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("order_id"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build condition: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("insert %s: %w", o.OrderID, ErrConflict)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// InsertMany writes docs in transactions of up to 100 orders, each put conditional
// on attribute_not_exists(order_id) so a stored order is never overwritten. Ids
// that are already taken are skipped and reported through a *ConflictError once
// the rest are written. It is not atomic across chunks: on any other error it
// returns the number of orders written so far, and earlier chunks stay written.
func (s *Store) InsertMany(ctx context.Context, docs []Order) (int, error) {
	cond := expression.AttributeNotExists(expression.Name("order_id"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return 0, fmt.Errorf("build condition: %w", err)
	}

	written := 0
	var conflicts []string
	for start := 0; start < len(docs); start += transactWriteLimit {
		end := min(start+transactWriteLimit, len(docs))
		n, taken, err := s.transactPut(ctx, docs[start:end], expr)
		written += n
		conflicts = append(conflicts, taken...)
		if err != nil {
			return written, err
		}
	}
	if len(conflicts) > 0 {
		return written, &ConflictError{IDs: conflicts}
	}
	return written, nil
}

// transactPut writes one chunk. When the transaction is cancelled by failed
// conditions the conflicting orders are dropped and the rest retried; other
// cancellations (contention, throttling) are retried with backoff.
func (s *Store) transactPut(ctx context.Context, chunk []Order, expr expression.Expression) (int, []string, error) {
	pending := chunk
	var conflicts []string
	for attempt := 0; len(pending) > 0; attempt++ {
		items := make([]types.TransactWriteItem, 0, len(pending))
		for _, o := range pending {
			item, err := attributevalue.MarshalMap(o)
			if err != nil {
				return 0, conflicts, fmt.Errorf("marshal order %s: %w", o.OrderID, err)
			}
			items = append(items, types.TransactWriteItem{Put: &types.Put{
				TableName:                &s.tableName,
				Item:                     item,
				ConditionExpression:      expr.Condition(),
				ExpressionAttributeNames: expr.Names(),
			}})
		}

		_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
		if err == nil {
			return len(pending), conflicts, nil
		}
		var tce *types.TransactionCanceledException
		if !errors.As(err, &tce) {
			return 0, conflicts, fmt.Errorf("transact write: %w", err)
		}

		var rest []Order
		for i, o := range pending {
			if i < len(tce.CancellationReasons) && awsValue(tce.CancellationReasons[i].Code) == "ConditionalCheckFailed" {
				conflicts = append(conflicts, o.OrderID)
				continue
			}
			rest = append(rest, o)
		}
		if len(rest) < len(pending) {
			pending = rest
			continue
		}

		if attempt >= maxTransactRetries {
			return 0, conflicts, fmt.Errorf("transact write: gave up after %d attempts: %w", attempt+1, err)
		}
		select {
		case <-ctx.Done():
			return 0, conflicts, ctx.Err()
		case <-time.After(s.backoff(attempt + 1)):
		}
	}
	return 0, conflicts, nil
}

// UpdateOne applies p to the order with orderID and returns the matched count (0 or 1).
func (s *Store) UpdateOne(ctx context.Context, orderID string, p Patch) (int, error) {
	fields := p.fields()
	if len(fields) == 0 {
		o, err := s.get(ctx, orderID)
		if err != nil || o == nil {
			return 0, err
		}
		return 1, nil
	}

	update := expression.Set(expression.Name(fields[0].name), expression.Value(fields[0].value))
	for _, f := range fields[1:] {
		update = update.Set(expression.Name(f.name), expression.Value(f.value))
	}
	cond := expression.AttributeExists(expression.Name("order_id"))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("update item: %w", err)
	}
	return 1, nil
}

// DeleteOne removes the order with orderID and returns the deleted count (0 or 1).
func (s *Store) DeleteOne(ctx context.Context, orderID string) (int, error) {
	cond := expression.AttributeExists(expression.Name("order_id"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return 0, fmt.Errorf("build condition: %w", err)
	}

	_, err = s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("delete item: %w", err)
	}
	return 1, nil
}

// get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// scan walks every page matching f, handing raw items to fn until it returns false.
func (s *Store) scan(ctx context.Context, f Filter, count bool, fn func([]map[string]types.AttributeValue) (bool, error)) error {
	in, err := s.scanInput(f, count)
	if err != nil {
		return err
	}
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		more, err := fn(out.Items)
		if err != nil {
			return err
		}
		if !more || len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *Store) scanInput(f Filter, count bool) (*dyn.ScanInput, error) {
	in := &dyn.ScanInput{TableName: &s.tableName}
	if count {
		in.Select = types.SelectCount
	}

	cond, ok := filterCondition(f)
	if !ok {
		return in, nil
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}
	in.FilterExpression = expr.Filter()
	in.ExpressionAttributeNames = expr.Names()
	in.ExpressionAttributeValues = expr.Values()
	return in, nil
}

// filterCondition turns f into an AND of equality tests; ok is false for an empty filter.
func filterCondition(f Filter) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	if f.OrderID != "" {
		conds = append(conds, expression.Name("order_id").Equal(expression.Value(f.OrderID)))
	}
	if f.Status != "" {
		conds = append(conds, expression.Name("status").Equal(expression.Value(f.Status)))
	}
	if f.ManagedBy != "" {
		conds = append(conds, expression.Name("managed_by").Equal(expression.Value(f.ManagedBy)))
	}

	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	default:
		return expression.And(conds[0], conds[1], conds[2:]...), true
	}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// isConditionFailed detects a failed ConditionExpression.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func awsBool(b bool) *bool { return &b }

func awsValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
