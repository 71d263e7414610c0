package orders

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory DynamoDB good enough for the expressions the
// stores build: equality filters, SET updates and attribute_(not_)exists conditions.
// Items live in table -> pk -> item.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
	keys   map[string]string // table -> pk attribute

	pageSize      int  // >0 splits Scan results into pages
	contendOnce   bool // cancel the next transaction with TransactionConflict
	scanCalls     int
	transactCalls int
}

var equalityRe = regexp.MustCompile(`(#\w+) = (:\w+)`)

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
		keys:   map[string]string{"orders": "order_id", "items": "item_name"},
	}
}

func (m *mockDynamo) ensureTable(tbl string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[tbl]
}

func (m *mockDynamo) pk(tbl string, item map[string]types.AttributeValue) (string, error) {
	attr, ok := item[m.keys[tbl]].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("no primary key in item")
	}
	return attr.Value, nil
}

func (m *mockDynamo) checkCondition(cond *string, exists bool) error {
	if cond == nil {
		return nil
	}
	switch {
	case strings.Contains(*cond, "attribute_not_exists") && exists:
		return &types.ConditionalCheckFailedException{}
	case strings.Contains(*cond, "attribute_exists") && !strings.Contains(*cond, "attribute_not_exists") && !exists:
		return &types.ConditionalCheckFailedException{}
	}
	return nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := m.ensureTable(*params.TableName)
	pk, err := m.pk(*params.TableName, params.Item)
	if err != nil {
		return nil, err
	}
	_, exists := table[pk]
	if err := m.checkCondition(params.ConditionExpression, exists); err != nil {
		return nil, err
	}
	table[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := m.ensureTable(*params.TableName)
	pk, err := m.pk(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := table[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := m.ensureTable(*params.TableName)
	pk, err := m.pk(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := table[pk]
	if err := m.checkCondition(params.ConditionExpression, exists); err != nil {
		return nil, err
	}
	if !exists {
		item = copyItem(params.Key)
	}
	if params.UpdateExpression != nil {
		for _, match := range equalityRe.FindAllStringSubmatch(*params.UpdateExpression, -1) {
			item[params.ExpressionAttributeNames[match[1]]] = params.ExpressionAttributeValues[match[2]]
		}
	}
	table[pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := m.ensureTable(*params.TableName)
	pk, err := m.pk(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	_, exists := table[pk]
	if err := m.checkCondition(params.ConditionExpression, exists); err != nil {
		return nil, err
	}
	delete(table, pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++
	tblName := *params.TableName
	table := m.ensureTable(tblName)

	pks := make([]string, 0, len(table))
	for pk := range table {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	start := 0
	if len(params.ExclusiveStartKey) > 0 {
		after, err := m.pk(tblName, params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(pks, after) + 1
	}
	end := len(pks)
	out := &dyn.ScanOutput{}
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			m.keys[tblName]: &types.AttributeValueMemberS{Value: pks[end-1]},
		}
	}

	for _, pk := range pks[start:end] {
		item := table[pk]
		if !matchesFilter(item, params) {
			continue
		}
		out.Count++
		if params.Select != types.SelectCount {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	return out, nil
}

// TransactWriteItems applies every Put or none, reporting a reason per item when
// a condition fails, as DynamoDB does.
func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++
	if len(params.TransactItems) > 100 {
		return nil, errors.New("too many items in transaction")
	}
	if m.contendOnce {
		m.contendOnce = false
		reasons := make([]types.CancellationReason, len(params.TransactItems))
		for i := range reasons {
			reasons[i].Code = strPtr("TransactionConflict")
		}
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, ti := range params.TransactItems {
		reasons[i].Code = strPtr("None")
		table := m.ensureTable(*ti.Put.TableName)
		pk, err := m.pk(*ti.Put.TableName, ti.Put.Item)
		if err != nil {
			return nil, err
		}
		_, exists := table[pk]
		if m.checkCondition(ti.Put.ConditionExpression, exists) != nil {
			reasons[i].Code = strPtr("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	for _, ti := range params.TransactItems {
		pk, _ := m.pk(*ti.Put.TableName, ti.Put.Item)
		m.tables[*ti.Put.TableName][pk] = ti.Put.Item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func matchesFilter(item map[string]types.AttributeValue, params *dyn.ScanInput) bool {
	if params.FilterExpression == nil {
		return true
	}
	for _, match := range equalityRe.FindAllStringSubmatch(*params.FilterExpression, -1) {
		want, ok := params.ExpressionAttributeValues[match[2]].(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		got, ok := item[params.ExpressionAttributeNames[match[1]]].(*types.AttributeValueMemberS)
		if !ok || got.Value != want.Value {
			return false
		}
	}
	return true
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
