package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *mockDynamo) {
	mock := newMockDynamo()
	s := NewStore(mock, "orders")
	s.backoff = func(int) time.Duration { return 0 }
	return s, mock
}

func sampleOrder(id string, created time.Time) Order {
	return Order{
		OrderID:       id,
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		ItemName:      "Widget",
		Price:         12.5,
		Qty:           2,
		Status:        StatusPending,
		CreatedDate:   created,
	}
}

func TestStore_InsertOne_FindOne(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertOne(ctx, sampleOrder("ORD-AAAAAA", created)))

	got, err := s.FindOne(ctx, Filter{OrderID: "ORD-AAAAAA"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "ada@example.com", got.CustomerEmail)
	require.True(t, got.CreatedDate.Equal(created))
	require.Nil(t, got.ModifiedDate)

	missing, err := s.FindOne(ctx, Filter{OrderID: "ORD-ZZZZZZ"})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestStore_InsertOne_Conflict(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	o := sampleOrder("ORD-DUP001", time.Now().UTC())

	require.NoError(t, s.InsertOne(ctx, o))
	err := s.InsertOne(ctx, o)
	require.ErrorIs(t, err, ErrConflict)
}

func TestStore_FindOne_ByStatusScan(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	now := time.Now().UTC()

	a := sampleOrder("ORD-A00001", now)
	b := sampleOrder("ORD-B00001", now)
	b.Status = StatusShipped
	require.NoError(t, s.InsertOne(ctx, a))
	require.NoError(t, s.InsertOne(ctx, b))

	got, err := s.FindOne(ctx, Filter{Status: StatusShipped})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "ORD-B00001", got.OrderID)

	// id lookup still honours the other filter fields
	got, err = s.FindOne(ctx, Filter{OrderID: "ORD-A00001", Status: StatusShipped})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStore_Find_FilterSortPage(t *testing.T) {
	s, mock := newTestStore()
	mock.pageSize = 2
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		o := sampleOrder(fmt.Sprintf("ORD-00000%d", i), base.Add(time.Duration(i)*time.Hour))
		if i%2 == 0 {
			o.ManagedBy = "team-a"
		}
		require.NoError(t, s.InsertOne(ctx, o))
	}

	all, err := s.Find(ctx, Filter{}, DefaultSort, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "ORD-000004", all[0].OrderID)
	require.Equal(t, "ORD-000000", all[4].OrderID)
	require.Greater(t, mock.scanCalls, 1, "expected the scan to follow LastEvaluatedKey")

	teamA, err := s.Find(ctx, Filter{ManagedBy: "team-a"}, Sort{Field: "created_date", Direction: Ascending}, 1, 1)
	require.NoError(t, err)
	require.Len(t, teamA, 1)
	require.Equal(t, "ORD-000002", teamA[0].OrderID)

	_, err = s.Find(ctx, Filter{}, Sort{Field: "password", Direction: Ascending}, 0, 0)
	require.ErrorIs(t, err, ErrInvalidSort)
}

func TestStore_Count(t *testing.T) {
	s, mock := newTestStore()
	mock.pageSize = 2
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		o := sampleOrder(fmt.Sprintf("ORD-C0000%d", i), time.Now().UTC())
		if i < 3 {
			o.Status = StatusDelivered
		}
		require.NoError(t, s.InsertOne(ctx, o))
	}

	n, err := s.Count(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = s.Count(ctx, Filter{Status: StatusDelivered})
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStore_UpdateOne(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	created := time.Date(2024, 5, 5, 5, 5, 5, 0, time.UTC)
	require.NoError(t, s.InsertOne(ctx, sampleOrder("ORD-UPD001", created)))

	status := StatusShipped
	modified := created.Add(time.Hour)
	n, err := s.UpdateOne(ctx, "ORD-UPD001", Patch{Status: &status, ModifiedDate: modified})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.FindOne(ctx, Filter{OrderID: "ORD-UPD001"})
	require.NoError(t, err)
	require.Equal(t, StatusShipped, got.Status)
	require.Equal(t, "Ada", got.CustomerName)
	require.True(t, got.CreatedDate.Equal(created))
	require.NotNil(t, got.ModifiedDate)
	require.True(t, got.ModifiedDate.Equal(modified))

	n, err = s.UpdateOne(ctx, "ORD-NOPE00", Patch{Status: &status, ModifiedDate: modified})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStore_DeleteOne(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.InsertOne(ctx, sampleOrder("ORD-DEL001", time.Now().UTC())))

	n, err := s.DeleteOne(ctx, "ORD-DEL001")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.DeleteOne(ctx, "ORD-DEL001")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStore_InsertMany_ChunksAndRetries(t *testing.T) {
	s, mock := newTestStore()
	mock.contendOnce = true
	ctx := context.Background()

	docs := make([]Order, 0, 130)
	for i := 0; i < 130; i++ {
		docs = append(docs, sampleOrder(fmt.Sprintf("ORD-M%05d", i), time.Now().UTC()))
	}

	n, err := s.InsertMany(ctx, docs)
	require.NoError(t, err)
	require.Equal(t, 130, n)
	// two chunks plus one retry of the contended transaction
	require.Equal(t, 3, mock.transactCalls)

	count, err := s.Count(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 130, count)
}

func TestStore_InsertMany_KeepsExistingOrders(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	existing := sampleOrder("ORD-TAKEN1", created)
	existing.CustomerEmail = "first@example.com"
	existing.Status = StatusShipped
	require.NoError(t, s.InsertOne(ctx, existing))

	docs := []Order{
		sampleOrder("ORD-NEW001", time.Now().UTC()),
		sampleOrder("ORD-TAKEN1", time.Now().UTC()),
		sampleOrder("ORD-NEW002", time.Now().UTC()),
	}
	n, err := s.InsertMany(ctx, docs)
	require.ErrorIs(t, err, ErrConflict)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, []string{"ORD-TAKEN1"}, ce.IDs)
	require.Equal(t, 2, n)

	got, err := s.FindOne(ctx, Filter{OrderID: "ORD-TAKEN1"})
	require.NoError(t, err)
	require.Equal(t, "first@example.com", got.CustomerEmail)
	require.Equal(t, StatusShipped, got.Status)
	require.True(t, created.Equal(got.CreatedDate))

	count, err := s.Count(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

type failingTransact struct {
	*mockDynamo
	calls int
}

func (f *failingTransact) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("throttled")
	}
	return f.mockDynamo.TransactWriteItems(ctx, params, optFns...)
}

func TestStore_InsertMany_PartialFailure(t *testing.T) {
	mock := &failingTransact{mockDynamo: newMockDynamo()}
	s := NewStore(mock, "orders")
	ctx := context.Background()

	docs := make([]Order, 0, 140)
	for i := 0; i < 140; i++ {
		docs = append(docs, sampleOrder(fmt.Sprintf("ORD-P%05d", i), time.Now().UTC()))
	}

	n, err := s.InsertMany(ctx, docs)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConflict)
	require.Equal(t, 100, n)

	count, err := s.Count(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 100, count)
}
