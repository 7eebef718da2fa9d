package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recomail/internal/types"
)

var (
	june1 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	june5 = time.Date(2025, 6, 5, 9, 30, 0, 0, time.UTC)
)

func newCustomerRepo(db *mockDBTX) *CustomerRepository {
	return NewCustomerRepository(db, "wp_", testLogger{})
}

func TestFetchCustomersDeduplicatesByNormalizedEmail(t *testing.T) {
	db := &mockDBTX{}

	// Two orders for the same address in different case/whitespace forms,
	// most recent first as the query orders them.
	db.queue(&mockRows{data: [][]any{
		{int64(201), june5, "  John@Example.COM ", "John", "7"},
		{int64(200), june1, "john@example.com", "Johnny", "7"},
	}}, nil)
	db.queue(&mockRows{data: [][]any{
		{int64(201), "Walnut Desk", "11", "1"},
		{int64(200), "Oak Chair", "10", "2"},
	}}, nil)
	db.queue(&mockRows{}, nil) // no activity

	records, err := newCustomerRepo(db).FetchCustomers(context.Background(), june1.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1, "case/whitespace variants must collapse to one record")

	rec := records[0]
	assert.Equal(t, "john@example.com", rec.Email)
	assert.Equal(t, "John", rec.FirstName, "identity fields come from the most recent order")
	assert.Equal(t, "7", rec.CustomerID)
	require.Len(t, rec.Purchases, 2)

	// Purchases sorted most recent first with order dates stamped.
	assert.Equal(t, "11", rec.Purchases[0].ProductID)
	assert.Equal(t, june5, rec.Purchases[0].OrderedAt)
	assert.Equal(t, "10", rec.Purchases[1].ProductID)
	assert.Equal(t, 2, rec.Purchases[1].Quantity)
}

func TestFetchCustomersSkipsInvalidEmails(t *testing.T) {
	db := &mockDBTX{}
	db.queue(&mockRows{data: [][]any{
		{int64(300), june1, "not-an-address", "Ghost", nil},
		{int64(301), june1, "real@example.com", "Real", nil},
	}}, nil)
	db.queue(&mockRows{data: [][]any{
		{int64(301), "Oak Chair", "10", "1"},
	}}, nil)
	db.queue(&mockRows{}, nil)

	records, err := newCustomerRepo(db).FetchCustomers(context.Background(), june1.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "real@example.com", records[0].Email)
}

func TestFetchCustomersMergesActivity(t *testing.T) {
	db := &mockDBTX{}
	db.queue(&mockRows{}, nil) // no orders
	// Order-items query is skipped when there are no orders.
	db.queue(&mockRows{data: [][]any{
		{int64(42), "viewer@example.com", float64(june5.Unix()), "Walnut Desk"},
	}}, nil)

	records, err := newCustomerRepo(db).FetchCustomers(context.Background(), june1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "viewer@example.com", rec.Email)
	assert.Equal(t, "42", rec.CustomerID)
	require.Len(t, rec.Activity, 1)
	assert.Equal(t, types.EventProductViewed, rec.Activity[0].EventCode)
	assert.Equal(t, "Walnut Desk", rec.Activity[0].ProductName)
	assert.Equal(t, june5, rec.Activity[0].OccurredAt)
}

func TestFetchCustomersQueryFailureIsFatal(t *testing.T) {
	db := &mockDBTX{}
	db.queue(nil, errors.New("connection reset by peer"))

	_, err := newCustomerRepo(db).FetchCustomers(context.Background(), june1)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeDataSourceQuery, appErr.Code)
	assert.True(t, appErr.Code.IsFatal())
}

func TestFetchCustomersUsesTablePrefix(t *testing.T) {
	db := &mockDBTX{}
	db.queue(&mockRows{}, nil)
	db.queue(&mockRows{}, nil)

	repo := NewCustomerRepository(db, "kdf_", testLogger{})
	_, err := repo.FetchCustomers(context.Background(), june1)
	require.NoError(t, err)

	require.NotEmpty(t, db.calls)
	assert.Contains(t, db.calls[0], "kdf_posts")
	assert.Contains(t, db.calls[0], "kdf_postmeta")
}

func TestKnownProducts(t *testing.T) {
	db := &mockDBTX{}
	db.queue(&mockRows{data: [][]any{
		{int64(10), "Oak Chair", "https://shop.example.com/?p=10", "49.99"},
		{int64(11), "Walnut Desk", "https://shop.example.com/?p=11", "189.00"},
	}}, nil)

	catalog, err := NewCatalogRepository(db, "wp_", testLogger{}).KnownProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 2)

	chair := catalog["10"]
	assert.Equal(t, "Oak Chair", chair.Name)
	assert.Equal(t, "49.99", chair.Price)
	assert.Equal(t, "https://shop.example.com/?p=10", chair.URL)
}

func TestFetchCombinedRecords(t *testing.T) {
	db := &mockDBTX{}
	db.queue(&mockRows{data: [][]any{
		{int64(200), june1, "john@example.com", "John", nil},
	}}, nil)
	db.queue(&mockRows{data: [][]any{
		{int64(200), "Oak Chair", "10", "1"},
	}}, nil)
	db.queue(&mockRows{data: [][]any{
		{int64(42), "viewer@example.com", float64(june5.Unix()), "Walnut Desk"},
	}}, nil)

	combined := NewCombinedRepository(newCustomerRepo(db))
	records, err := combined.FetchCombinedRecords(context.Background(), june1.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first: the view on June 5 precedes the order on June 1.
	assert.Equal(t, "view", records[0].Type)
	assert.Equal(t, "viewer@example.com", records[0].Email)
	assert.Equal(t, "order", records[1].Type)
	assert.Equal(t, "Oak Chair", records[1].ProductName)
}
