package store

import (
	"context"
	"sort"
	"time"

	"recomail/internal/types"
)

// CombinedRepository produces the flattened order/activity record stream
// consumed by the CSV exporter: one row per (email, product, timestamp)
// with a type discriminator of "order" or "view".
type CombinedRepository struct {
	customers *CustomerRepository
}

// NewCombinedRepository creates a CombinedRepository on top of an existing
// CustomerRepository so both share the same queries and table prefix.
func NewCombinedRepository(customers *CustomerRepository) *CombinedRepository {
	return &CombinedRepository{customers: customers}
}

// FetchCombinedRecords returns order and activity rows since the given time,
// newest first.
func (r *CombinedRepository) FetchCombinedRecords(ctx context.Context, since time.Time) ([]types.CombinedRecord, error) {
	orders, err := r.customers.fetchOrders(ctx, since)
	if err != nil {
		return nil, err
	}
	items, err := r.customers.fetchOrderItems(ctx, orderIDs(orders))
	if err != nil {
		return nil, err
	}
	activity, err := r.customers.fetchActivity(ctx, since)
	if err != nil {
		return nil, err
	}

	var records []types.CombinedRecord
	for _, o := range orders {
		for _, item := range items[o.orderID] {
			records = append(records, types.CombinedRecord{
				Email:       types.NormalizeEmail(o.email),
				ProductName: item.ProductName,
				Timestamp:   o.orderDate,
				Type:        "order",
			})
		}
	}
	for _, a := range activity {
		records = append(records, types.CombinedRecord{
			Email:       types.NormalizeEmail(a.email),
			ProductName: a.productName,
			Timestamp:   a.occurredAt,
			Type:        "view",
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	return records, nil
}
