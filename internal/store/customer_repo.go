package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"recomail/internal/types"
)

// CustomerRepository reads order and activity history from the store
// database and assembles per-customer records.
//
// Deduplication happens here: records are keyed by normalized (lower-cased,
// trimmed) email address, and identity fields (name, customer ID) come from
// the most recent record when duplicates exist. Downstream stages can rely
// on at most one CustomerRecord per address.
type CustomerRepository struct {
	db     DBTX
	prefix string
	logger types.Logger
}

// NewCustomerRepository creates a CustomerRepository. prefix scopes all
// table names (e.g. "wp_").
func NewCustomerRepository(db DBTX, prefix string, logger types.Logger) *CustomerRepository {
	return &CustomerRepository{db: db, prefix: prefix, logger: logger}
}

// orderRow is one order header row before line items are attached.
type orderRow struct {
	orderID    int64
	orderDate  time.Time
	email      string
	firstName  string
	customerID string
}

// FetchCustomers returns one CustomerRecord per distinct normalized email
// address with order or activity history since the given time. The result
// is sorted by email for deterministic iteration.
//
// Any query failure is fatal for the run (no partial data is trustworthy)
// and is returned as a data source AppError.
func (r *CustomerRepository) FetchCustomers(ctx context.Context, since time.Time) ([]types.CustomerRecord, error) {
	orders, err := r.fetchOrders(ctx, since)
	if err != nil {
		return nil, err
	}

	items, err := r.fetchOrderItems(ctx, orderIDs(orders))
	if err != nil {
		return nil, err
	}

	activity, err := r.fetchActivity(ctx, since)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	byEmail := make(map[string]*types.CustomerRecord)
	skipped := 0

	for _, o := range orders {
		email := types.NormalizeEmail(o.email)
		if !types.IsValidEmail(email) {
			skipped++
			continue
		}

		rec, ok := byEmail[email]
		if !ok {
			rec = &types.CustomerRecord{Email: email, FetchedAt: now}
			byEmail[email] = rec
		}
		// Orders arrive most recent first, so the first order seen for an
		// address carries the winning identity fields.
		if rec.CustomerID == "" {
			rec.CustomerID = o.customerID
		}
		if rec.FirstName == "" {
			rec.FirstName = o.firstName
		}
		for _, item := range items[o.orderID] {
			item.OrderedAt = o.orderDate
			rec.Purchases = append(rec.Purchases, item)
		}
	}

	for _, a := range activity {
		email := types.NormalizeEmail(a.email)
		if !types.IsValidEmail(email) {
			skipped++
			continue
		}

		rec, ok := byEmail[email]
		if !ok {
			rec = &types.CustomerRecord{
				Email:      email,
				CustomerID: a.customerID,
				FetchedAt:  now,
			}
			byEmail[email] = rec
		}
		rec.Activity = append(rec.Activity, types.ActivityEvent{
			EventCode:   types.EventProductViewed,
			ProductName: a.productName,
			OccurredAt:  a.occurredAt,
		})
	}

	if skipped > 0 {
		r.logger.Warn("skipped records with invalid email addresses", "count", skipped)
	}

	records := make([]types.CustomerRecord, 0, len(byEmail))
	for _, rec := range byEmail {
		sort.Slice(rec.Purchases, func(i, j int) bool {
			return rec.Purchases[i].OrderedAt.After(rec.Purchases[j].OrderedAt)
		})
		sort.Slice(rec.Activity, func(i, j int) bool {
			return rec.Activity[i].OccurredAt.After(rec.Activity[j].OccurredAt)
		})
		if rec.CustomerID == "" {
			rec.CustomerID = rec.Email
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Email < records[j].Email })

	r.logger.Info("fetched customer records",
		"orders", len(orders),
		"activity_events", len(activity),
		"customers", len(records),
	)

	return records, nil
}

// fetchOrders reads order headers with billing identity pivoted out of the
// order meta table.
func (r *CustomerRepository) fetchOrders(ctx context.Context, since time.Time) ([]orderRow, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.post_date,
			MAX(pm.meta_value) FILTER (WHERE pm.meta_key = '_billing_email')      AS billing_email,
			MAX(pm.meta_value) FILTER (WHERE pm.meta_key = '_billing_first_name') AS billing_first_name,
			MAX(pm.meta_value) FILTER (WHERE pm.meta_key = '_customer_user')      AS customer_user
		FROM %[1]sposts p
		JOIN %[1]spostmeta pm ON pm.post_id = p.id
		WHERE p.post_type = 'shop_order'
		  AND p.post_date >= $1
		GROUP BY p.id, p.post_date
		ORDER BY p.post_date DESC`, r.prefix)

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, queryError("orders", err)
	}
	defer rows.Close()

	var orders []orderRow
	for rows.Next() {
		var (
			o          orderRow
			email      *string
			firstName  *string
			customerID *string
		)
		if err := rows.Scan(&o.orderID, &o.orderDate, &email, &firstName, &customerID); err != nil {
			return nil, queryError("orders", err)
		}
		if email == nil {
			continue
		}
		o.email = *email
		if firstName != nil {
			o.firstName = *firstName
		}
		if customerID != nil {
			o.customerID = *customerID
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("orders", err)
	}

	return orders, nil
}

// fetchOrderItems reads line items for the given orders in one query and
// returns them grouped by order ID.
func (r *CustomerRepository) fetchOrderItems(ctx context.Context, ids []int64) (map[int64][]types.PurchaseItem, error) {
	result := make(map[int64][]types.PurchaseItem)
	if len(ids) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`
		SELECT oi.order_id, oi.order_item_name,
			MAX(oim.meta_value) FILTER (WHERE oim.meta_key = '_product_id') AS product_id,
			MAX(oim.meta_value) FILTER (WHERE oim.meta_key = '_qty')        AS qty
		FROM %[1]swoocommerce_order_items oi
		JOIN %[1]swoocommerce_order_itemmeta oim ON oim.order_item_id = oi.order_item_id
		WHERE oi.order_id = ANY($1)
		  AND oi.order_item_type = 'line_item'
		GROUP BY oi.order_id, oi.order_item_id, oi.order_item_name`, r.prefix)

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, queryError("order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID   int64
			itemName  string
			productID *string
			qty       *string
		)
		if err := rows.Scan(&orderID, &itemName, &productID, &qty); err != nil {
			return nil, queryError("order items", err)
		}
		if productID == nil {
			continue
		}

		quantity := 1
		if qty != nil {
			if n, err := strconv.Atoi(*qty); err == nil && n > 0 {
				quantity = n
			}
		}

		// OrderedAt is stamped by the caller from the order header row.
		result[orderID] = append(result[orderID], types.PurchaseItem{
			ProductID:   *productID,
			ProductName: itemName,
			Quantity:    quantity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("order items", err)
	}

	return result, nil
}

// activityRow is one product-view event from the activity log.
type activityRow struct {
	email       string
	customerID  string
	productName string
	occurredAt  time.Time
}

// fetchActivity reads product-view events from the activity log joined to
// the users table, with the product title resolved from event metadata.
func (r *CustomerRepository) fetchActivity(ctx context.Context, since time.Time) ([]activityRow, error) {
	query := fmt.Sprintf(`
		SELECT u.id, u.user_email, o.created_on,
			COALESCE(m.value, '') AS product_name
		FROM %[1]swsal_occurrences o
		JOIN %[1]susers u ON u.id = o.user_id
		LEFT JOIN %[1]swsal_metadata m ON m.occurrence_id = o.id AND m.name = 'ProductTitle'
		WHERE o.alert_id = $1
		  AND o.created_on >= $2
		ORDER BY o.created_on DESC`, r.prefix)

	rows, err := r.db.Query(ctx, query, types.EventProductViewed, float64(since.Unix()))
	if err != nil {
		return nil, queryError("activity log", err)
	}
	defer rows.Close()

	var events []activityRow
	for rows.Next() {
		var (
			userID      int64
			email       string
			createdOn   float64 // epoch seconds, as stored by the activity log
			productName string
		)
		if err := rows.Scan(&userID, &email, &createdOn, &productName); err != nil {
			return nil, queryError("activity log", err)
		}
		events = append(events, activityRow{
			email:       email,
			customerID:  strconv.FormatInt(userID, 10),
			productName: productName,
			occurredAt:  time.Unix(int64(createdOn), 0).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("activity log", err)
	}

	return events, nil
}

func orderIDs(orders []orderRow) []int64 {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.orderID)
	}
	return ids
}

// queryError wraps a query failure as a fatal data source error.
func queryError(what string, err error) error {
	return types.NewAppError(types.ErrCodeDataSourceQuery,
		fmt.Sprintf("failed to fetch %s", what), err)
}
