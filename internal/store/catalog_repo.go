package store

import (
	"context"
	"fmt"
	"strconv"

	"recomail/internal/types"
)

// CatalogRepository reads the published product catalog. The recommendation
// engine validates provider output against this set: items referencing
// unknown product IDs are dropped.
type CatalogRepository struct {
	db     DBTX
	prefix string
	logger types.Logger
}

// NewCatalogRepository creates a CatalogRepository.
func NewCatalogRepository(db DBTX, prefix string, logger types.Logger) *CatalogRepository {
	return &CatalogRepository{db: db, prefix: prefix, logger: logger}
}

// KnownProducts returns all published products keyed by product ID.
func (r *CatalogRepository) KnownProducts(ctx context.Context) (map[string]types.CatalogProduct, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.post_title, p.guid,
			COALESCE(MAX(pm.meta_value) FILTER (WHERE pm.meta_key = '_price'), '') AS price
		FROM %[1]sposts p
		LEFT JOIN %[1]spostmeta pm ON pm.post_id = p.id
		WHERE p.post_type = 'product'
		  AND p.post_status = 'publish'
		GROUP BY p.id, p.post_title, p.guid`, r.prefix)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, queryError("product catalog", err)
	}
	defer rows.Close()

	catalog := make(map[string]types.CatalogProduct)
	for rows.Next() {
		var (
			id    int64
			title string
			guid  string
			price string
		)
		if err := rows.Scan(&id, &title, &guid, &price); err != nil {
			return nil, queryError("product catalog", err)
		}

		productID := strconv.FormatInt(id, 10)
		catalog[productID] = types.CatalogProduct{
			ProductID: productID,
			Name:      title,
			Price:     price,
			URL:       guid,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("product catalog", err)
	}

	r.logger.Info("loaded product catalog", "products", len(catalog))
	return catalog, nil
}
