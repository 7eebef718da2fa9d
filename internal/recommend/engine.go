// Package recommend implements the recommendation engine: it builds a
// bounded context payload from a customer's purchase and activity history,
// invokes the generative-AI provider, and validates the provider's output
// against the product catalog.
//
// Failures are strictly per-customer. Recommend never returns an error;
// every outcome is encoded in the RecommendationSet status so one bad
// customer can never abort the batch.
package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"recomail/internal/external"
	"recomail/internal/types"
)

// EngineConfig holds the engine tunables.
type EngineConfig struct {
	// HistoryLimit bounds the number of recent items in the provider context.
	HistoryLimit int

	// MaxItems caps the recommendations requested per customer.
	MaxItems int

	// RequestTimeout bounds each provider call, including internal retries.
	RequestTimeout time.Duration
}

// Engine produces one RecommendationSet per customer.
type Engine struct {
	provider external.RecommendationProvider
	cfg      EngineConfig
	logger   types.Logger
}

// NewEngine creates an Engine.
func NewEngine(provider external.RecommendationProvider, cfg EngineConfig, logger types.Logger) *Engine {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Engine{provider: provider, cfg: cfg, logger: logger}
}

// Recommend generates recommendations for one customer. The returned set is
// always usable: status success with at least one validated item, failed
// with the reason code, or skipped when the customer has no history to work
// from.
func (e *Engine) Recommend(ctx context.Context, customer types.CustomerRecord, catalog map[string]types.CatalogProduct) types.RecommendationSet {
	set := types.RecommendationSet{
		ID:           uuid.NewString(),
		CustomerID:   customer.CustomerID,
		CustomerName: customer.FirstName,
		Email:        customer.Email,
		GeneratedAt:  time.Now().UTC(),
	}

	history := buildHistory(customer, e.cfg.HistoryLimit)
	if len(history) == 0 {
		set.Status = types.GenerationSkipped
		set.FailureReason = "no_history"
		return set
	}

	candidates := buildCandidates(catalog, history, e.cfg.MaxItems*4)
	if len(candidates) == 0 {
		set.Status = types.GenerationSkipped
		set.FailureReason = "empty_catalog"
		return set
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	resp, err := e.provider.Recommend(callCtx, external.RecommendationRequest{
		CustomerName: customer.FirstName,
		History:      history,
		Candidates:   candidates,
		MaxItems:     e.cfg.MaxItems,
	})
	if err != nil {
		set.Status = types.GenerationFailed
		set.FailureReason = string(types.CodeOf(err))
		e.logger.Warn("recommendation generation failed",
			"customer_id", customer.CustomerID,
			"reason", set.FailureReason,
			"error", err.Error(),
		)
		return set
	}

	set.Items = e.validate(resp.Items, catalog, customer)
	if len(set.Items) == 0 {
		set.Status = types.GenerationFailed
		set.FailureReason = string(types.ErrCodeRecommendationInvalid)
		return set
	}

	set.Status = types.GenerationSuccess
	return set
}

// validate keeps provider items that reference a known catalog product and
// were not already purchased, enriching them with catalog fields. Unknown
// identifiers are dropped, never surfaced to the customer.
func (e *Engine) validate(items []external.ProviderItem, catalog map[string]types.CatalogProduct, customer types.CustomerRecord) []types.RecommendedItem {
	owned := make(map[string]bool, len(customer.Purchases))
	for _, p := range customer.Purchases {
		owned[p.ProductID] = true
	}

	var out []types.RecommendedItem
	seen := make(map[string]bool)
	dropped := 0

	for _, item := range items {
		product, known := catalog[item.ProductID]
		if !known {
			dropped++
			continue
		}
		if owned[item.ProductID] || seen[item.ProductID] || len(out) >= e.cfg.MaxItems {
			continue
		}
		seen[item.ProductID] = true
		out = append(out, types.RecommendedItem{
			ProductID: product.ProductID,
			Name:      product.Name,
			Price:     product.Price,
			URL:       product.URL,
			Rank:      len(out) + 1,
			Rationale: item.Rationale,
		})
	}

	if dropped > 0 {
		e.logger.Warn("dropped recommendations with unknown catalog identifiers",
			"customer_id", customer.CustomerID,
			"dropped", dropped,
		)
	}

	return out
}

// buildHistory merges purchases and views into one bounded list, most
// recent first.
func buildHistory(customer types.CustomerRecord, limit int) []external.PromptProduct {
	history := make([]external.PromptProduct, 0, len(customer.Purchases)+len(customer.Activity))

	for _, p := range customer.Purchases {
		history = append(history, external.PromptProduct{
			ProductID: p.ProductID,
			Name:      p.ProductName,
			Source:    "order",
			SeenAt:    p.OrderedAt,
		})
	}
	for _, a := range customer.Activity {
		history = append(history, external.PromptProduct{
			Name:   a.ProductName,
			Source: "view",
			SeenAt: a.OccurredAt,
		})
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].SeenAt.After(history[j].SeenAt)
	})
	if len(history) > limit {
		history = history[:limit]
	}
	return history
}

// buildCandidates selects catalog products the provider may choose from,
// excluding products already in the customer's bounded history. The set is
// sorted by ID for a deterministic prompt and capped to keep the payload
// small.
func buildCandidates(catalog map[string]types.CatalogProduct, history []external.PromptProduct, limit int) []external.CandidateProduct {
	inHistory := make(map[string]bool, len(history))
	for _, h := range history {
		if h.ProductID != "" {
			inHistory[h.ProductID] = true
		}
	}

	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		if !inHistory[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	candidates := make([]external.CandidateProduct, 0, len(ids))
	for _, id := range ids {
		p := catalog[id]
		candidates = append(candidates, external.CandidateProduct{
			ProductID: p.ProductID,
			Name:      p.Name,
			Price:     p.Price,
		})
	}
	return candidates
}
