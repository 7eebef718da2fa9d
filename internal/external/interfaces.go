// Package external provides the anti-corruption layer between the pipeline's
// domain logic and third-party APIs. Outbound HTTP calls are routed through
// the BaseClient, which enforces consistent resilience patterns: circuit
// breaking, retries with exponential backoff and jitter, and error mapping
// into the application taxonomy.
package external

import (
	"context"
	"time"
)

// PromptProduct is one bounded history item included in the provider context
// payload. Source distinguishes purchases from product views.
type PromptProduct struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Source    string    `json:"source"` // "order" or "view"
	SeenAt    time.Time `json:"seen_at"`
}

// CandidateProduct is a catalog product the provider may recommend. The
// provider must only reference these IDs; anything else is dropped during
// validation.
type CandidateProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
}

// RecommendationRequest is the provider-agnostic input: a customer's bounded
// history plus the candidate set to choose from.
type RecommendationRequest struct {
	CustomerName string
	History      []PromptProduct
	Candidates   []CandidateProduct
	MaxItems     int
}

// ProviderItem is one raw recommendation as returned by the provider, before
// catalog validation.
type ProviderItem struct {
	ProductID string `json:"product_id"`
	Rationale string `json:"reason"`
}

// RecommendationResponse is the provider-agnostic output.
type RecommendationResponse struct {
	Items []ProviderItem
	Model string
}

// RecommendationProvider abstracts the generative-AI service. The pipeline
// depends only on this request/response contract plus the timeout and
// retryable-vs-terminal error classification carried by AppError codes.
type RecommendationProvider interface {
	Recommend(ctx context.Context, req RecommendationRequest) (*RecommendationResponse, error)
}
