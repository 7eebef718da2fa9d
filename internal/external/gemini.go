package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recomail/internal/types"
)

// geminiAPIBase is the default Generative Language API base URL.
// Overridable in tests via GeminiClientConfig.BaseURL.
const geminiAPIBase = "https://generativelanguage.googleapis.com"

// GeminiClientConfig holds the configuration for creating a GeminiClient.
type GeminiClientConfig struct {
	APIKey     types.SecretString
	Model      string // e.g. "gemini-pro"
	BaseURL    string // Override for testing; defaults to geminiAPIBase
	MaxRetries int
	Logger     *slog.Logger
}

// geminiRequest is the generateContent request envelope.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse is the subset of the generateContent response we consume.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GeminiClient implements RecommendationProvider against the Generative
// Language API through BaseClient, so every call inherits the platform's
// circuit breaker, retry-with-jitter, and error mapping. The model is asked
// to pick from an explicit candidate list and reply with a JSON array; the
// engine still validates every returned ID against the catalog.
type GeminiClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	model   string
	baseURL string
	logger  *slog.Logger
}

// NewGeminiClient creates a GeminiClient. The httpClient timeout bounds each
// individual attempt; the per-customer deadline is carried by the context.
func NewGeminiClient(httpClient *http.Client, cfg GeminiClientConfig) *GeminiClient {
	base := NewBaseClient(
		httpClient,
		"gemini",
		RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			MinWait:    1 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"RecommendationMailer/1.0",
	)
	return newGeminiClient(base, cfg)
}

// NewGeminiClientWithBase creates a GeminiClient with a pre-configured
// BaseClient. Useful in tests to disable sleeps or control retry behavior.
func NewGeminiClientWithBase(base *BaseClient, cfg GeminiClientConfig) *GeminiClient {
	return newGeminiClient(base, cfg)
}

func newGeminiClient(base *BaseClient, cfg GeminiClientConfig) *GeminiClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiAPIBase
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-pro"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GeminiClient{
		base:    base,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Recommend sends the customer context to the model and parses the returned
// recommendation list.
//
// Error classification:
//   - deadline exceeded            -> recommendation_timeout (retryable upstream caller-side)
//   - 429 / 5xx after retries      -> upstream codes from BaseClient
//   - 400/403 (malformed, bad key) -> recommendation_request_rejected (terminal)
//   - unparseable model output     -> recommendation_request_rejected (terminal)
func (g *GeminiClient) Recommend(ctx context.Context, req RecommendationRequest) (*RecommendationResponse, error) {
	prompt := buildPrompt(req)

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal provider request", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build provider request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey.Unmask())

	resp, err := g.base.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewAppError(types.ErrCodeRecommendationTimeout,
				"provider call timed out", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, types.NewAppErrorWithDetails(types.ErrCodeRecommendationRejected,
			fmt.Sprintf("provider rejected the request with status %d", resp.StatusCode),
			nil, map[string]any{"body": string(body)})
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, types.NewAppError(types.ErrCodeRecommendationRejected,
			"failed to decode provider response", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, types.NewAppError(types.ErrCodeRecommendationRejected,
			"provider returned no candidates", nil)
	}

	items, err := parseRecommendationText(decoded.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}

	return &RecommendationResponse{Items: items, Model: g.model}, nil
}

// buildPrompt renders the instruction the model receives: the customer's
// recent history, the candidate set it may choose from, and the required
// JSON output shape.
func buildPrompt(req RecommendationRequest) string {
	var b strings.Builder

	name := req.CustomerName
	if name == "" {
		name = "a returning customer"
	}

	fmt.Fprintf(&b, "You are recommending products for %s based on their recent store history.\n\n", name)

	b.WriteString("Recent history (most recent first):\n")
	for _, h := range req.History {
		fmt.Fprintf(&b, "- [%s] %s (product_id=%s, %s)\n",
			h.Source, h.Name, h.ProductID, h.SeenAt.Format("2006-01-02"))
	}

	b.WriteString("\nCandidate products (recommend ONLY from this list):\n")
	for _, c := range req.Candidates {
		fmt.Fprintf(&b, "- product_id=%s: %s (price %s)\n", c.ProductID, c.Name, c.Price)
	}

	fmt.Fprintf(&b, "\nPick up to %d candidates this customer is most likely to buy next. ", req.MaxItems)
	b.WriteString("For each, write one friendly sentence explaining why it fits their history. ")
	b.WriteString(`Respond with ONLY a JSON array in this exact shape: ` +
		`[{"product_id": "<id>", "reason": "<sentence>"}]`)

	return b.String()
}

// parseRecommendationText extracts the JSON array from the model's reply,
// tolerating markdown code fences and surrounding prose.
func parseRecommendationText(text string) ([]ProviderItem, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, types.NewAppError(types.ErrCodeRecommendationRejected,
			"provider response contains no JSON array", nil)
	}

	var items []ProviderItem
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, types.NewAppError(types.ErrCodeRecommendationRejected,
			"provider response is not valid recommendation JSON", err)
	}

	return items, nil
}
