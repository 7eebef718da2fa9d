package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recomail/internal/types"
)

func geminiTestRequest() RecommendationRequest {
	return RecommendationRequest{
		CustomerName: "John",
		History: []PromptProduct{
			{ProductID: "10", Name: "Oak Chair", Source: "order", SeenAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
		Candidates: []CandidateProduct{
			{ProductID: "11", Name: "Walnut Desk", Price: "189.00"},
			{ProductID: "12", Name: "Desk Lamp", Price: "24.50"},
		},
		MaxItems: 3,
	}
}

// newGeminiTestClient points a GeminiClient with no retry delays at srv.
func newGeminiTestClient(srv *httptest.Server, retries int) *GeminiClient {
	base := NewBaseClient(srv.Client(), "gemini-test",
		RetryPolicy{MaxRetries: retries, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond},
		"test/1.0", noSleep())
	return NewGeminiClientWithBase(base, GeminiClientConfig{
		APIKey:  "test-key",
		Model:   "gemini-pro",
		BaseURL: srv.URL,
	})
}

func geminiReply(text string) string {
	reply := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	}
	b, _ := json.Marshal(reply)
	return string(b)
}

func TestGeminiRecommendParsesItems(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Write([]byte(geminiReply(
			"Here you go:\n```json\n[{\"product_id\": \"11\", \"reason\": \"Pairs with the chair.\"}]\n```")))
	}))
	defer srv.Close()

	resp, err := newGeminiTestClient(srv, 0).Recommend(context.Background(), geminiTestRequest())
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/gemini-pro:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "11", resp.Items[0].ProductID)
	assert.Equal(t, "Pairs with the chair.", resp.Items[0].Rationale)
}

func TestGeminiRecommendRejectedOn400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newGeminiTestClient(srv, 3).Recommend(context.Background(), geminiTestRequest())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeRecommendationRejected, appErr.Code)
	assert.False(t, appErr.Code.IsRetryable(), "malformed requests must not be retried")
}

func TestGeminiRecommendRateLimited(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newGeminiTestClient(srv, 2).Recommend(context.Background(), geminiTestRequest())
	require.Error(t, err)

	assert.Equal(t, types.ErrCodeUpstreamRateLimited, types.CodeOf(err))
	assert.Equal(t, 3, attempts, "rate-limit errors are retried with backoff")
}

func TestGeminiRecommendUnparseableOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply("Sorry, I can't help with that.")))
	}))
	defer srv.Close()

	_, err := newGeminiTestClient(srv, 0).Recommend(context.Background(), geminiTestRequest())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeRecommendationRejected, types.CodeOf(err))
}

func TestGeminiRecommendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newGeminiTestClient(srv, 0).Recommend(ctx, geminiTestRequest())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeRecommendationTimeout, types.CodeOf(err))
}

func TestBuildPromptContainsCandidatesAndShape(t *testing.T) {
	prompt := buildPrompt(geminiTestRequest())

	assert.Contains(t, prompt, "John")
	assert.Contains(t, prompt, "product_id=11")
	assert.Contains(t, prompt, "Walnut Desk")
	assert.Contains(t, prompt, `[{"product_id": "<id>", "reason": "<sentence>"}]`)
}

func TestParseRecommendationText(t *testing.T) {
	items, err := parseRecommendationText(`prose [{"product_id": "1", "reason": "x"}, {"product_id": "2", "reason": "y"}] trailing`)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2", items[1].ProductID)

	_, err = parseRecommendationText("no array here")
	require.Error(t, err)
}
