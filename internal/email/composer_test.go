package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recomail/internal/types"
)

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := NewComposer(ComposerConfig{
		StoreName: "Silk Road Emporium",
		StoreURL:  "https://shop.example.com",
		FromName:  "Your Store Team",
	})
	require.NoError(t, err)
	return c
}

func successSet() types.RecommendationSet {
	return types.RecommendationSet{
		ID:           "set-1",
		CustomerID:   "7",
		CustomerName: "John",
		Email:        "john@example.com",
		Status:       types.GenerationSuccess,
		Items: []types.RecommendedItem{
			{ProductID: "11", Name: "Walnut Desk", Price: "189.00",
				URL: "https://shop.example.com/?p=11", Rank: 1,
				Rationale: "Pairs well with the chair you bought."},
		},
	}
}

func TestComposeSuccess(t *testing.T) {
	msg, err := newTestComposer(t).Compose(successSet())
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, "john@example.com", msg.Recipient)
	assert.Equal(t, "Products we think you'll love, John!", msg.Subject)
	assert.Equal(t, "set-1", msg.ReferenceID)
	assert.Contains(t, msg.BodyHTML, "Walnut Desk")
	assert.Contains(t, msg.BodyHTML, "189.00")
	assert.Contains(t, msg.BodyText, "Walnut Desk")
	assert.Contains(t, msg.BodyText, "https://shop.example.com/?p=11")
}

func TestComposeSkipsNonSuccess(t *testing.T) {
	composer := newTestComposer(t)

	for _, status := range []types.GenerationStatus{types.GenerationFailed, types.GenerationSkipped} {
		set := successSet()
		set.Status = status
		msg, err := composer.Compose(set)
		require.NoError(t, err)
		assert.Nil(t, msg, "status %s must not produce an email", status)
	}

	empty := successSet()
	empty.Items = nil
	msg, err := composer.Compose(empty)
	require.NoError(t, err)
	assert.Nil(t, msg, "an empty item list must not produce an email")
}

func TestComposeIsDeterministic(t *testing.T) {
	composer := newTestComposer(t)
	set := successSet()

	first, err := composer.Compose(set)
	require.NoError(t, err)
	second, err := composer.Compose(set)
	require.NoError(t, err)

	assert.Equal(t, first.Subject, second.Subject)
	assert.Equal(t, first.BodyHTML, second.BodyHTML)
	assert.Equal(t, first.BodyText, second.BodyText)
}

func TestComposeEscapesAIProvidedText(t *testing.T) {
	set := successSet()
	set.Items[0].Rationale = `<script>alert("x")</script> & more`

	msg, err := newTestComposer(t).Compose(set)
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.NotContains(t, msg.BodyHTML, "<script>")
	assert.Contains(t, msg.BodyHTML, "&lt;script&gt;")
}

func TestComposeFallsBackToGenericSalutation(t *testing.T) {
	set := successSet()
	set.CustomerName = ""

	msg, err := newTestComposer(t).Compose(set)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg.Subject, "Products we think you'll love, Valued Customer"))
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"john@example.com", "j***@example.com"},
		{"a@b.co", "a***@b.co"},
		{"@example.com", "***@example.com"},
		{"not-an-email", "***"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.expected {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}
