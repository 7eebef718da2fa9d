package types

import (
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"John@Example.COM", "john@example.com"},
		{"  jane@example.com  ", "jane@example.com"},
		{"\tMIXED@Case.Org\n", "mixed@case.org"},
		{"already@normal.io", "already@normal.io"},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.expected {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "user.name@shop.example.com", "x+tag@d.io"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("expected %q to be valid", e)
		}
	}

	invalid := []string{"", "no-at-sign", "@nodomain.com", "trailing@", "spaces in@addr.com", "user@nodot"}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("expected %q to be invalid", e)
		}
	}
}

func TestLatestActivity(t *testing.T) {
	t1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	c := CustomerRecord{
		Purchases: []PurchaseItem{{ProductID: "10", OrderedAt: t1}},
		Activity:  []ActivityEvent{{EventCode: EventProductViewed, OccurredAt: t2}},
	}
	if got := c.LatestActivity(); !got.Equal(t2) {
		t.Errorf("expected latest activity %v, got %v", t2, got)
	}

	empty := CustomerRecord{}
	if !empty.LatestActivity().IsZero() {
		t.Error("expected zero time for customer with no history")
	}
}
