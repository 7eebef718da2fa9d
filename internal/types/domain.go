// Package types defines the domain model shared by every stage of the
// recommendation pipeline, the application error taxonomy, and the small
// cross-cutting interfaces (Logger) the stages depend on.
package types

import (
	"strings"
	"time"
)

// GenerationStatus is the outcome of a recommendation attempt for a single
// customer. Failures are encoded here rather than surfaced as errors so that
// one bad customer never aborts the batch.
type GenerationStatus string

const (
	GenerationSuccess GenerationStatus = "success"
	GenerationFailed  GenerationStatus = "failed"
	GenerationSkipped GenerationStatus = "skipped"
)

// DeliveryStatus is the terminal outcome of an email delivery attempt.
type DeliveryStatus string

const (
	// DeliveryStatusSent indicates the SMTP server accepted the message.
	DeliveryStatusSent DeliveryStatus = "sent"

	// DeliveryStatusFailed indicates transient failures exhausted the retry
	// budget.
	DeliveryStatusFailed DeliveryStatus = "failed"

	// DeliveryStatusPermanentlyFailed indicates the server rejected the
	// message in a way retrying cannot fix (bad mailbox, auth failure).
	// Recorded after exactly one attempt.
	DeliveryStatusPermanentlyFailed DeliveryStatus = "permanently_failed"
)

// Stage identifies a pipeline stage in per-customer log entries.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageRecommend Stage = "recommend"
	StageCompose   Stage = "compose"
	StageDeliver   Stage = "deliver"
	StageSummary   Stage = "summary"
)

// EventProductViewed is the activity-log alert code emitted when a visitor
// views a product page.
const EventProductViewed = 9073

// PurchaseItem is a single line item from a past order.
type PurchaseItem struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	OrderedAt   time.Time `json:"ordered_at"`
}

// ActivityEvent is a single site-activity record (currently product views).
type ActivityEvent struct {
	EventCode   int       `json:"event_code"`
	ProductName string    `json:"product_name"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CustomerRecord is one customer's identity plus purchase and activity
// history for a run. It is built once by the data source adapter and is
// immutable afterwards; the adapter guarantees Email is normalized and that
// at most one record exists per normalized address.
type CustomerRecord struct {
	CustomerID string          `json:"customer_id"`
	Email      string          `json:"email"`
	FirstName  string          `json:"first_name"`
	Purchases  []PurchaseItem  `json:"purchases"` // most recent first
	Activity   []ActivityEvent `json:"activity"`  // most recent first
	FetchedAt  time.Time       `json:"fetched_at"`
}

// LatestActivity returns the timestamp of the customer's most recent order
// or activity event, used to pick the winner when deduplicating records.
func (c CustomerRecord) LatestActivity() time.Time {
	var latest time.Time
	if len(c.Purchases) > 0 && c.Purchases[0].OrderedAt.After(latest) {
		latest = c.Purchases[0].OrderedAt
	}
	if len(c.Activity) > 0 && c.Activity[0].OccurredAt.After(latest) {
		latest = c.Activity[0].OccurredAt
	}
	return latest
}

// CatalogProduct is a product known to the store catalog. Recommendation
// validation drops any provider item whose ID is not present in the catalog.
type CatalogProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	URL       string `json:"url"`
}

// RecommendedItem is one validated recommendation with the provider's
// rationale text. Rank is 1-based in provider preference order.
type RecommendedItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	URL       string `json:"url"`
	Rank      int    `json:"rank"`
	Rationale string `json:"rationale"`
}

// RecommendationSet is the per-customer output of the recommendation engine.
// Exactly one set is produced per deduplicated customer per run.
type RecommendationSet struct {
	ID            string            `json:"id"`
	CustomerID    string            `json:"customer_id"`
	CustomerName  string            `json:"customer_name"`
	Email         string            `json:"email"`
	Items         []RecommendedItem `json:"items"`
	Status        GenerationStatus  `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// ComposedEmail is a rendered message ready for transmission. Ephemeral:
// produced by the composer immediately before the send.
type ComposedEmail struct {
	Recipient   string `json:"recipient"`
	Subject     string `json:"subject"`
	BodyHTML    string `json:"body_html"`
	BodyText    string `json:"body_text"`
	ReferenceID string `json:"reference_id"` // source RecommendationSet ID
}

// DeliveryResult records the terminal outcome of delivering one email.
type DeliveryResult struct {
	Recipient   string         `json:"recipient"`
	Attempts    int            `json:"attempts"`
	Status      DeliveryStatus `json:"status"`
	LastError   string         `json:"last_error,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// RunSummary aggregates the outcome counts for a full pipeline run.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Considered       int       `json:"considered"`
	Generated        int       `json:"generated"`
	FailedGeneration int       `json:"failed_generation"`
	Skipped          int       `json:"skipped"`
	Sent             int       `json:"sent"`
	FailedDelivery   int       `json:"failed_delivery"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// CombinedRecord is one row of the combined order/activity export.
type CombinedRecord struct {
	Email       string    `json:"email"`
	ProductName string    `json:"product_name"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"` // "order" or "view"
}

// NormalizeEmail lower-cases and trims an address. Deduplication and the
// at-most-one-send-per-address invariant both key on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail performs the minimal sanity check the pipeline needs before
// attempting a send: a non-empty local part and domain.
func IsValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\n") && strings.Contains(email[at+1:], ".")
}
