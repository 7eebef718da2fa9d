package delivery

import (
	"context"
	"time"

	"recomail/internal/email"
	"recomail/internal/types"
)

// RetryPolicy defines the exponential backoff parameters for delivery
// retries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy matches typical submission-endpoint guidance: a
// short first pause with a doubling backoff capped at ten seconds.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     1 * time.Second,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
}

// Backoff computes the delay before the next retry attempt using
// exponential backoff: delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffFactor
	}

	d := time.Duration(delay)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		// Guard against overflow
		d = p.MaxDelay
	}
	return d
}

// Manager drives delivery attempts for a single message through the
// retry policy. It records the outcome rather than returning an error:
// a delivery that exhausts its attempts is a result, not a failure of
// the pipeline.
type Manager struct {
	sender Sender
	policy RetryPolicy
	logger types.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSleepFunc replaces the inter-attempt sleep. Tests use this to run
// without real delays.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) {
		m.sleep = fn
	}
}

// NewManager creates a delivery manager with the given sender and retry
// policy.
func NewManager(sender Sender, policy RetryPolicy, logger types.Logger, opts ...ManagerOption) *Manager {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	m := &Manager{
		sender: sender,
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deliver attempts to send the message, retrying transient failures up
// to the policy's attempt limit. Permanent rejections stop after the
// attempt that produced them. The returned result always reflects the
// final state; Deliver itself never fails.
func (m *Manager) Deliver(ctx context.Context, msg types.ComposedEmail) types.DeliveryResult {
	result := types.DeliveryResult{
		Recipient: msg.Recipient,
		Status:    types.DeliveryStatusFailed,
	}

	var lastErr *types.AppError
	for attempt := 0; attempt < m.policy.MaxAttempts; attempt++ {
		result.Attempts = attempt + 1

		err := m.sender.Send(ctx, msg)
		if err == nil {
			result.Status = types.DeliveryStatusSent
			result.LastError = ""
			result.CompletedAt = time.Now().UTC()
			m.logger.Info("email delivered",
				"recipient", email.RedactEmail(msg.Recipient),
				"reference_id", msg.ReferenceID,
				"attempts", result.Attempts,
			)
			return result
		}

		lastErr = classifySendError(err)
		m.logger.Warn("email delivery attempt failed",
			"recipient", email.RedactEmail(msg.Recipient),
			"reference_id", msg.ReferenceID,
			"attempt", result.Attempts,
			"error_code", string(lastErr.Code),
			"error", lastErr.Error(),
		)

		if isPermanent(lastErr) {
			result.Status = types.DeliveryStatusPermanentlyFailed
			result.LastError = lastErr.Error()
			result.CompletedAt = time.Now().UTC()
			return result
		}

		if attempt < m.policy.MaxAttempts-1 {
			if err := m.sleep(ctx, m.policy.Backoff(attempt)); err != nil {
				// Context cancelled while waiting; stop retrying.
				break
			}
		}
	}

	result.Status = types.DeliveryStatusFailed
	if lastErr != nil {
		result.LastError = lastErr.Error()
	}
	result.CompletedAt = time.Now().UTC()
	return result
}

// sleepContext pauses for d or until the context is done, whichever
// comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
