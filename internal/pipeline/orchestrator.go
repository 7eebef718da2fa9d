// Package pipeline orchestrates a full recommendation run: fetch customer
// histories from the store, generate per-customer recommendations, compose
// and deliver the resulting emails, and aggregate a run summary. The run
// advances through an explicit state machine so logs and the summary can
// attribute outcomes to a stage.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"recomail/internal/email"
	"recomail/internal/types"
)

// State is the orchestrator's run state. Transitions are strictly
// forward: Init -> Fetching -> Processing -> Summarizing -> Done. The
// only failure state is reached from Fetching, when the data source is
// unavailable; per-customer errors never fail the run.
type State string

const (
	StateInit        State = "INIT"
	StateFetching    State = "FETCHING"
	StateProcessing  State = "PROCESSING"
	StateSummarizing State = "SUMMARIZING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// CustomerSource provides deduplicated customer records for the run window.
type CustomerSource interface {
	FetchCustomers(ctx context.Context, since time.Time) ([]types.CustomerRecord, error)
}

// CatalogSource provides the known product catalog keyed by product ID.
type CatalogSource interface {
	KnownProducts(ctx context.Context) (map[string]types.CatalogProduct, error)
}

// Recommender produces one recommendation set per customer. It never
// returns an error; failures are captured in the set's status.
type Recommender interface {
	Recommend(ctx context.Context, customer types.CustomerRecord, catalog map[string]types.CatalogProduct) types.RecommendationSet
}

// Composer renders a recommendation set into a sendable message. A nil
// message with a nil error means the set was skipped.
type Composer interface {
	Compose(set types.RecommendationSet) (*types.ComposedEmail, error)
}

// Deliverer sends one message, applying its own retry policy, and
// reports the terminal outcome.
type Deliverer interface {
	Deliver(ctx context.Context, msg types.ComposedEmail) types.DeliveryResult
}

// MetricsPublisher receives the final run summary. Implementations must
// tolerate publish failures; the orchestrator only logs them.
type MetricsPublisher interface {
	PublishRunSummary(ctx context.Context, summary types.RunSummary) error
}

// Config holds the orchestrator's run parameters.
type Config struct {
	// Lookback bounds how far back order and activity history is read.
	Lookback time.Duration
	// Workers bounds concurrent per-customer processing. 1 keeps the
	// run strictly sequential.
	Workers int
}

// Orchestrator wires the pipeline stages together and drives a run.
type Orchestrator struct {
	customers CustomerSource
	catalog   CatalogSource
	engine    Recommender
	composer  Composer
	deliverer Deliverer
	metrics   MetricsPublisher
	cfg       Config
	logger    types.Logger

	mu    sync.Mutex
	state State
}

// NewOrchestrator creates an orchestrator in the Init state. metrics may
// be nil when telemetry is disabled.
func NewOrchestrator(
	customers CustomerSource,
	catalog CatalogSource,
	engine Recommender,
	composer Composer,
	deliverer Deliverer,
	metrics MetricsPublisher,
	cfg Config,
	logger types.Logger,
) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		customers: customers,
		catalog:   catalog,
		engine:    engine,
		composer:  composer,
		deliverer: deliverer,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		state:     StateInit,
	}
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.Info("run state changed", "state", string(s))
}

// Run executes one full pipeline run. It returns an error only when the
// data source cannot be read; every later failure is recorded in the
// summary instead. The returned summary is valid in both cases.
func (o *Orchestrator) Run(ctx context.Context) (types.RunSummary, error) {
	summary := types.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := o.logger.With("run_id", summary.RunID)
	log.Info("run started", "lookback", o.cfg.Lookback.String(), "workers", o.cfg.Workers)

	o.setState(StateFetching)
	since := summary.StartedAt.Add(-o.cfg.Lookback)

	records, err := o.customers.FetchCustomers(ctx, since)
	if err != nil {
		o.setState(StateFailed)
		summary.FinishedAt = time.Now().UTC()
		log.Error("customer fetch failed", "stage", string(types.StageFetch), "error", err.Error())
		return summary, fmt.Errorf("fetch customers: %w", err)
	}

	catalog, err := o.catalog.KnownProducts(ctx)
	if err != nil {
		o.setState(StateFailed)
		summary.FinishedAt = time.Now().UTC()
		log.Error("catalog fetch failed", "stage", string(types.StageFetch), "error", err.Error())
		return summary, fmt.Errorf("fetch catalog: %w", err)
	}

	log.Info("fetch complete", "customers", len(records), "catalog_products", len(catalog))

	o.setState(StateProcessing)
	o.process(ctx, log, records, catalog, &summary)

	o.setState(StateSummarizing)
	summary.FinishedAt = time.Now().UTC()

	log.Info("run summary",
		"stage", string(types.StageSummary),
		"considered", summary.Considered,
		"generated", summary.Generated,
		"failed_generation", summary.FailedGeneration,
		"skipped", summary.Skipped,
		"sent", summary.Sent,
		"failed_delivery", summary.FailedDelivery,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).String(),
	)

	if o.metrics != nil {
		if err := o.metrics.PublishRunSummary(ctx, summary); err != nil {
			log.Warn("metrics publish failed", "error", err.Error())
		}
	}

	o.setState(StateDone)
	return summary, nil
}

// process runs the per-customer stages with at most cfg.Workers in
// flight. Counter updates are serialized on the summary mutex; each
// customer is otherwise independent.
func (o *Orchestrator) process(ctx context.Context, log types.Logger, records []types.CustomerRecord, catalog map[string]types.CatalogProduct, summary *types.RunSummary) {
	// At most one send per normalized address, regardless of what the
	// source returned.
	seen := make(map[string]struct{}, len(records))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, record := range records {
		key := types.NormalizeEmail(record.Email)
		if _, dup := seen[key]; dup {
			log.Warn("duplicate address skipped",
				"customer_id", record.CustomerID,
				"recipient", email.RedactEmail(record.Email),
			)
			continue
		}
		seen[key] = struct{}{}

		mu.Lock()
		summary.Considered++
		mu.Unlock()

		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			outcome := o.processCustomer(gctx, log, record, catalog)
			mu.Lock()
			outcome.apply(summary)
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()
}

// customerOutcome accumulates one customer's counter deltas so the
// summary mutex is held once per customer.
type customerOutcome struct {
	generated        bool
	failedGeneration bool
	skipped          bool
	sent             bool
	failedDelivery   bool
}

func (c customerOutcome) apply(summary *types.RunSummary) {
	if c.generated {
		summary.Generated++
	}
	if c.failedGeneration {
		summary.FailedGeneration++
	}
	if c.skipped {
		summary.Skipped++
	}
	if c.sent {
		summary.Sent++
	}
	if c.failedDelivery {
		summary.FailedDelivery++
	}
}

// processCustomer runs recommend, compose, and deliver for one customer.
// Failures are contained: they mark the outcome and never propagate.
func (o *Orchestrator) processCustomer(ctx context.Context, log types.Logger, record types.CustomerRecord, catalog map[string]types.CatalogProduct) customerOutcome {
	var outcome customerOutcome
	clog := log.With(
		"customer_id", record.CustomerID,
		"recipient", email.RedactEmail(record.Email),
	)

	set := o.engine.Recommend(ctx, record, catalog)
	switch set.Status {
	case types.GenerationSuccess:
		outcome.generated = true
		clog.Info("recommendations generated",
			"stage", string(types.StageRecommend),
			"set_id", set.ID,
			"items", len(set.Items),
		)
	case types.GenerationSkipped:
		outcome.skipped = true
		clog.Info("customer skipped",
			"stage", string(types.StageRecommend),
			"reason", set.FailureReason,
		)
		return outcome
	default:
		outcome.failedGeneration = true
		clog.Warn("recommendation generation failed",
			"stage", string(types.StageRecommend),
			"reason", set.FailureReason,
		)
		return outcome
	}

	// A composition error implies malformed input for this customer, so it
	// downgrades to a skip rather than a delivery failure.
	msg, err := o.composer.Compose(set)
	if err != nil {
		outcome.skipped = true
		clog.Error("composition failed",
			"stage", string(types.StageCompose),
			"set_id", set.ID,
			"error", err.Error(),
		)
		return outcome
	}
	if msg == nil {
		// The composer declined the set.
		outcome.skipped = true
		return outcome
	}

	result := o.deliverer.Deliver(ctx, *msg)
	switch result.Status {
	case types.DeliveryStatusSent:
		outcome.sent = true
	default:
		outcome.failedDelivery = true
		clog.Warn("delivery failed",
			"stage", string(types.StageDeliver),
			"set_id", set.ID,
			"status", string(result.Status),
			"attempts", result.Attempts,
			"error", result.LastError,
		)
	}
	return outcome
}
