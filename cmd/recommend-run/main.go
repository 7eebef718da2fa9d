// Package main is the entrypoint for the recommendation mailer batch run.
//
// One invocation executes one full pipeline run:
//  1. Initialize structured logger and load configuration.
//  2. Connect to the store database (fatal if unreachable).
//  3. Wire the recommendation engine, composer, and SMTP delivery manager.
//  4. Run the orchestrator over the lookback window.
//  5. Optionally write the combined order/activity CSV export.
//
// The process exits non-zero only when the data source cannot be read or
// configuration is invalid. Per-customer failures are reported in the run
// summary and logs instead.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recomail/internal/config"
	"recomail/internal/delivery"
	emailpkg "recomail/internal/email"
	"recomail/internal/export"
	"recomail/internal/external"
	"recomail/internal/pipeline"
	"recomail/internal/recommend"
	"recomail/internal/store"
	"recomail/internal/telemetry"
	"recomail/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Warn, and Error directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// The logger's level comes from config, so config errors go to a
		// default logger.
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("configuration invalid", "error", err.Error())
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	typedLogger := &slogAdapter{logger: logger}
	typedLogger.Info("recommendation mailer starting", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, store.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		typedLogger.Error("store connection failed", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	customers := store.NewCustomerRepository(pool, cfg.Database.TablePrefix, typedLogger)
	catalog := store.NewCatalogRepository(pool, cfg.Database.TablePrefix, typedLogger)

	provider := external.NewGeminiClient(&http.Client{Timeout: cfg.AI.RequestTimeout}, external.GeminiClientConfig{
		APIKey:     cfg.AI.APIKey,
		Model:      cfg.AI.Model,
		BaseURL:    cfg.AI.BaseURL,
		MaxRetries: cfg.AI.MaxRetries,
		Logger:     logger,
	})
	engine := recommend.NewEngine(provider, recommend.EngineConfig{
		HistoryLimit:   cfg.AI.HistoryLimit,
		MaxItems:       cfg.AI.MaxRecommendations,
		RequestTimeout: cfg.AI.RequestTimeout,
	}, typedLogger)

	composer, err := emailpkg.NewComposer(emailpkg.ComposerConfig{
		StoreName: cfg.Pipeline.StoreName,
		StoreURL:  cfg.Pipeline.StoreURL,
		FromName:  cfg.SMTP.SenderName,
	})
	if err != nil {
		typedLogger.Error("template initialization failed", "error", err.Error())
		os.Exit(1)
	}

	sender := delivery.NewSMTPSender(delivery.SenderConfig{
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		Username:           cfg.SMTP.Username,
		Password:           cfg.SMTP.Password,
		SenderEmail:        cfg.SMTP.SenderEmail,
		SenderName:         cfg.SMTP.SenderName,
		UseSTARTTLS:        cfg.SMTP.UseSTARTTLS,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		SendTimeout:        cfg.SMTP.SendTimeout,
	}, typedLogger)

	retryPolicy := delivery.DefaultRetryPolicy
	retryPolicy.MaxAttempts = cfg.SMTP.MaxAttempts
	deliverer := delivery.NewManager(sender, retryPolicy, typedLogger)

	var metrics pipeline.MetricsPublisher
	if cfg.Telemetry.Enabled {
		publisher, err := telemetry.NewPublisher(ctx, cfg.Telemetry.Namespace, cfg.Telemetry.Region, typedLogger)
		if err != nil {
			typedLogger.Warn("telemetry disabled", "error", err.Error())
		} else {
			metrics = publisher
		}
	}

	orchestrator := pipeline.NewOrchestrator(customers, catalog, engine, composer, deliverer, metrics,
		pipeline.Config{
			Lookback: cfg.Pipeline.Lookback,
			Workers:  cfg.Pipeline.Workers,
		}, typedLogger)

	summary, err := orchestrator.Run(ctx)
	if err != nil {
		typedLogger.Error("run failed", "run_id", summary.RunID, "error", err.Error())
		os.Exit(1)
	}

	if cfg.Export.Enabled {
		if err := writeExport(ctx, cfg, customers, typedLogger); err != nil {
			typedLogger.Warn("export failed", "error", err.Error())
		}
	}

	typedLogger.Info("recommendation mailer finished",
		"run_id", summary.RunID,
		"sent", summary.Sent,
		"failed_delivery", summary.FailedDelivery,
	)
}

// writeExport dumps the combined order/view history for the run window.
// Export failures are logged but never change the process exit code.
func writeExport(ctx context.Context, cfg *config.Config, customers *store.CustomerRepository, logger types.Logger) error {
	combined := store.NewCombinedRepository(customers)
	records, err := combined.FetchCombinedRecords(ctx, time.Now().UTC().Add(-cfg.Pipeline.Lookback))
	if err != nil {
		return err
	}
	writer := export.NewWriter(cfg.Export.Compress, logger)
	_, err = writer.WriteFile(cfg.Export.Path, records)
	return err
}
