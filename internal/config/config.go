// Package config defines the configuration for the recommendation mailer.
// Configuration is loaded once at process startup and is immutable
// thereafter; components receive the specific subsets they require at
// construction and never read process-wide state ad hoc.
package config

import (
	"time"

	"recomail/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials so they never leak through logs or config dumps.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Populated once during
// startup by LoadConfig and never modified.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Database  DatabaseConfig
	SMTP      SMTPConfig
	AI        AIConfig
	Pipeline  PipelineConfig
	Export    ExportConfig
	Telemetry TelemetryConfig
}

// DatabaseConfig holds the connection and query parameters for the store
// database (read-only order, activity, and catalog queries).
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// TablePrefix scopes every query to the store's table namespace.
	TablePrefix string `envconfig:"DATABASE_TABLE_PREFIX" default:"wp_"`

	MaxConns     int           `envconfig:"DB_MAX_CONNS" default:"4"`
	QueryTimeout time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"15s"`
}

// SMTPConfig holds mail submission settings.
type SMTPConfig struct {
	Host     string       `envconfig:"SMTP_SERVER" validate:"required"`
	Port     int          `envconfig:"SMTP_PORT" default:"465"`
	Username string       `envconfig:"SMTP_USERNAME"`
	Password SecretString `envconfig:"SMTP_PASSWORD"`

	SenderEmail string `envconfig:"SENDER_EMAIL" validate:"required,email"`
	SenderName  string `envconfig:"SENDER_NAME" default:"Your Store Team"`

	// UseSTARTTLS upgrades a plaintext connection instead of using implicit
	// TLS. Implicit TLS is the default for port 465.
	UseSTARTTLS bool `envconfig:"SMTP_STARTTLS" default:"false"`

	// InsecureSkipVerify disables certificate hostname verification. Some
	// shared-hosting mail servers present certificates for a different
	// hostname than the SMTP endpoint.
	InsecureSkipVerify bool `envconfig:"SMTP_INSECURE_SKIP_VERIFY" default:"false"`

	SendTimeout time.Duration `envconfig:"SMTP_SEND_TIMEOUT" default:"30s"`
	MaxAttempts int           `envconfig:"SMTP_MAX_ATTEMPTS" default:"3" validate:"min=1,max=10"`
}

// AIConfig holds the generative-AI provider settings.
type AIConfig struct {
	APIKey  SecretString `envconfig:"GEMINI_API_KEY" validate:"required"`
	Model   string       `envconfig:"GEMINI_MODEL" default:"gemini-pro"`
	BaseURL string       `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`

	RequestTimeout time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"AI_MAX_RETRIES" default:"3" validate:"min=0,max=10"`

	// HistoryLimit bounds the number of recent purchase/view items included
	// in the provider context payload.
	HistoryLimit int `envconfig:"AI_HISTORY_LIMIT" default:"5" validate:"min=1"`

	// MaxRecommendations caps the number of items requested per customer.
	MaxRecommendations int `envconfig:"AI_MAX_RECOMMENDATIONS" default:"3" validate:"min=1,max=10"`
}

// PipelineConfig holds run-level tunables for the batch orchestrator.
type PipelineConfig struct {
	// Lookback bounds the order/activity history window for a run.
	Lookback time.Duration `envconfig:"PIPELINE_LOOKBACK" default:"720h"`

	// Workers sizes the bounded worker pool. 1 (the default) processes
	// customers sequentially, which keeps provider and SMTP call rates low.
	Workers int `envconfig:"PIPELINE_WORKERS" default:"1" validate:"min=1,max=8"`

	StoreName string `envconfig:"STORE_NAME" default:"Our Store"`
	StoreURL  string `envconfig:"STORE_URL" default:""`
}

// ExportConfig controls the post-run combined order/activity export.
type ExportConfig struct {
	Enabled  bool   `envconfig:"EXPORT_ENABLED" default:"false"`
	Path     string `envconfig:"EXPORT_PATH" default:"combined_data.csv"`
	Compress bool   `envconfig:"EXPORT_COMPRESS" default:"false"`
}

// TelemetryConfig controls run-summary metric publication.
type TelemetryConfig struct {
	Enabled   bool   `envconfig:"TELEMETRY_ENABLED" default:"false"`
	Namespace string `envconfig:"TELEMETRY_NAMESPACE" default:"RecommendationMailer"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
}
