// Package config loads service configuration from environment variables.
// Every field carries an env tag, an optional default and an optional required
// marker; Load fails fast when a value is missing or malformed.
package config

import "time"

// Storage backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	AWS     AWSConfig
	Storage StorageConfig
	Orders  OrdersConfig
	Invoice InvoiceConfig
	SMTP    SMTPConfig
	Upload  UploadConfig
	Logging LoggingConfig
	Metrics MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// RunLocal serves HTTP directly instead of through the Lambda adapter.
	RunLocal bool `env:"RUN_LOCAL" default:"false"`

	Addr            string        `env:"SERVER_ADDR" default:":8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AWSConfig holds SDK settings shared by all clients.
type AWSConfig struct {
	Region string `env:"AWS_REGION" default:"us-east-1"`

	// EndpointOverride points the SDK at localstack or dynamodb-local.
	EndpointOverride string `env:"AWS_ENDPOINT_OVERRIDE"`
}

// StorageConfig selects and names the persistence tables.
type StorageConfig struct {
	Backend          string        `env:"STORAGE_BACKEND" default:"dynamodb"`
	OrdersTable      string        `env:"ORDERS_TABLE" default:"orders"`
	ItemsTable       string        `env:"ITEMS_TABLE" default:"items"`
	IdempotencyTable string        `env:"IDEMPOTENCY_TABLE" default:"idempotency"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" default:"48h"`
}

// OrdersConfig tunes order creation.
type OrdersConfig struct {
	// MaxIDAttempts caps order id draws before allocation gives up.
	MaxIDAttempts int `env:"ORDER_ID_MAX_ATTEMPTS" default:"10"`

	// QueueURL receives order events; empty disables publishing.
	QueueURL string `env:"ORDERS_QUEUE_URL"`
}

// InvoiceConfig holds invoice artifact settings.
type InvoiceConfig struct {
	Dir string `env:"INVOICE_DIR" default:"./invoices"`
}

// SMTPConfig holds mail transport settings. An empty host disables delivery.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" default:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

// UploadConfig holds bulk import limits.
type UploadConfig struct {
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`
}

// MetricsConfig holds CloudWatch settings for the event worker.
type MetricsConfig struct {
	Namespace string `env:"METRICS_NAMESPACE" default:"OrderDesk"`
}
