package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP (outbound replies)
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"assistant@example.com"`

	// ----------------------------
	// IMAP (inbound mailbox)
	// ----------------------------
	IMAPHost     string        `envconfig:"IMAP_HOST" default:"localhost"`
	IMAPPort     int           `envconfig:"IMAP_PORT" default:"993"`
	IMAPUser     string        `envconfig:"IMAP_USER" default:""`
	IMAPPassword string        `envconfig:"IMAP_PASSWORD" default:""`
	IMAPTLS      bool          `envconfig:"IMAP_TLS" default:"true"`
	IMAPLookback time.Duration `envconfig:"IMAP_LOOKBACK" default:"168h"`

	// ----------------------------
	// Classifier
	// ----------------------------
	OpenAIKey   string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel string `envconfig:"OPENAI_MODEL" default:""`

	// ----------------------------
	// Jobs
	// ----------------------------
	IntakeInterval   time.Duration `envconfig:"INTAKE_INTERVAL" default:"2m"`
	DispatchInterval time.Duration `envconfig:"DISPATCH_INTERVAL" default:"1m"`
	FetchBatchMax    int           `envconfig:"FETCH_BATCH_MAX" default:"25"`
	DispatchBatchMax int           `envconfig:"DISPATCH_BATCH_MAX" default:"50"`
	SendRateLimit    int           `envconfig:"SEND_RATE_LIMIT" default:"10"`
	ResponseDelay    time.Duration `envconfig:"RESPONSE_DELAY" default:"1h"`

	// ----------------------------
	// Retention
	// ----------------------------
	RetentionDays int `envconfig:"RETENTION_DAYS" default:"90"`

	// ----------------------------
	// Reply generation
	// ----------------------------
	SenderName string `envconfig:"SENDER_NAME" default:"The Sales Team"`
	Timezone   string `envconfig:"TIMEZONE" default:"UTC"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database (empty = in-memory store)
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
