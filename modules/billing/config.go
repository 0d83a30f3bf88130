package billing

import "time"

// Config holds the module's HTTP-facing settings.
type Config struct {
	// WebhookSecret signs inbound gateway callbacks. Required in production;
	// an empty secret rejects every webhook.
	WebhookSecret string `env:"PAYGATE_WEBHOOK_SECRET"`
	// JobSecret guards the scheduled refund-retry endpoint. An unconfigured
	// secret makes the endpoint return 500 rather than running unguarded.
	JobSecret string `env:"BILLING_JOB_SECRET"`
	// RateLimit and RateWindow bound each sensitive action per account.
	RateLimit  int           `env:"BILLING_RATE_LIMIT" envDefault:"5"`
	RateWindow time.Duration `env:"BILLING_RATE_WINDOW" envDefault:"1m"`
}
