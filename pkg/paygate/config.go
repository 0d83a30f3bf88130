package paygate

import "time"

type Config struct {
	BaseURL   string        `env:"PAYGATE_BASE_URL,required"`            // BaseURL is the gateway API root, e.g. "https://api.paygate.example".
	SecretKey string        `env:"PAYGATE_SECRET_KEY,required"`          // SecretKey is the static credential sent with every request.
	Timeout   time.Duration `env:"PAYGATE_TIMEOUT" envDefault:"30s"`     // Timeout bounds each gateway call.
}
