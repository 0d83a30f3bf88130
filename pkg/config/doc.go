// Package config loads application configuration from environment variables.
//
// It wraps `github.com/joho/godotenv` and `github.com/caarlos0/env/v11` to
// deliver a small, type-safe API:
//
//   - Loads values from one or more `.env` files (falling back to the default
//     `.env` in the current working directory, loaded at most once).
//   - Parses the environment into any Go struct using `env` field tags.
//   - Exposes `MustLoad` for configuration that is required at startup.
//
// # Usage
//
// Declare a struct describing your configuration and annotate its fields with
// `env` tags:
//
//	type GatewayConfig struct {
//	    BaseURL   string        `env:"PAYGATE_BASE_URL,required"`
//	    SecretKey string        `env:"PAYGATE_SECRET_KEY,required"`
//	    Timeout   time.Duration `env:"PAYGATE_TIMEOUT" envDefault:"30s"`
//	}
//
//	var cfg GatewayConfig
//	config.MustLoad(&cfg)
//
// # Error Handling
//
// The package defines sentinel errors comparable with `errors.Is`:
//
//   - `ErrParsingConfig` – failed to parse env vars into the struct.
//   - `ErrNilPointer`    – nil pointer passed to `Load`/`MustLoad`.
package config
