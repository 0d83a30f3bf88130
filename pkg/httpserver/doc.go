// Package httpserver wraps net/http with graceful shutdown, configurable
// timeouts, health-check handlers, and slog logging.
//
// Run blocks until the context is cancelled or an interrupt/TERM signal
// arrives, then drains in-flight requests within the shutdown deadline.
// HealthCheckHandler serves as both liveness probe (no dependency closures)
// and readiness probe (with pg/redis healthcheck closures):
//
//	srv := httpserver.New(
//		httpserver.WithAddr(":8080"),
//		httpserver.WithShutdownTimeout(10*time.Second),
//		httpserver.WithLogger(log),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Start errors are wrapped with ErrStart, shutdown errors with ErrShutdown.
package httpserver
