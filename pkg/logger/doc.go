// Package logger builds configured slog.Logger instances for the billing
// services.
//
// The factory picks format and level from the deployment environment and can
// inject request-scoped attributes (request id, account id) from context on
// every log record:
//
//	log := logger.New(
//		logger.WithEnvironment("production", "billingd"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
package logger
