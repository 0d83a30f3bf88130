// Package requestid attaches a correlation identifier to every HTTP request.
//
// The Middleware reuses a valid client-supplied "X-Request-ID" header or
// generates a UUID, stores it in the request context, and echoes it back in
// the response. LoggerExtractor feeds the id into the logger package's
// context extractors so every log record within a request carries the same
// request_id attribute:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r.Use(requestid.Middleware)
package requestid
