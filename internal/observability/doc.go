// Package observability provides structured logging for the relay.
//
// This package implements:
//   - zap logger construction from configuration (JSON or console encoding)
//   - Request ID propagation from the HTTP layer into log fields
package observability
