// Package observability provides structured logging, Prometheus metrics and
// log redaction for the staging auth bridge.
//
// The logger emits JSON via stdlib slog and carries contextual fields the
// same way across every component. Redaction helpers exist because
// validation logs must never contain raw session tokens, raw role names or
// PII when running in a production-classified environment.
package observability
