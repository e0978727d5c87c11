// Package logging builds the slog loggers used across trackforge.
//
// It provides console and JSON handlers, attribute helper aliases so call
// sites avoid importing log/slog directly, and context-derived fields that
// stamp every stage log line with the snapshot id, stage name, and request
// correlation id.
package logging
