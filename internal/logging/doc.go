// Package logging builds the process-wide slog logger and carries the
// standardized attribute keys and context helpers used across the pipeline.
package logging
