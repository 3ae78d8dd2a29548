// Package observability provides structured logging, metrics, and tracing
// for casflow aggregates.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"strings"
	"time"
)

// EnrichLogger adds casflow context to a logger.
// Returns a new logger with run_id, cas_id, and component fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "cas-9", "tokenizer")
//	enriched.Info("doing work") // includes run_id, cas_id, component
func EnrichLogger(logger *slog.Logger, runID, casID, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("cas_id", casID),
		slog.String("component", component),
	)
}

// LogRunStart logs the start of processing a root CAS.
func LogRunStart(logger *slog.Logger, aggregate, runID, casID string) {
	if logger == nil {
		return
	}
	logger.Info("aggregate run starting",
		slog.String("aggregate", aggregate),
		slog.String("run_id", runID),
		slog.String("cas_id", casID),
	)
}

// LogRunComplete logs successful processing of a root CAS lineage.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, steps, outputs, dropped int) {
	if logger == nil {
		return
	}
	logger.Info("aggregate run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
		slog.Int("outputs", outputs),
		slog.Int("dropped", dropped),
	)
}

// LogRunError logs a failed root CAS lineage.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastComponent string) {
	if logger == nil {
		return
	}
	logger.Error("aggregate run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_component", lastComponent),
	)
}

// LogComponentStart logs a component call.
func LogComponentStart(logger *slog.Logger, component, casID string) {
	if logger == nil {
		return
	}
	logger.Debug("component starting",
		slog.String("component", component),
		slog.String("cas_id", casID),
	)
}

// LogComponentComplete logs a successful component call.
func LogComponentComplete(logger *slog.Logger, component, casID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("component completed",
		slog.String("component", component),
		slog.String("cas_id", casID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogComponentError logs a failed component call.
func LogComponentError(logger *slog.Logger, component, casID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("component failed",
		slog.String("component", component),
		slog.String("cas_id", casID),
		slog.String("error", err.Error()),
	)
}

// LogCASSpawned logs a new CAS output by a multiplier.
func LogCASSpawned(logger *slog.Logger, producer, parentID, childID string) {
	if logger == nil {
		return
	}
	logger.Debug("cas spawned",
		slog.String("component", producer),
		slog.String("parent_cas_id", parentID),
		slog.String("cas_id", childID),
	)
}

// LogCASTerminated logs a CAS leaving the aggregate.
func LogCASTerminated(logger *slog.Logger, casID, outcome, lastComponent string) {
	if logger == nil {
		return
	}
	logger.Debug("cas terminated",
		slog.String("cas_id", casID),
		slog.String("outcome", outcome),
		slog.String("last_component", lastComponent),
	)
}

// LogReconfigure logs a change to a flow controller's sequence.
func LogReconfigure(logger *slog.Logger, op string, keys []string, generation uint64) {
	if logger == nil {
		return
	}
	logger.Info("flow sequence reconfigured",
		slog.String("operation", op),
		slog.String("components", strings.Join(keys, ",")),
		slog.Uint64("generation", generation),
	)
}

// LogJournalError logs a journal write failure (non-fatal).
func LogJournalError(logger *slog.Logger, casID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("journal record failed",
		slog.String("cas_id", casID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
