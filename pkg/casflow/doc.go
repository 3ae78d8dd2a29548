/*
Package casflow provides flow control for CAS analysis aggregates.

# Overview

An aggregate runs every CAS (common analysis structure: one document and its
annotations) through an ordered sequence of delegate components. Some
delegates are CAS multipliers: after processing a CAS they may output new
CASes, each of which continues through the sequence right after the
multiplier that produced it.

casflow separates the decision of what runs next from the work itself:
  - A Flow is the per-CAS cursor. Next returns the next Step: run a
    component, or terminate (optionally dropping the CAS).
  - A FlowController owns the live sequence and mints a Flow for every
    input CAS. FixedFlowController is the fixed-order implementation.
  - An Aggregate is the driver. It dispatches steps to delegates, drains
    multipliers, and hands output CASes to the caller.

# Basic Usage

	pool := cas.NewPool(16)
	agg, err := casflow.NewAggregate("sentences",
	    []casflow.ComponentKey{"split", "tok"},
	    map[casflow.ComponentKey]casflow.Component{
	        "split": annotators.NewSentenceSplitter(),
	        "tok":   annotators.WhitespaceTokenizer{},
	    },
	    casflow.WithPool(pool))
	if err != nil {
	    return err
	}

	res, err := agg.Process(casflow.NewContext(ctx), cas.NewDocument("doc-1", text))
	if err != nil {
	    return err
	}
	for _, out := range res.Outputs {
	    // use out.CAS, then hand it back
	    _ = pool.Release(out.CAS)
	}

The caller keeps ownership of the CAS passed to Process. Every CAS created
inside the aggregate is output or released to the pool exactly once.

# Action After a Multiplier

The controller's ActionAfterMultiplier decides what happens to a CAS right
after a multiplier processed it:
  - DropIfNewCasProduced (default): drop it if the multiplier output at
    least one new CAS, otherwise continue.
  - Continue: send it on to the next component.
  - Stop: end its flow; it is still output.
  - Drop: end its flow; an internally created CAS is released, not output.

ParsePolicy accepts the configuration literals "continue", "stop", "drop"
and "dropIfNewCasProduced" without regard to case.

Multipliers that keep state per input CAS can implement Discarder. The
aggregate calls Discard when it stops draining a multiplier early, so the
state of an abandoned CAS does not linger.

# Reconfiguration

AddComponents and RemoveComponents change the sequence while CASes are in
flight. Flows resolve their position against the current sequence on every
step, so an in-flight CAS reaches components appended after it started
and never runs a component removed before it got there.

Replacing the delegate of a live key with AddComponents must keep its
multiplier status; remove the key first to change it.

# Errors

A component error stops the lineage of the CAS it happened on and is
returned as a *ComponentError (or *PanicError for a recovered panic) with
the partial Result. Sibling CASes keep running unless WithFailFast is set.
Cancellation (*CancellationError), the step limit (*MaxStepsError) and a
broken controller (*InvariantError) stop the whole run. Queued CASes are then
counted in Result.Abandoned, and the internally created ones are released.

# Observability

	res, err := agg.Process(ctx, doc,
	    casflow.WithObservabilityLogger(logger),
	    casflow.WithMetrics(true),
	    casflow.WithTracing(true),
	    casflow.WithJournal(store))

Logs carry run_id, cas_id and component. OpenTelemetry metrics include
casflow.component.invocations and casflow.cas.terminated; spans nest as
casflow.process > casflow.component.{key}. WithMetricsRecorder accepts any
observability.MetricsRecorder, such as the Prometheus recorder.

# Thread Safety

  - Aggregate IS safe for concurrent Process calls and reconfiguration
  - FixedFlowController IS safe for concurrent use; reads are lock-free
  - A Flow belongs to one CAS and is used by one goroutine at a time
  - Components shared across concurrent Process calls must be safe for
    concurrent use; multipliers should key their state by Context.CASID

# Subpackages

  - cas: in-memory Document and bounded Pool
  - annotators: sample tokenizer, sentence splitter and counter
  - config: aggregate descriptor loading and validation
  - registry: component factories and aggregate construction
  - journal: per-CAS outcome ledger (memory, SQLite)
  - observability: logging, metrics and tracing helpers
*/
package casflow
