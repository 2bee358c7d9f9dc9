// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conformance

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/stagewalk/callgraph"
	"github.com/AleutianAI/stagewalk/pkg/logging"
)

var tracer = otel.Tracer("aleutian.conformance")

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// casesTotal counts executed cases by outcome status.
	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stagewalk_conformance_cases_total",
		Help: "Total conformance cases by outcome status",
	}, []string{"status"})

	// runsTotal counts conformance runs that passed validation.
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagewalk_conformance_runs_total",
		Help: "Total conformance runs started",
	})

	// caseDuration tracks per-case execution latency.
	caseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stagewalk_conformance_case_duration_seconds",
		Help:    "Conformance case duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
	})
)

// =============================================================================
// Runner
// =============================================================================

// Runner executes conformance cases with bounded parallelism and
// observability.
//
// Description:
//
//	Each case extracts a call graph from its tree and compares it
//	against its expected graph. Cases are independent: a walk touches
//	only its own tree, registry, and output graph, so cases run
//	concurrently without locking.
//
// Thread Safety:
//
//	Runner is safe for concurrent use. Multiple runs can execute
//	concurrently on the same Runner.
type Runner struct {
	parallelism int
	failFast    bool
	logger      *logging.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithParallelism bounds the number of cases executing at once.
// Values below 1 leave the default in place.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.parallelism = n
		}
	}
}

// WithFailFast stops scheduling new cases after the first case that
// does not pass. Cases already running are left to finish; cases never
// scheduled are reported as skipped.
func WithFailFast(enabled bool) RunnerOption {
	return func(r *Runner) {
		r.failFast = enabled
	}
}

// WithLogger sets the logger for run progress. A nil logger leaves the
// default in place.
func WithLogger(logger *logging.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner. By default cases run with parallelism
// GOMAXPROCS, fail-fast disabled, and the default logger.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		parallelism: runtime.GOMAXPROCS(0),
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the cases and collects a report.
//
// Description:
//
//	All cases are validated before any execute; a single invalid case
//	fails the whole run without running anything. Execution then
//	proceeds with bounded parallelism. Mismatches and extraction
//	errors are recorded per case in the report and never abort the
//	run (unless fail-fast is enabled, which stops scheduling).
//	Cancellation is honored between cases: a walk never blocks, so
//	running cases finish and unscheduled ones are reported skipped.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	cases - The cases to execute. May be empty.
//
// Outputs:
//
//	*Report - Per-case results in input order, with outcome counts.
//	          Non-nil whenever execution started, including canceled
//	          runs.
//	error - Non-nil for harness-level failures: a nil context, an
//	        invalid or duplicate case, or context cancellation.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "conformance.Run",
		trace.WithAttributes(
			attribute.Int("conformance.case_count", len(cases)),
		),
	)
	defer span.End()

	seen := make(map[string]bool, len(cases))
	for i := range cases {
		if err := cases[i].Validate(); err != nil {
			err = fmt.Errorf("case at index %d: %w", i, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if seen[cases[i].Name] {
			err := fmt.Errorf("case at index %d: %w: %q", i, ErrDuplicateCase, cases[i].Name)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		seen[cases[i].Name] = true
	}

	runsTotal.Inc()
	runID := uuid.NewString()[:12] // 48 bits of entropy
	span.SetAttributes(attribute.String("conformance.run_id", runID))

	r.logger.Info("conformance run started",
		"run_id", runID,
		"cases", len(cases),
		"parallelism", r.parallelism,
	)

	start := time.Now()
	results := make([]CaseResult, len(cases))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	var failed atomic.Bool
	skip := func(i int) {
		results[i] = CaseResult{Name: cases[i].Name, Status: StatusSkipped}
		casesTotal.WithLabelValues(string(StatusSkipped)).Inc()
	}
	for i := range cases {
		// Cancellation and fail-fast take effect between cases. The
		// flag is re-checked when the slot opens: with SetLimit the
		// scheduling loop runs ahead of the cases themselves.
		if gCtx.Err() != nil || (r.failFast && failed.Load()) {
			skip(i)
			continue
		}

		g.Go(func() error {
			if gCtx.Err() != nil || (r.failFast && failed.Load()) {
				skip(i)
				return nil
			}
			r.runCase(gCtx, &cases[i], &results[i])
			if results[i].Status != StatusPassed {
				failed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		RunID:    runID,
		Results:  results,
		Duration: time.Since(start),
	}
	for i := range results {
		switch results[i].Status {
		case StatusPassed:
			report.Passed++
		case StatusMismatched:
			report.Mismatched++
		case StatusErrored:
			report.Errored++
		case StatusSkipped:
			report.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("conformance.passed", report.Passed),
		attribute.Int("conformance.mismatched", report.Mismatched),
		attribute.Int("conformance.errored", report.Errored),
		attribute.Int("conformance.skipped", report.Skipped),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context canceled")
		r.logger.Error("conformance run canceled",
			"run_id", runID,
			"completed", report.Total()-report.Skipped,
			"skipped", report.Skipped,
		)
		return report, err
	}

	if report.AllPassed() {
		span.SetStatus(codes.Ok, "")
		r.logger.Info("conformance run completed",
			"run_id", runID,
			"cases", report.Total(),
			"duration", report.Duration,
		)
	} else {
		span.SetStatus(codes.Error,
			fmt.Sprintf("%d of %d cases did not pass",
				report.Total()-report.Passed, report.Total()))
		r.logger.Error("conformance run failed",
			"run_id", runID,
			"passed", report.Passed,
			"mismatched", report.Mismatched,
			"errored", report.Errored,
			"skipped", report.Skipped,
		)
	}

	return report, nil
}

// runCase executes one case and fills in its result slot.
func (r *Runner) runCase(ctx context.Context, c *Case, result *CaseResult) {
	caseID := uuid.NewString()[:12] // 48 bits of entropy
	ctx, span := tracer.Start(ctx, "conformance.Case",
		trace.WithAttributes(
			attribute.String("case.name", c.Name),
			attribute.String("case.run_id", caseID),
		),
	)
	defer span.End()

	result.Name = c.Name
	result.RunID = caseID

	start := time.Now()
	extractor, err := callgraph.NewExtractor(c.Registry, callgraph.WithLogger(r.logger))
	if err == nil {
		result.Graph, err = extractor.Extract(ctx, c.Tree)
	}
	result.Duration = time.Since(start)
	caseDuration.Observe(result.Duration.Seconds())

	if err != nil {
		result.Err = err
		result.Status = StatusErrored
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		casesTotal.WithLabelValues(string(StatusErrored)).Inc()
		r.logger.Error("conformance case errored",
			"case", c.Name,
			"run_id", caseID,
			"error", err,
		)
		return
	}

	if m := callgraph.Compare(result.Graph, c.Expected); m != nil {
		result.Mismatch = m
		result.Status = StatusMismatched
		span.SetStatus(codes.Error, m.Error())
		casesTotal.WithLabelValues(string(StatusMismatched)).Inc()
		r.logger.Warn("conformance case mismatched",
			"case", c.Name,
			"run_id", caseID,
			"mismatch", m.Error(),
		)
		return
	}

	result.Status = StatusPassed
	span.SetStatus(codes.Ok, "")
	casesTotal.WithLabelValues(string(StatusPassed)).Inc()
	r.logger.Debug("conformance case passed",
		"case", c.Name,
		"run_id", caseID,
		"duration", result.Duration,
	)
}
