// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgraph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for call-graph operations.
var (
	tracer = otel.Tracer("aleutian.callgraph")
	meter  = otel.Meter("aleutian.callgraph")
)

// Metrics for extraction operations.
var (
	extractLatency  metric.Float64Histogram
	extractTotal    metric.Int64Counter
	callersRecorded metric.Int64Histogram
	edgesRecorded   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		extractLatency, err = meter.Float64Histogram(
			"callgraph_extract_duration_seconds",
			metric.WithDescription("Duration of call-graph extraction walks"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractTotal, err = meter.Int64Counter(
			"callgraph_extract_total",
			metric.WithDescription("Total number of call-graph extraction walks"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callersRecorded, err = meter.Int64Histogram(
			"callgraph_callers_recorded",
			metric.WithDescription("Number of caller entries recorded per extraction"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesRecorded, err = meter.Int64Histogram(
			"callgraph_edges_recorded",
			metric.WithDescription("Number of caller-to-callee edges recorded per extraction"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordExtractMetrics records metrics for an extraction walk.
func recordExtractMetrics(ctx context.Context, duration time.Duration, callerCount, edgeCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	extractLatency.Record(ctx, duration.Seconds(), attrs)
	extractTotal.Add(ctx, 1, attrs)

	if success {
		callersRecorded.Record(ctx, int64(callerCount))
		edgesRecorded.Record(ctx, int64(edgeCount))
	}
}

// startExtractSpan creates a span for an extraction walk.
func startExtractSpan(ctx context.Context, stageCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Extractor.Extract",
		trace.WithAttributes(
			attribute.Int("callgraph.stage_count", stageCount),
		),
	)
}

// setExtractSpanResult sets the result attributes on an extraction span.
func setExtractSpanResult(span trace.Span, callerCount, edgeCount, nodesWalked int) {
	span.SetAttributes(
		attribute.Int("callgraph.caller_count", callerCount),
		attribute.Int("callgraph.edge_count", edgeCount),
		attribute.Int("callgraph.nodes_walked", nodesWalked),
	)
}
