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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stagewalk/callgraph"
	"github.com/AleutianAI/stagewalk/pkg/logging"
)

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner()
	assert.GreaterOrEqual(t, r.parallelism, 1)
	assert.False(t, r.failFast)
	assert.NotNil(t, r.logger)

	// Values below 1 keep the default.
	r = NewRunner(WithParallelism(0))
	assert.GreaterOrEqual(t, r.parallelism, 1)

	r = NewRunner(WithParallelism(3), WithFailFast(true))
	assert.Equal(t, 3, r.parallelism)
	assert.True(t, r.failFast)
}

func TestRunner_Run_AllPass(t *testing.T) {
	cases := []Case{
		passingCase(t, "func wrap"),
		passingCase(t, "global wrap"),
		passingCase(t, "rdom wrapper"),
		passingCase(t, "two fold wrapper"),
	}

	r := NewRunner(WithParallelism(2))
	report, err := r.Run(context.Background(), cases)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 4, report.Total())
	assert.Equal(t, 4, report.Passed)
	assert.True(t, report.AllPassed())
	assert.Empty(t, report.Failed())
	assert.Len(t, report.RunID, 12)

	// Results stay in input order regardless of scheduling.
	for i, res := range report.Results {
		assert.Equal(t, cases[i].Name, res.Name)
		assert.Equal(t, StatusPassed, res.Status)
		assert.Len(t, res.RunID, 12)
		require.NotNil(t, res.Graph)
		assert.True(t, res.Graph.Frozen())
	}

	assert.Equal(t, "4 cases: 4 passed, 0 mismatched, 0 errored, 0 skipped\n", report.Summary())
}

func TestRunner_Run_RecordsMismatch(t *testing.T) {
	cases := []Case{
		passingCase(t, "good"),
		mismatchedCase(t, "bad-exp"),
	}

	report, err := NewRunner().Run(context.Background(), cases)
	require.NoError(t, err, "mismatches are report data, not run errors")

	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Mismatched)
	assert.False(t, report.AllPassed())

	res := report.Results[1]
	assert.Equal(t, StatusMismatched, res.Status)
	require.NotNil(t, res.Mismatch)
	assert.Equal(t, callgraph.MismatchCallees, res.Mismatch.Kind)
	assert.NotNil(t, res.Graph, "extraction succeeded; the graph is kept for diffing")
	assert.NoError(t, res.Err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "bad-exp", failed[0].Name)
	assert.Contains(t, report.Summary(), "FAIL bad-exp: ")
}

func TestRunner_Run_RecordsExtractionError(t *testing.T) {
	cases := []Case{
		erroredCase(t, "phantom producer"),
		passingCase(t, "good"),
	}

	report, err := NewRunner().Run(context.Background(), cases)
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusErrored, res.Status)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, callgraph.ErrUnknownProducer)
	assert.Nil(t, res.Graph)
	assert.Nil(t, res.Mismatch)

	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, 1, report.Passed)
	assert.Contains(t, report.Summary(), "ERROR phantom producer: ")
}

func TestRunner_Run_ParallelMatchesSerial(t *testing.T) {
	build := func() []Case {
		cases := make([]Case, 12)
		for i := range cases {
			name := fmt.Sprintf("case-%02d", i)
			switch i % 3 {
			case 0:
				cases[i] = passingCase(t, name)
			case 1:
				cases[i] = mismatchedCase(t, name)
			default:
				cases[i] = erroredCase(t, name)
			}
		}
		return cases
	}

	serial, err := NewRunner(WithParallelism(1)).Run(context.Background(), build())
	require.NoError(t, err)
	parallel, err := NewRunner(WithParallelism(8)).Run(context.Background(), build())
	require.NoError(t, err)

	assert.Equal(t, serial.Passed, parallel.Passed)
	assert.Equal(t, serial.Mismatched, parallel.Mismatched)
	assert.Equal(t, serial.Errored, parallel.Errored)
	assert.Equal(t, serial.Summary(), parallel.Summary())

	require.Equal(t, serial.Total(), parallel.Total())
	for i := range serial.Results {
		assert.Equal(t, serial.Results[i].Status, parallel.Results[i].Status,
			"case %d diverged between serial and parallel runs", i)
	}
}

func TestRunner_Run_FailFast(t *testing.T) {
	cases := []Case{
		erroredCase(t, "first fails"),
		passingCase(t, "never scheduled"),
		passingCase(t, "also never scheduled"),
	}

	r := NewRunner(WithParallelism(1), WithFailFast(true))
	report, err := r.Run(context.Background(), cases)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, StatusSkipped, report.Results[1].Status)
	assert.Equal(t, StatusSkipped, report.Results[2].Status)
	assert.Empty(t, report.Results[1].RunID, "skipped cases are never assigned run IDs")
	assert.Contains(t, report.Summary(), "SKIP never scheduled")

	// Skipped cases are not failures.
	assert.Len(t, report.Failed(), 1)
}

func TestRunner_Run_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []Case{
		passingCase(t, "a"),
		passingCase(t, "b"),
	}

	report, err := NewRunner().Run(ctx, cases)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report, "canceled runs still report what happened")

	assert.Equal(t, 2, report.Skipped)
	for _, res := range report.Results {
		assert.Equal(t, StatusSkipped, res.Status)
	}
}

func TestRunner_Run_ValidationFailure(t *testing.T) {
	bad := passingCase(t, "broken")
	bad.Registry = nil

	report, err := NewRunner().Run(context.Background(), []Case{
		passingCase(t, "fine"),
		bad,
	})
	require.ErrorIs(t, err, ErrInvalidCase)
	assert.Contains(t, err.Error(), "case at index 1")
	assert.Nil(t, report, "nothing runs when validation fails")
}

func TestRunner_Run_DuplicateNames(t *testing.T) {
	report, err := NewRunner().Run(context.Background(), []Case{
		passingCase(t, "same"),
		passingCase(t, "same"),
	})
	require.ErrorIs(t, err, ErrDuplicateCase)
	assert.Contains(t, err.Error(), `"same"`)
	assert.Nil(t, report)
}

func TestRunner_Run_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := NewRunner().Run(nil, []Case{passingCase(t, "x")})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRunner_Run_EmptyCases(t *testing.T) {
	report, err := NewRunner().Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Total())
	assert.True(t, report.AllPassed())
	assert.Equal(t, "0 cases: 0 passed, 0 mismatched, 0 errored, 0 skipped\n", report.Summary())
}

func TestRunner_Run_Logging(t *testing.T) {
	exporter := logging.NewBufferedExporter()
	logger := logging.New(logging.Config{
		Level:    logging.LevelDebug,
		Quiet:    true,
		Service:  "conformance-test",
		Exporter: exporter,
	})
	defer logger.Close()

	r := NewRunner(WithLogger(logger), WithParallelism(1))
	_, err := r.Run(context.Background(), []Case{
		passingCase(t, "logged"),
		mismatchedCase(t, "noisy"),
	})
	require.NoError(t, err)

	// Exports are asynchronous.
	require.Eventually(t, func() bool {
		var started, mismatched bool
		for _, entry := range exporter.Entries() {
			if entry.Message == "conformance run started" {
				started = true
			}
			if entry.Message == "conformance case mismatched" && entry.Attrs["case"] == "noisy" {
				mismatched = true
			}
		}
		return started && mismatched
	}, time.Second, 10*time.Millisecond, "expected run-start and mismatch log entries")
}

func TestReport_Summary_Deterministic(t *testing.T) {
	mismatch := callgraph.Compare(
		graphOf(t, map[string][]string{"g": {"b"}}),
		graphOf(t, map[string][]string{"g": {"a"}}),
	)
	require.NotNil(t, mismatch)

	report := &Report{
		Results: []CaseResult{
			{Name: "ok", Status: StatusPassed},
			{Name: "diff", Status: StatusMismatched, Mismatch: mismatch},
			{Name: "boom", Status: StatusErrored, Err: callgraph.ErrNilTree},
			{Name: "later", Status: StatusSkipped},
		},
		Passed:     1,
		Mismatched: 1,
		Errored:    1,
		Skipped:    1,
	}

	expected := "4 cases: 1 passed, 1 mismatched, 1 errored, 1 skipped\n" +
		"FAIL diff: expected callees of g to be (a); got (b) instead\n" +
		"ERROR boom: nil statement tree\n" +
		"SKIP later\n"
	assert.Equal(t, expected, report.Summary())
}
