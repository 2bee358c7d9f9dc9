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
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/stagewalk/callgraph"
)

// CaseStatus is the outcome of one executed case.
type CaseStatus string

const (
	// StatusPassed means the extracted graph matched the expectation.
	StatusPassed CaseStatus = "passed"

	// StatusMismatched means extraction succeeded but the graph
	// differed from the expectation.
	StatusMismatched CaseStatus = "mismatched"

	// StatusErrored means extraction itself failed.
	StatusErrored CaseStatus = "errored"

	// StatusSkipped means the case was never scheduled: the run was
	// canceled or fail-fast stopped after an earlier failure.
	StatusSkipped CaseStatus = "skipped"
)

// CaseResult is the outcome of a single case.
type CaseResult struct {
	// Name is the case name.
	Name string

	// RunID is the short unique identifier assigned to this execution.
	// Empty for skipped cases.
	RunID string

	// Status is the case outcome.
	Status CaseStatus

	// Graph is the extracted graph. Nil when extraction failed or the
	// case was skipped.
	Graph *callgraph.Graph

	// Mismatch describes the first divergence from the expected graph.
	// Nil unless Status is StatusMismatched.
	Mismatch *callgraph.Mismatch

	// Err is the extraction error. Nil unless Status is StatusErrored.
	Err error

	// Duration is how long the case took to execute.
	Duration time.Duration
}

// Report is the outcome of a conformance run. Results appear in the
// same order as the cases passed to Run.
type Report struct {
	// RunID identifies the run across log lines and spans.
	RunID string

	// Results holds one entry per input case, in input order.
	Results []CaseResult

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration

	// Outcome counts.
	Passed     int
	Mismatched int
	Errored    int
	Skipped    int
}

// Total returns the number of cases in the run.
func (r *Report) Total() int {
	return len(r.Results)
}

// AllPassed reports whether every case executed and matched.
func (r *Report) AllPassed() bool {
	return r.Mismatched == 0 && r.Errored == 0 && r.Skipped == 0
}

// Failed returns the results that mismatched or errored, in input
// order. Skipped cases are not failures.
func (r *Report) Failed() []CaseResult {
	var failed []CaseResult
	for _, res := range r.Results {
		if res.Status == StatusMismatched || res.Status == StatusErrored {
			failed = append(failed, res)
		}
	}
	return failed
}

// Summary renders a deterministic human-readable digest: one header
// line with the outcome counts, then one line per non-passing case in
// input order. Durations and run IDs are omitted so identical outcomes
// produce identical summaries.
func (r *Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d cases: %d passed, %d mismatched, %d errored, %d skipped\n",
		r.Total(), r.Passed, r.Mismatched, r.Errored, r.Skipped)

	for _, res := range r.Results {
		switch res.Status {
		case StatusMismatched:
			fmt.Fprintf(&sb, "FAIL %s: %s\n", res.Name, res.Mismatch.Error())
		case StatusErrored:
			fmt.Fprintf(&sb, "ERROR %s: %s\n", res.Name, res.Err.Error())
		case StatusSkipped:
			fmt.Fprintf(&sb, "SKIP %s\n", res.Name)
		}
	}

	return sb.String()
}
