// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stage provides the read-only registry of pipeline stages that
// the call-graph extractor consults during a walk.
//
// The registry maps each stage name to its metadata, currently the
// number of update definitions the stage carries. The extractor needs
// that count to know whether a producer body should be split into
// initialization and update parts.
//
// Registries are populated from the compiler's stage descriptors via
// Add, or decoded from a YAML fixture via DecodeRegistry for harness
// use. Decoding takes bytes, never file paths; opening files is the
// host harness's business.
//
// Thread Safety:
//
//	A Registry is not safe for concurrent mutation. Once fully
//	populated it may be read from any number of goroutines.
package stage

import "errors"

// Sentinel errors for registry operations.
var (
	// ErrDuplicateStage is returned when adding a stage whose name is
	// already registered.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrInvalidName is returned when a stage name fails validation.
	ErrInvalidName = errors.New("invalid stage name")

	// ErrNegativeUpdateCount is returned when a stage is registered
	// with a negative update definition count.
	ErrNegativeUpdateCount = errors.New("negative update count")

	// ErrRegistryTooLarge is returned when a YAML fixture exceeds the
	// decode size limits.
	ErrRegistryTooLarge = errors.New("registry fixture too large")
)
