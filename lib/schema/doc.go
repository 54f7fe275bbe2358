// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the shared data model for lackey runs:
// blueprints (the declarative step list that drives a run), run
// configuration and results, scopes (the file boundary agreed between
// the scoper and executor agents), and the run outcome taxonomy.
//
// Types in this package are plain data with JSON and YAML tags. They
// cross every boundary in the system — blueprint files on disk,
// artifacts in the output directory, and the run summary consumed by
// the host CLI — so they carry no behavior beyond validation and
// matching helpers.
package schema
