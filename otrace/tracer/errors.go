// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import "errors"

// Error kinds surfaced by Flush. All are recoverable: the recorder restores
// its state and returns; it never panics into host code.
var (
	// ErrOpen indicates the output file or its parent directory could not
	// be created.
	ErrOpen = errors.New("otrace: open trace output")

	// ErrWrite indicates the encoded snapshot could not be written.
	ErrWrite = errors.New("otrace: write trace output")

	// ErrRename indicates the staged file could not be moved into place.
	ErrRename = errors.New("otrace: finalize trace output")

	// ErrCompress indicates the gzip stage failed; no corrupt final file
	// is left behind.
	ErrCompress = errors.New("otrace: compress trace output")
)
