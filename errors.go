// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package siridb

import (
	"fmt"
)

// ErrShuttingDown is returned for operations arriving after Shutdown() was called
var ErrShuttingDown = fmt.Errorf("siridb: shutting down now")

// AllocError reports a buffer request that exceeds the configured packet size
// limit. The networking layer degrades the affected read to a zero-length
// destination and surfaces this error to the caller, which decides whether the
// whole process or just the connection goes down.
type AllocError struct {
	Requested uint64
	Limit     uint64
}

func (e AllocError) Error() string {
	return fmt.Sprintf("siridb: buffer of %d bytes exceeds the %d byte packet limit", e.Requested, e.Limit)
}
