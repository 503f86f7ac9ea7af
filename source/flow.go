// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package source

import (
	"sync/atomic"
)

// inertFlow accepts requests without acting on them. Terminal-only
// sources grant it so that the contract's flow-before-terminal order
// holds while cancellation is still honoured.
type inertFlow struct {
	cancelled atomic.Bool
}

// Request is part of the freshet.Flow interface.
func (f *inertFlow) Request(n int64) {}

// Cancel is part of the freshet.Flow interface.
func (f *inertFlow) Cancel() {
	f.cancelled.Store(true)
}

// Cancelled reports whether the consumer has withdrawn.
func (f *inertFlow) Cancelled() bool {
	return f.cancelled.Load()
}
