// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package freshet

import (
	"github.com/juju/errors"
)

const (
	// ErrNonPositiveDemand is the cause of the terminal error signalled
	// when a consumer requests a non-positive amount of demand.
	ErrNonPositiveDemand = errors.ConstError("demand must be positive")

	// ErrDuplicateFlow indicates that a consumer was granted a second
	// flow handle for the same subscription.
	ErrDuplicateFlow = errors.ConstError("flow already granted")

	// ErrNilCause is substituted for a nil error passed to OnError,
	// so that a terminal failure always carries a cause.
	ErrNilCause = errors.ConstError("terminal error signalled with nil cause")

	// ErrNilItem indicates that a computation produced a nil value
	// where an item was required.
	ErrNilItem = errors.ConstError("nil item")
)
