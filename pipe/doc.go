// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package pipe provides the operators. Each operator wraps an
// upstream emitter and returns a new emitter; attaching to the result
// installs a fresh stage between upstream and downstream, so the
// composed emitter stays cold. Stages convert callback failures into
// a terminal error downstream and a cancellation upstream, exactly
// once; they never panic across the signal boundary.
package pipe
