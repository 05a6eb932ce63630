// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrInterrupted reports that a run stopped early at an operator's
// request. The tree is left at the last checkpoint.
var ErrInterrupted = errors.New("run interrupted")

// Interrupter coordinates the two-stage stop protocol: the first
// request asks the scheduler to wind down at the next safe point, the
// second cancels outstanding work immediately.
type Interrupter struct {
	requested atomic.Bool
	cancel    context.CancelFunc
}

// NewInterrupter wraps ctx so a second Interrupt call can cancel it.
// The returned context must be the one passed to Scheduler.Run.
func NewInterrupter(ctx context.Context) (*Interrupter, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Interrupter{cancel: cancel}, ctx
}

// Interrupt requests a stop. It returns true when this was the first
// request (graceful stop at the next checkpoint boundary) and false
// when the run is being canceled outright.
func (i *Interrupter) Interrupt() bool {
	if i.requested.CompareAndSwap(false, true) {
		return true
	}
	if i.cancel != nil {
		i.cancel()
	}
	return false
}

// Requested reports whether a graceful stop is pending.
func (i *Interrupter) Requested() bool {
	return i.requested.Load()
}
