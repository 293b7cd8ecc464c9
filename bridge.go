// bridge.go: minimal state shared across loading-context boundaries
//
// The bridge is the only state both sides of the isolation boundary can
// reach: a single-assignment handle to the isolated context and a diagnostic
// install counter. It is an explicitly-owned struct constructed at bootstrap
// and passed by reference, not ambient global state.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"sync/atomic"
)

// contextHolder wraps the interface value so the single-assignment slot can
// use pointer compare-and-swap semantics.
type contextHolder struct {
	ctx LoadingContext
}

// Bridge holds the single-assignment isolated-context reference and the
// install counter. The context reference transitions nil to set exactly
// once; every later set attempt fails loudly. The install counter is a plain
// atomic increment used only for diagnostics: it is expected to reach
// exactly 1 over a process lifetime, and any higher value is a warning-level
// anomaly, never fatal.
type Bridge struct {
	holder   atomic.Pointer[contextHolder]
	installs atomic.Int64
	logger   Logger
}

// NewBridge creates an empty bridge. It must be populated with the isolated
// context before any extension module is installed.
func NewBridge(logger any) *Bridge {
	return &Bridge{logger: NewLogger(logger)}
}

// SetContext assigns the isolated context exactly once. A second attempt
// fails with a ContextAlreadySet error; this is a programming error by
// contract, not a race to be hidden.
func (b *Bridge) SetContext(ctx LoadingContext) error {
	if ctx == nil {
		return NewContextNotSetError()
	}
	if !b.holder.CompareAndSwap(nil, &contextHolder{ctx: ctx}) {
		return NewContextAlreadySetError()
	}
	b.logger.Debug("Isolated context registered on bridge", "context", ctx.Name(), "context_id", ctx.ID())
	return nil
}

// Context returns the isolated context if one was set.
func (b *Bridge) Context() (LoadingContext, bool) {
	if h := b.holder.Load(); h != nil {
		return h.ctx, true
	}
	return nil, false
}

// RecordInstall atomically increments the diagnostic install counter and
// returns the new value. A count above 1 is logged as an anomaly.
func (b *Bridge) RecordInstall() int64 {
	count := b.installs.Add(1)
	if count > 1 {
		b.logger.Warn("Install counter exceeded expected value", "install_count", count)
	}
	return count
}

// InstallCount returns the current diagnostic install counter.
func (b *Bridge) InstallCount() int64 {
	return b.installs.Load()
}
