// Package broker dispatches work to a fixed pool of execution
// contexts — goroutines or re-exec'd subprocesses — behind one
// interface, so SvcHub never needs to know which backend it picked
// (§4.2, §9 "Broker polymorphism").
package broker

import (
	"context"
	"time"
)

// LogFunc matches logsink's Log signature so callers can pass it in
// directly without an adapter.
type LogFunc func(source, message string, color any)

// TaskFunc is one named unit of work a worker executes. Args and the
// return value must be gob-encodable when running under the process
// backend (basic types, slices/maps of them, or registered structs).
type TaskFunc func(args ...any) (any, error)

// Registry maps a dispatch destination to the function that handles it.
// Both backends share the same registry shape; the process backend's
// child re-registers it independently in its own process image.
type Registry map[string]TaskFunc

// reloadDest is the well-known destination Reload() broadcasts to.
// A registry need not implement it; workers ack with (nil, nil) by
// default when it's absent.
const reloadDest = "__reload__"

// Broker dispatches Say (fire-and-forget) and Ask (request/reply)
// calls across num_workers execution contexts, and carries the
// coordinated reload/shutdown lifecycle.
type Broker interface {
	Say(dest string, args ...any)
	Ask(dest string, args ...any) ReplyHandle
	Shutdown()
	Reload()
	NumWorkers() int
}

// ReplyHandle is returned by Ask; Get blocks for the one reply or
// until ctx is done.
type ReplyHandle interface {
	Get(ctx context.Context) (any, error)
}

type job struct {
	dest  string
	args  []any
	reply chan result
}

type result struct {
	val any
	err error
}

type replyHandle struct {
	ch <-chan result
}

func (h *replyHandle) Get(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-h.ch:
		return r.val, r.err
	}
}

// immediateReply wraps a value that's already available, for callers
// (like a dead-worker error path) that still need a ReplyHandle.
func immediateReply(val any, err error) ReplyHandle {
	ch := make(chan result, 1)
	ch <- result{val: val, err: err}
	return &replyHandle{ch: ch}
}

const defaultAckTimeout = 10 * time.Second
