package broker

import (
	"context"
	"encoding/gob"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestEncoder(w io.Writer) *gob.Encoder { return gob.NewEncoder(w) }
func newTestDecoder(r io.Reader) *gob.Decoder { return gob.NewDecoder(r) }

func TestThrSayDispatches(t *testing.T) {
	var calls atomic.Int32
	reg := Registry{
		"ping": func(args ...any) (any, error) {
			calls.Add(1)
			return nil, nil
		},
	}
	b := NewThr(2, reg, nil)
	defer b.Shutdown()

	b.Say("ping")
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestThrAskReturnsReply(t *testing.T) {
	reg := Registry{
		"double": func(args ...any) (any, error) {
			n := args[0].(int)
			return n * 2, nil
		},
	}
	b := NewThr(2, reg, nil)
	defer b.Shutdown()

	h := b.Ask("double", 21)
	val, err := h.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, val)
}

func TestThrAskUnknownDestErrors(t *testing.T) {
	b := NewThr(1, Registry{}, nil)
	defer b.Shutdown()

	h := b.Ask("nope")
	_, err := h.Get(context.Background())
	require.Error(t, err)
}

func TestThrNumWorkersMatchesPoolSize(t *testing.T) {
	b := NewThr(3, Registry{}, nil)
	defer b.Shutdown()
	require.Equal(t, 3, b.NumWorkers())
}

func TestThrReloadBroadcastsAndWaitsForAcks(t *testing.T) {
	var acked atomic.Int32
	reg := Registry{}
	b := NewThr(4, reg, nil)
	defer b.Shutdown()

	// reload has no registered handler; workers ack it with (nil, nil)
	// regardless, so Reload should return once all 4 have responded.
	done := make(chan struct{})
	go func() {
		b.Reload()
		acked.Store(int32(b.NumWorkers()))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reload did not return in time")
	}
	require.Equal(t, int32(4), acked.Load())
}

func TestThrShutdownStopsWorkers(t *testing.T) {
	b := NewThr(2, Registry{}, nil)
	b.Shutdown()

	h := b.Ask("anything")
	_, err := h.Get(context.Background())
	require.Error(t, err)
}

func TestThrAskHonorsContextCancel(t *testing.T) {
	block := make(chan struct{})
	reg := Registry{
		"slow": func(args ...any) (any, error) {
			<-block
			return nil, nil
		},
	}
	b := NewThr(1, reg, nil)
	defer func() {
		close(block)
		b.Shutdown()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	h := b.Ask("slow")
	_, err := h.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSelectFallsBackWhenSingleWorker(t *testing.T) {
	var s Selector
	useProc, err := s.Select(1, nil)
	require.NoError(t, err)
	require.False(t, useProc)
}

func TestSelectIsIdempotent(t *testing.T) {
	var s Selector
	var logs []string
	logf := func(source, msg string, color any) { logs = append(logs, msg) }

	a, _ := s.Select(8, logf)
	b, _ := s.Select(8, logf)
	require.Equal(t, a, b)
}

func TestServeWorkerRoundTrip(t *testing.T) {
	reg := Registry{
		"echo": func(args ...any) (any, error) {
			return args[0], nil
		},
	}

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = serveWorker(ctx, reg, reqR, respW) }()

	enc := newTestEncoder(reqW)
	dec := newTestDecoder(respR)

	require.NoError(t, enc.Encode(wireRequest{Dest: "echo", Args: []any{"hi"}}))
	var resp wireResponse
	require.NoError(t, dec.Decode(&resp))
	require.Equal(t, "hi", resp.Val)
	require.Empty(t, resp.Err)
}

func TestServeWorkerUnknownDest(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = serveWorker(ctx, Registry{}, reqR, respW) }()

	enc := newTestEncoder(reqW)
	dec := newTestDecoder(respR)

	require.NoError(t, enc.Encode(wireRequest{Dest: "bogus"}))
	var resp wireResponse
	require.NoError(t, dec.Decode(&resp))
	require.NotEmpty(t, resp.Err)
}
