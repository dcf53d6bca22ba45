package zeroconf

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	announced atomic.Int32
	stopped   atomic.Bool
	ran       chan struct{}
}

func newFakeResponder(int64, LogFunc) (responder, error) {
	return &fakeResponder{ran: make(chan struct{}, 1)}, nil
}

func (f *fakeResponder) run(ctx context.Context) {
	select {
	case f.ran <- struct{}{}:
	default:
	}
	<-ctx.Done()
}

func (f *fakeResponder) announce() { f.announced.Add(1) }
func (f *fakeResponder) stop()     { f.stopped.Store(true) }

func failingFactory(int64, LogFunc) (responder, error) {
	return nil, errAlwaysFails
}

type alwaysFailsError string

func (e alwaysFailsError) Error() string { return string(e) }

const errAlwaysFails = alwaysFailsError("simulated startup failure")

func TestMgrGenerationIncrementsOnStart(t *testing.T) {
	m := New(nil)
	defer m.Stop()
	require.Equal(t, int64(0), m.Generation())

	m.Start(false, false)
	require.Equal(t, int64(1), m.Generation())
}

func TestMgrRestartUsesFakeFactory(t *testing.T) {
	m := New(nil)
	defer m.Stop()

	m.mu.Lock()
	m.gen = 1
	var slot responder
	var cancel context.CancelFunc
	m.restart(&slot, &cancel, "test", m.gen, newFakeResponder)
	m.mu.Unlock()

	require.NotNil(t, slot)
	fr := slot.(*fakeResponder)
	require.Eventually(t, func() bool {
		select {
		case <-fr.ran:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	cancel()
}

func TestMgrRestartHandlesFactoryFailure(t *testing.T) {
	m := New(nil)
	defer m.Stop()

	m.mu.Lock()
	var slot responder
	var cancel context.CancelFunc
	m.restart(&slot, &cancel, "test", 1, failingFactory)
	m.mu.Unlock()

	require.Nil(t, slot)
}

func TestMgrStopIsSafeWhenNothingStarted(t *testing.T) {
	m := New(nil)
	m.Stop() // must not panic
}

func TestMulticastInterfaceOrNoInterfaceError(t *testing.T) {
	_, err := multicastInterface()
	if err != nil {
		require.Equal(t, errNoMulticastInterface, err)
	}
}
