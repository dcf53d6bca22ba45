package svchub

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clach04/copyparty/internal/broker"
	"github.com/clach04/copyparty/internal/collab"
	"github.com/clach04/copyparty/internal/config"
)

func testHub(t *testing.T, deps Deps) *Hub {
	t.Helper()
	origFull, origIgn := fullBindGrace, ignBindGrace
	fullBindGrace, ignBindGrace = 30*time.Millisecond, 10*time.Millisecond
	t.Cleanup(func() { fullBindGrace, ignBindGrace = origFull, origIgn })

	cfg := config.Config{Raw: config.RawConfig{J: 1}}
	h, err := New(cfg, nil, deps, nil, nil)
	require.NoError(t, err)
	return h
}

func TestShutdownIsIdempotent(t *testing.T) {
	up := &collab.StubUp2k{}
	h := testHub(t, Deps{Up2k: up, BrokerRegistry: broker.Registry{}})

	h.Shutdown(context.Background())
	h.Shutdown(context.Background())

	require.Equal(t, int32(1), up.ShutdownCalls.Load())
	require.True(t, h.Stopped())
}

func TestShutdownCallsEveryPresentCollaborator(t *testing.T) {
	up := &collab.StubUp2k{}
	thumb := &collab.StubThumbSrv{}
	ftp := &collab.StubAdapter{IsPresent: true}
	smb := &collab.StubAdapter{IsPresent: true}
	absentFtp := &collab.StubAdapter{IsPresent: false}

	h := testHub(t, Deps{
		Up2k:           up,
		Thumb:          thumb,
		Ftp:            absentFtp,
		Smb:            smb,
		BrokerRegistry: broker.Registry{},
	})
	_ = ftp // unused directly; absentFtp exercises the presence gate below

	h.Shutdown(context.Background())

	require.Equal(t, int32(1), up.ShutdownCalls.Load())
	require.Equal(t, int32(1), smb.ShutdownCalls.Load())
	require.Equal(t, int32(0), absentFtp.ShutdownCalls.Load(), "absent ftp adapter must not be shut down")
}

func TestShutdownSmbHardKillBackstop(t *testing.T) {
	smb := &hangingSmb{release: make(chan struct{})}
	h := testHub(t, Deps{BrokerRegistry: broker.Registry{}, Smb: smb})

	h.shutdownSmb(context.Background())

	require.Equal(t, int32(1), smb.kills.Load(), "a hung smb shutdown must be hard-killed")
}

func TestReloadAlreadyInProgress(t *testing.T) {
	block := make(chan struct{})
	auth := &blockingAuth{block: block}
	h := testHub(t, Deps{BrokerRegistry: broker.Registry{}, Auth: auth})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstResult string
	go func() {
		defer wg.Done()
		firstResult = h.Reload()
	}()

	require.Eventually(t, func() bool { return auth.entered.Load() }, time.Second, time.Millisecond)

	second := h.Reload()
	require.Equal(t, "cannot reload; already in progress", second)

	close(block)
	wg.Wait()
	require.Equal(t, "reload initiated", firstResult)
}

func TestReloadResetsAfterCompletion(t *testing.T) {
	h := testHub(t, Deps{BrokerRegistry: broker.Registry{}})
	require.Equal(t, "reload initiated", h.Reload())
	require.Equal(t, "reload initiated", h.Reload())
}

func TestWaitWorkersUpFailsStopsHubWhenNotIgnoringBindErrors(t *testing.T) {
	h := testHub(t, Deps{BrokerRegistry: broker.Registry{}, NSrv: 1})
	h.cfg.IgnEbindAll = false
	h.cfg.IgnEbind = false

	done := make(chan struct{})
	go func() {
		h.WaitWorkersUp()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitWorkersUp did not return")
	}

	require.Equal(t, 1, h.Retcode())
	h.mu.Lock()
	stopReq := h.stopReq
	h.mu.Unlock()
	require.True(t, stopReq)
}

func TestWaitWorkersUpIgnoresBindErrorsWhenConfigured(t *testing.T) {
	h := testHub(t, Deps{BrokerRegistry: broker.Registry{}, NSrv: 1})
	h.cfg.IgnEbindAll = true

	done := make(chan struct{})
	go func() {
		h.WaitWorkersUp()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitWorkersUp did not return")
	}

	require.Equal(t, 0, h.Retcode())
}

func TestWaitWorkersUpSucceedsWhenAllWorkersAck(t *testing.T) {
	h := testHub(t, Deps{BrokerRegistry: broker.Registry{}, NSrv: 1})
	h.cfg.IgnEbindAll = false
	h.cfg.IgnEbind = false

	h.CbHTTPSrvUp()

	h.WaitWorkersUp()

	require.Equal(t, 0, h.Retcode())
	h.mu.Lock()
	stopReq := h.stopReq
	h.mu.Unlock()
	require.False(t, stopReq)
}

func TestSignalEscalationKillsOnFourthGraceSignal(t *testing.T) {
	h := testHub(t, Deps{BrokerRegistry: broker.Registry{}})

	var killed int
	orig := killSelfFn
	killSelfFn = func() { killed++ }
	defer func() { killSelfFn = orig }()

	h.mu.Lock()
	h.stopping = true
	h.mu.Unlock()

	for i := 0; i < 3; i++ {
		h.handleSignal(terminationSignals[0])
		require.Equal(t, 0, killed, "grace signal %d must not kill", i+1)
	}

	h.handleSignal(terminationSignals[0])
	require.Equal(t, 1, killed, "the 4th signal after stopping must force a kill")
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	up := &collab.StubUp2k{}
	h := testHub(t, Deps{BrokerRegistry: broker.Registry{}, Up2k: up})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- h.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case rc := <-done:
		require.Equal(t, 0, rc)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	require.Equal(t, int32(1), up.ShutdownCalls.Load())
}

type blockingAuth struct {
	block   chan struct{}
	entered atomicBool
}

func (a *blockingAuth) Volumes(token string) []collab.Volume { return nil }
func (a *blockingAuth) HistPath(ptop string) (string, bool)  { return "", false }
func (a *blockingAuth) Reload() error {
	a.entered.Store(true)
	<-a.block
	return nil
}

type hangingSmb struct {
	release chan struct{}
	kills   atomic.Int32
	once    sync.Once
}

func (s *hangingSmb) Present() bool { return true }
func (s *hangingSmb) Shutdown(ctx context.Context) error {
	<-s.release
	return nil
}
func (s *hangingSmb) Kill() error {
	s.kills.Add(1)
	s.once.Do(func() { close(s.release) })
	return nil
}

type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (b *atomicBool) Store(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.v = v
}

func (b *atomicBool) Load() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}
