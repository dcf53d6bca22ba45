package broker

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/clach04/copyparty/internal/id"
	"github.com/clach04/copyparty/internal/metrics"
)

func init() {
	// gob needs every concrete type that will ever flow through an
	// any-typed Args/Val slot registered up front. These cover the
	// primitive shapes broker call sites are expected to use; a
	// caller passing a custom struct must gob.Register it itself.
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]string{})
	gob.Register([]int64{})
	gob.Register(map[string]string{})
}

// WorkerEnvVar, when set in a child's environment, tells cmd/filehub's
// main to call ServeWorker instead of starting the hub. This is the
// "hidden flag" re-exec handshake: the parent and child are the same
// binary, distinguished only by this marker.
const WorkerEnvVar = "FILEHUB_BROKER_WORKER"

// wireRequest/wireResponse are the gob-encoded frames exchanged over a
// worker child's stdin/stdout. Args/Val must be concrete types gob
// can encode; interface values need gob.Register.
type wireRequest struct {
	// ReqID correlates a request with its logged outcome; it plays no
	// role in matching replies (each child answers exactly one
	// in-flight request at a time) but makes respawn/retry logs
	// traceable across the pipe boundary.
	ReqID string
	Dest  string
	Args  []any
}

type wireResponse struct {
	Val any
	Err string
}

// Proc is the subprocess-pool backend: each worker is a re-exec'd
// copy of the current binary, fed requests and returning replies over
// a pipe. One request is in flight per child at a time, so replies
// need no correlation ID — order is preserved by the child's own
// single-threaded read-dispatch-write loop.
type Proc struct {
	procs   []*procWorker
	counter atomic.Uint64
	logf    LogFunc

	closeOnce sync.Once
	closed    chan struct{}
}

type procWorker struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	enc     *gob.Encoder
	dec     *gob.Decoder
	stdin   io.WriteCloser
	binPath string
	logf    LogFunc
	closed  *atomic.Bool
}

// NewProc spawns n worker subprocesses of binPath, each re-exec'd with
// WorkerEnvVar set so it enters ServeWorker instead of the normal
// entrypoint.
func NewProc(n int, binPath string, logf LogFunc) (*Proc, error) {
	if n < 1 {
		n = 1
	}
	p := &Proc{logf: logf, closed: make(chan struct{})}
	for i := 0; i < n; i++ {
		w, err := spawnProcWorker(binPath, logf)
		if err != nil {
			p.Shutdown()
			return nil, err
		}
		p.procs = append(p.procs, w)
	}
	metrics.BrokerActiveWorkers.Set(float64(n))
	return p, nil
}

func spawnProcWorker(binPath string, logf LogFunc) (*procWorker, error) {
	cmd := exec.Command(binPath)
	cmd.Env = append(os.Environ(), WorkerEnvVar+"=1")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &procWorker{
		cmd:     cmd,
		enc:     gob.NewEncoder(stdin),
		dec:     gob.NewDecoder(stdout),
		stdin:   stdin,
		binPath: binPath,
		logf:    logf,
		closed:  new(atomic.Bool),
	}, nil
}

// call sends one request and blocks for its reply. On any transport
// error it respawns the child with an exponential backoff (grounded
// on the hub-reconnect pattern: 1s initial, 60s cap, 2x, 20% jitter)
// before returning the error to the caller — the next call retries
// against the freshly respawned child.
func (w *procWorker) call(dest string, args []any) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return nil, errBrokerClosed
	}

	reqID := id.Generate()
	if err := w.enc.Encode(wireRequest{ReqID: reqID, Dest: dest, Args: args}); err != nil {
		if w.logf != nil {
			w.logf("broker", "request "+reqID+" failed to send: "+err.Error(), nil)
		}
		w.respawn()
		return nil, err
	}
	var resp wireResponse
	if err := w.dec.Decode(&resp); err != nil {
		if w.logf != nil {
			w.logf("broker", "request "+reqID+" got no reply: "+err.Error(), nil)
		}
		w.respawn()
		return nil, err
	}
	if resp.Err != "" {
		return resp.Val, errors.New(resp.Err)
	}
	return resp.Val, nil
}

func (w *procWorker) respawn() {
	if w.logf != nil {
		w.logf("broker", "worker pipe broken, respawning: pid="+pidString(w.cmd), nil)
	}
	_ = w.stdin.Close()
	_ = w.cmd.Process.Kill()
	_, _ = w.cmd.Process.Wait()

	bo := newRespawnBackoff()
	for {
		fresh, err := spawnProcWorker(w.binPath, w.logf)
		if err == nil {
			w.cmd, w.enc, w.dec, w.stdin = fresh.cmd, fresh.enc, fresh.dec, fresh.stdin
			return
		}
		d := bo.NextBackOff()
		if w.logf != nil {
			w.logf("broker", "respawn failed, retrying", nil)
		}
		time.Sleep(d)
	}
}

func newRespawnBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

func pidString(cmd *exec.Cmd) string {
	if cmd == nil || cmd.Process == nil {
		return "?"
	}
	return intToStr(cmd.Process.Pid)
}

func intToStr(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (p *Proc) pick() *procWorker {
	idx := int(p.counter.Add(1)-1) % len(p.procs)
	return p.procs[idx]
}

func (p *Proc) Say(dest string, args ...any) {
	w := p.pick()
	go func() {
		metrics.BrokerTasksTotal.WithLabelValues(dest).Inc()
		_, _ = w.call(dest, args)
	}()
}

func (p *Proc) Ask(dest string, args ...any) ReplyHandle {
	w := p.pick()
	metrics.BrokerTasksTotal.WithLabelValues(dest).Inc()
	val, err := w.call(dest, args)
	return immediateReply(val, err)
}

func (p *Proc) Reload() {
	for _, w := range p.procs {
		_, _ = w.call(reloadDest, nil)
	}
}

func (p *Proc) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for _, w := range p.procs {
			w.closed.Store(true)
			_ = w.stdin.Close()
			if w.cmd.Process != nil {
				_ = w.cmd.Process.Kill()
				_, _ = w.cmd.Process.Wait()
			}
		}
	})
	metrics.BrokerActiveWorkers.Set(0)
}

func (p *Proc) NumWorkers() int { return len(p.procs) }

// ServeWorker runs as the child side of the process backend: it reads
// wireRequests from stdin, dispatches through registry, and writes
// wireResponses to stdout until stdin closes. cmd/filehub's main
// calls this and exits when it returns, instead of starting the hub,
// whenever WorkerEnvVar is set.
func ServeWorker(ctx context.Context, registry Registry) error {
	return serveWorker(ctx, registry, os.Stdin, os.Stdout)
}

func serveWorker(ctx context.Context, registry Registry, r io.Reader, w io.Writer) error {
	dec := gob.NewDecoder(r)
	enc := gob.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var req wireRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var resp wireResponse
		if fn, ok := registry[req.Dest]; ok {
			val, err := fn(req.Args...)
			resp.Val = val
			if err != nil {
				resp.Err = err.Error()
			}
		} else if req.Dest == reloadDest {
			resp = wireResponse{}
		} else {
			resp.Err = errUnknownDest(req.Dest).Error()
		}

		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
}
