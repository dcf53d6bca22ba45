package broker

import (
	"sync"
	"sync/atomic"

	"github.com/clach04/copyparty/internal/metrics"
)

// Thr is the goroutine-pool backend: each worker is a goroutine
// reading its own job channel. Say/Ask select a worker by round-robin
// counter, which is fair over time and — unlike a single shared
// channel — lets Reload address every worker individually.
type Thr struct {
	registry Registry
	chans    []chan job
	counter  atomic.Uint64
	wg       sync.WaitGroup
	logf     LogFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// NewThr starts n worker goroutines dispatching through registry.
func NewThr(n int, registry Registry, logf LogFunc) *Thr {
	if n < 1 {
		n = 1
	}
	t := &Thr{
		registry: registry,
		chans:    make([]chan job, n),
		logf:     logf,
		closed:   make(chan struct{}),
	}
	for i := range t.chans {
		t.chans[i] = make(chan job, 16)
		t.wg.Add(1)
		go t.runWorker(i)
	}
	metrics.BrokerActiveWorkers.Set(float64(n))
	return t
}

func (t *Thr) runWorker(i int) {
	defer t.wg.Done()
	for j := range t.chans[i] {
		val, err := t.dispatch(j.dest, j.args)
		if j.reply != nil {
			j.reply <- result{val: val, err: err}
		}
	}
}

func (t *Thr) dispatch(dest string, args []any) (any, error) {
	fn, ok := t.registry[dest]
	if !ok {
		if dest == reloadDest {
			return nil, nil
		}
		return nil, errUnknownDest(dest)
	}
	metrics.BrokerTasksTotal.WithLabelValues(dest).Inc()
	return fn(args...)
}

func (t *Thr) Say(dest string, args ...any) {
	idx := int(t.counter.Add(1)-1) % len(t.chans)
	select {
	case t.chans[idx] <- job{dest: dest, args: args}:
	case <-t.closed:
	}
}

func (t *Thr) Ask(dest string, args ...any) ReplyHandle {
	idx := int(t.counter.Add(1)-1) % len(t.chans)
	reply := make(chan result, 1)
	select {
	case <-t.closed:
		return immediateReply(nil, errBrokerClosed)
	default:
	}
	select {
	case t.chans[idx] <- job{dest: dest, args: args, reply: reply}:
		return &replyHandle{ch: reply}
	case <-t.closed:
		return immediateReply(nil, errBrokerClosed)
	}
}

// Reload broadcasts to every worker in turn and waits for each ack,
// mirroring the blocking "wait for acknowledgements" contract.
func (t *Thr) Reload() {
	for _, ch := range t.chans {
		reply := make(chan result, 1)
		select {
		case ch <- job{dest: reloadDest, reply: reply}:
			<-reply
		case <-t.closed:
			return
		}
	}
}

func (t *Thr) Shutdown() {
	t.closeOnce.Do(func() {
		close(t.closed)
		for _, ch := range t.chans {
			close(ch)
		}
	})
	t.wg.Wait()
	metrics.BrokerActiveWorkers.Set(0)
}

func (t *Thr) NumWorkers() int { return len(t.chans) }

type errUnknownDest string

func (e errUnknownDest) Error() string { return "broker: no handler registered for " + string(e) }

type brokerClosedError struct{}

func (brokerClosedError) Error() string { return "broker: closed" }

var errBrokerClosed = brokerClosedError{}
