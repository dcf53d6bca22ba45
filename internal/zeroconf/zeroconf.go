// Package zeroconf starts and supervises the mDNS and SSDP responders
// that let LAN clients discover the hub without a configured address
// (§4.3). Responders are best-effort: a startup failure is logged and
// never propagates to SvcHub.
package zeroconf

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-co-op/gocron/v2"

	"github.com/clach04/copyparty/internal/errs"
	"github.com/clach04/copyparty/internal/metrics"
)

// LogFunc matches logsink's Log signature.
type LogFunc func(source, message string, color any)

// reannounceInterval is how often a live responder re-sends its
// presence announcement, independent of any restart.
const reannounceInterval = 5 * time.Minute

// responder is the minimal shape both the mDNS and SSDP backends
// implement: a blocking run loop plus a best-effort, idempotent stop.
type responder interface {
	run(ctx context.Context)
	announce()
	stop()
}

// Mgr owns the mDNS/SSDP responder lifecycle and the generation
// counter that lets a just-stopped responder's stray callbacks be
// told apart from the current one.
type Mgr struct {
	mu  sync.Mutex
	gen int64

	mdns responder
	ssdp responder

	cancelMdns context.CancelFunc
	cancelSsdp context.CancelFunc

	sched gocron.Scheduler
	logf  LogFunc
}

// New creates a manager. logf may be nil.
func New(logf LogFunc) *Mgr {
	return &Mgr{logf: logf}
}

// Start launches the requested responders under a fresh generation.
// Any previously running responder is stopped first, best-effort.
func (m *Mgr) Start(mdnsOn, ssdpOn bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	gen := m.gen
	metrics.ZeroconfGeneration.Set(float64(gen))

	if m.sched == nil {
		sched, err := gocron.NewScheduler()
		if err == nil {
			m.sched = sched
			sched.Start()
		} else if m.logf != nil {
			m.logf("zeroconf", "scheduler startup failed: "+err.Error(), nil)
		}
	}

	if mdnsOn {
		m.restart(&m.mdns, &m.cancelMdns, "mdns", gen, newMDNSResponder)
	}
	if ssdpOn {
		m.restart(&m.ssdp, &m.cancelSsdp, "ssdp", gen, newSSDPResponder)
	}
}

type responderFactory func(gen int64, logf LogFunc) (responder, error)

func (m *Mgr) restart(slot *responder, cancelSlot *context.CancelFunc, proto string, gen int64, factory responderFactory) {
	if *slot != nil {
		(*slot).stop()
	}
	if *cancelSlot != nil {
		(*cancelSlot)()
	}

	r, err := spawnWithRetry(proto, gen, m.logf, factory)
	if err != nil {
		metrics.ZeroconfUp.WithLabelValues(proto).Set(0)
		if m.logf != nil {
			m.logf("zeroconf", (&errs.ZeroconfStartFail{Proto: proto, Cause: err}).Error(), 3)
		}
		*slot = nil
		*cancelSlot = nil
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	*slot = r
	*cancelSlot = cancel
	go r.run(ctx)
	metrics.ZeroconfUp.WithLabelValues(proto).Set(1)

	if m.sched != nil {
		curGen := gen
		curR := r
		_, _ = m.sched.NewJob(
			gocron.DurationJob(reannounceInterval),
			gocron.NewTask(func() {
				m.mu.Lock()
				stillCurrent := (proto == "mdns" && m.gen == curGen && m.mdns == curR) ||
					(proto == "ssdp" && m.gen == curGen && m.ssdp == curR)
				m.mu.Unlock()
				if stillCurrent {
					curR.announce()
				}
			}),
		)
	}
}

// spawnWithRetry runs the startup probe for a responder with a short
// retry budget (grounded on the hub-reconnect backoff shape, but with
// a 250ms initial interval and a 2s cap since startup failures here
// are rarely transient network races): three attempts, then it gives up.
func spawnWithRetry(proto string, gen int64, logf LogFunc, factory responderFactory) (responder, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		r, err := factory(gen, logf)
		if err == nil {
			return r, nil
		}
		lastErr = err
		if logf != nil {
			logf("zeroconf", proto+" startup attempt failed, retrying", nil)
		}
		time.Sleep(b.NextBackOff())
	}
	return nil, lastErr
}

// Stop halts both responders, best-effort, and stops the re-announce
// scheduler. Safe to call when nothing is running.
func (m *Mgr) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mdns != nil {
		m.mdns.stop()
		m.mdns = nil
	}
	if m.cancelMdns != nil {
		m.cancelMdns()
		m.cancelMdns = nil
	}
	if m.ssdp != nil {
		m.ssdp.stop()
		m.ssdp = nil
	}
	if m.cancelSsdp != nil {
		m.cancelSsdp()
		m.cancelSsdp = nil
	}
	metrics.ZeroconfUp.WithLabelValues("mdns").Set(0)
	metrics.ZeroconfUp.WithLabelValues("ssdp").Set(0)

	if m.sched != nil {
		_ = m.sched.Shutdown()
		m.sched = nil
	}
}

// Generation reports the current restart generation.
func (m *Mgr) Generation() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}
