// Package svchub implements the top-level lifecycle supervisor (spec
// §4.4): ordered construction, signal-driven shutdown with grace-then-
// kill escalation, guarded reload, the worker-up barrier, and
// zero-configuration service startup. It composes the broker, zeroconf
// manager, log sink, search engine and the narrow out-of-scope
// collaborator interfaces defined in internal/collab, grounded on
// original_source/copyparty/svchub.py's SvcHub class and hub/server.go's
// Serve(ctx) shutdown idiom.
package svchub

import (
	"fmt"
	"sync"
	"time"

	"github.com/clach04/copyparty/internal/broker"
	"github.com/clach04/copyparty/internal/collab"
	"github.com/clach04/copyparty/internal/config"
	"github.com/clach04/copyparty/internal/logsink"
	"github.com/clach04/copyparty/internal/u2idx"
	"github.com/clach04/copyparty/internal/zeroconf"
)

// LogFunc matches logsink's Log signature so every component the hub
// wires shares one call shape.
type LogFunc func(source, message string, color any)

// Deps bundles the already-constructed collaborators and broker
// construction inputs SvcHub composes (spec §4.4 step 5-6). Everything
// protocol-shaped (HTTP/FTP/SMB framing, thumbnail rendering) is out
// of scope and reached only through the collab interfaces.
type Deps struct {
	Auth     collab.AuthRegistry
	Listener collab.TcpListener
	Up2k     collab.Up2k
	Thumb    collab.ThumbSrv  // nil when no_thumb
	Ftp      collab.FtpAdapter // nil when not configured
	Smb      collab.SmbAdapter // nil when not configured
	Idx      *u2idx.Idx

	// BrokerRegistry is the Say/Ask destination table thread workers
	// dispatch through. Subprocess workers do not receive it; they use
	// whatever registry the child passes to broker.ServeWorker.
	BrokerRegistry broker.Registry
	// BinPath is this process's own executable, used to re-exec
	// subprocess workers when the multi-process backend is selected.
	BinPath string

	// NSrv is the number of listening sockets each worker binds
	// (spec §4.4 "httpsrv_up to reach num_workers * nsrv").
	NSrv int
}

// Hub is the supervisor. One Hub exists per running process.
type Hub struct {
	cfg  config.Config
	deps Deps
	sink *logsink.Sink
	logf LogFunc

	broker   broker.Broker
	zc       *zeroconf.Mgr
	selector broker.Selector

	gpwd *Garda
	g404 *Garda

	mu        sync.Mutex
	cond      *sync.Cond
	stopReq   bool
	stopping  bool
	stopped   bool
	reloadReq bool
	reloading bool
	retcode   int
	graceLeft int

	httpsrvUp int

	shutdownOnce sync.Once
}

// New performs the ordered construction from spec §4.4: it logs the
// normalization warnings config.Normalize already computed, applies
// the IP-ban counters, decides (and builds) the broker backend, and
// wires every collaborator. cfg must already be normalized.
func New(cfg config.Config, warnings []string, deps Deps, sink *logsink.Sink, logf LogFunc) (*Hub, error) {
	h := &Hub{
		cfg:       cfg,
		deps:      deps,
		sink:      sink,
		logf:      logf,
		gpwd:      NewGarda(""),
		g404:      NewGarda(cfg.Ban404),
		graceLeft: 3,
	}
	h.cond = sync.NewCond(&h.mu)

	for _, w := range warnings {
		h.log("root", w, 3)
	}

	numWorkers := cfg.Raw.J
	if numWorkers < 1 {
		numWorkers = 1
	}

	useProc, err := h.selector.Select(numWorkers, h.log)
	if err != nil {
		// Fall back to threads; the selector already logged the reason.
		useProc = false
	}

	var b broker.Broker
	if useProc && deps.BinPath != "" {
		b, err = broker.NewProc(numWorkers, deps.BinPath, h.log)
		if err != nil {
			h.log("root", fmt.Sprintf("process broker failed, falling back to threads: %v", err), 3)
			b = broker.NewThr(numWorkers, deps.BrokerRegistry, h.log)
		}
	} else {
		b = broker.NewThr(numWorkers, deps.BrokerRegistry, h.log)
	}
	h.broker = b

	h.zc = zeroconf.New(h.log)

	return h, nil
}

func (h *Hub) log(source, msg string, color any) {
	if h.logf != nil {
		h.logf(source, msg, color)
	}
}

// Broker exposes the constructed broker for callers that need to
// dispatch work (e.g. cb_httpsrv_up acks from HTTP workers).
func (h *Hub) Broker() broker.Broker { return h.broker }

// Idx exposes the search engine for protocol adapters.
func (h *Hub) Idx() *u2idx.Idx { return h.deps.Idx }

// Gpwd and G404 expose the ban-tracking limiters for the (out of
// scope) HTTP/FTP adapters to report offenses against.
func (h *Hub) Gpwd() *Garda { return h.gpwd }
func (h *Hub) G404() *Garda { return h.g404 }

// StartZeroconf starts the mDNS/SSDP responders, bumping the
// generation counter (spec §4.3). Zms (assembled by config.Normalize)
// records which protocols are being announced; whether mDNS/SSDP
// themselves run is controlled by the zm/zs raw flags.
func (h *Hub) StartZeroconf() {
	h.zc.Start(h.cfg.Raw.Zm, h.cfg.Raw.Zs)
}

// CbHTTPSrvUp records one worker's "listener bound" acknowledgement
// (spec §4.4's httpsrv_up counter, driven by the broker's cb_httpsrv_up
// destination in the original).
func (h *Hub) CbHTTPSrvUp() {
	h.mu.Lock()
	h.httpsrvUp++
	h.mu.Unlock()
}

// fullBindGrace/ignBindGrace are the two worker-up barrier waits (spec
// §4.4: "1s if ignore all bind errors; 5s otherwise"), kept as
// variables so tests can shrink them.
var (
	fullBindGrace = 5 * time.Second
	ignBindGrace  = 1 * time.Second
)

// WaitWorkersUp blocks the configured grace period, then checks
// whether every worker's listener(s) came up (spec §4.4 "worker-up
// barrier"). If short, and bind-error tolerance is off, it sets
// retcode=1 and self-terminates by requesting shutdown.
func (h *Hub) WaitWorkersUp() {
	grace := fullBindGrace
	if h.cfg.IgnEbindAll {
		grace = ignBindGrace
	}
	time.Sleep(grace)

	expected := h.broker.NumWorkers() * h.deps.NSrv
	h.mu.Lock()
	up := h.httpsrvUp
	h.mu.Unlock()

	failed := expected - up
	if failed <= 0 {
		return
	}

	if h.cfg.IgnEbindAll || h.cfg.IgnEbind {
		return
	}

	h.log("root", fmt.Sprintf("%d/%d workers failed to start", failed, expected), 1)
	h.mu.Lock()
	h.retcode = 1
	h.mu.Unlock()
	h.RequestStop()
}

// RequestStop sets stop_req and wakes the run loop, the Go analogue of
// the original's SIGTERM self-kick from a failed worker-up barrier.
func (h *Hub) RequestStop() {
	h.mu.Lock()
	h.stopReq = true
	h.mu.Unlock()
	h.cond.Broadcast()
}
