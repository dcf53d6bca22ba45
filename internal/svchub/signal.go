package svchub

import (
	"os"
	"os/signal"
)

// killSelfFn is killSelf behind a variable so tests can observe the
// grace-then-kill escalation without actually terminating the test
// process.
var killSelfFn = killSelf

// listenSignals registers the process-wide signal handler and returns
// a stop function that unregisters it. Signal handlers never raise
// (spec §7): each delivered signal only flips a flag and notifies the
// stop condition, mirroring "Signal handling is naturally a message"
// (spec §9) — the OS callback is reduced to posting an event.
func (h *Hub) listenSignals() func() {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, allSignals...)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-ch:
				if !ok {
					return
				}
				h.handleSignal(sig)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// handleSignal implements the grace-then-kill escalation (spec §4.4):
// the first N=3 extra termination signals received after shutdown has
// begun are swallowed; the (N+1)-th forces an immediate kill.
func (h *Hub) handleSignal(sig os.Signal) {
	h.mu.Lock()

	if h.stopping {
		if h.graceLeft <= 0 {
			h.mu.Unlock()
			h.log("root", "forcing immediate shutdown", nil)
			killSelfFn()
			return
		}
		h.graceLeft--
		h.mu.Unlock()
		return
	}

	if isReloadSignal(sig) {
		h.reloadReq = true
	} else {
		h.stopReq = true
	}
	h.mu.Unlock()
	h.cond.Broadcast()
}
