package svchub

import "context"

// Run is the top-level blocking entrypoint (spec §4.4): it starts
// zero-conf, spawns the worker-up barrier, registers signal handling,
// and blocks until a stop is requested (by signal, by ctx cancellation,
// or by WaitWorkersUp's self-kick), servicing reload requests as they
// arrive. It returns once the full ordered shutdown sequence has
// completed, with the accumulated exit code.
func (h *Hub) Run(ctx context.Context) int {
	h.StartZeroconf()
	go h.WaitWorkersUp()

	stopListening := h.listenSignals()
	defer stopListening()

	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			h.RequestStop()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	h.mu.Lock()
	for !h.stopReq {
		h.cond.Wait()
		if h.reloadReq {
			h.reloadReq = false
			h.mu.Unlock()
			h.Reload()
			h.mu.Lock()
		}
	}
	h.mu.Unlock()

	h.Shutdown(context.Background())

	return h.Retcode()
}
