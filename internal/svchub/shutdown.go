package svchub

import (
	"context"
	"time"

	"github.com/clach04/copyparty/internal/metrics"
)

// Shutdown runs the ordered shutdown sequence (spec §4.4). It is
// idempotent: only the first call performs the sequence: later
// concurrent calls return once the first has finished.
func (h *Hub) Shutdown(ctx context.Context) {
	h.shutdownOnce.Do(func() { h.doShutdown(ctx) })
}

// Stopped reports whether the shutdown sequence has completed.
func (h *Hub) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Retcode returns the process exit code accumulated during shutdown.
func (h *Hub) Retcode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retcode
}

func (h *Hub) doShutdown(ctx context.Context) {
	start := time.Now()

	h.mu.Lock()
	h.stopping = true
	h.stopReq = true
	h.mu.Unlock()
	h.cond.Broadcast()

	h.log("root", "OPYTHAT", nil)

	// 2. mDNS/SSDP stop asynchronously, sharing one 0.5s grace deadline
	// before the hub proceeds regardless (spec §4.4 step 2).
	zcDeadline := time.Now().Add(500 * time.Millisecond)
	go h.zc.Stop()
	if remain := time.Until(zcDeadline); remain > 0 {
		time.Sleep(remain)
	}

	// 3. Broker: stop accepting work, join workers.
	h.broker.Shutdown()

	// 4. TCP listener.
	if h.deps.Listener != nil {
		if err := h.deps.Listener.Close(); err != nil {
			h.log("root", "tcp listener close: "+err.Error(), 3)
		}
	}

	// 5. Indexer (upload index collaborator, then the search engine's
	// own cursor cache).
	if h.deps.Up2k != nil {
		if err := h.deps.Up2k.Shutdown(ctx); err != nil {
			h.log("root", "up2k shutdown: "+err.Error(), 3)
		}
	}
	if h.deps.Idx != nil {
		h.deps.Idx.Shutdown()
	}

	// 6. Thumbnailer: bounded wait, "waiting" notice after 150ms.
	if h.deps.Thumb != nil {
		h.shutdownThumb(ctx)
	}

	// FTP has no bounded-wait requirement in the spec; shut it down
	// alongside SMB, presence-gated like SMB.
	if h.deps.Ftp != nil && h.deps.Ftp.Present() {
		if err := h.deps.Ftp.Shutdown(ctx); err != nil {
			h.log("root", "ftp shutdown: "+err.Error(), 3)
		}
	}

	// 7. SMB: shutdown with a parallel hard-kill timer as insurance.
	if h.deps.Smb != nil && h.deps.Smb.Present() {
		h.shutdownSmb(ctx)
	}

	h.log("root", "nailed it", nil)

	// 8. Close the log sink last; exit with the accumulated return code.
	if h.sink != nil {
		_ = h.sink.Close()
	}

	metrics.ShutdownDuration.Observe(time.Since(start).Seconds())

	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.cond.Broadcast()
}

func (h *Hub) shutdownThumb(ctx context.Context) {
	done := make(chan error, 1)
	go func() { done <- h.deps.Thumb.Shutdown(ctx) }()

	notice := time.After(150 * time.Millisecond)
	timeout := time.After(10 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				h.log("root", "thumbsrv shutdown: "+err.Error(), 3)
			}
			return
		case <-notice:
			h.log("root", "waiting for thumbsrv (10sec)...", nil)
			notice = nil
		case <-timeout:
			h.log("root", "thumbsrv shutdown timed out", 3)
			return
		}
	}
}

func (h *Hub) shutdownSmb(ctx context.Context) {
	killTimer := time.AfterFunc(1*time.Second, func() {
		_ = h.deps.Smb.Kill()
	})
	defer killTimer.Stop()

	if err := h.deps.Smb.Shutdown(ctx); err != nil {
		h.log("root", "smb shutdown: "+err.Error(), 3)
	}
}
