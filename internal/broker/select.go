package broker

import (
	"os"
	"runtime"
	"sync"

	"github.com/clach04/copyparty/internal/errs"
)

// Selector decides, once per process, which backend construction
// should use. The decision is cached so repeated calls (e.g. from a
// guarded reload path) never re-probe.
type Selector struct {
	once     sync.Once
	useProc  bool
	probeErr error
}

// Select runs the backend-selection probe (§4.2): num_workers must
// exceed 1, the runtime must report more than one usable CPU, and a
// value must round-trip through a real pipe the way it would for the
// process backend. Any failure falls back to the thread backend and
// is logged, never fatal.
func (s *Selector) Select(numWorkers int, logf LogFunc) (useProc bool, err error) {
	s.once.Do(func() {
		s.useProc, s.probeErr = probe(numWorkers)
		if s.probeErr != nil && logf != nil {
			logf("broker", s.probeErr.Error(), nil)
			logf("broker", "falling back to thread backend", nil)
		}
	})
	return s.useProc, s.probeErr
}

func probe(numWorkers int) (bool, error) {
	if numWorkers <= 1 {
		return false, nil
	}
	if runtime.NumCPU() <= 1 {
		return false, &errs.BrokerUnavailable{Reason: "only one CPU detected"}
	}
	if _, err := os.Executable(); err != nil {
		return false, &errs.BrokerUnavailable{Reason: "cannot resolve own executable for re-exec: " + err.Error()}
	}
	if err := roundTripProbe(); err != nil {
		return false, &errs.BrokerUnavailable{Reason: "pipe round-trip failed: " + err.Error()}
	}
	return true, nil
}

// roundTripProbe stands in for the Python multiprocessing.Queue
// put/get sanity check: a real OS pipe plus a goroutine, rather than a
// subprocess, since the full re-exec probe happens lazily on the
// first actual NewProc call.
func roundTripProbe() error {
	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	defer r.Close()
	defer w.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 3)
		_, err := r.Read(buf)
		if err != nil {
			done <- err
			return
		}
		if string(buf) != "foo" {
			done <- errRoundTrip
			return
		}
		done <- nil
	}()

	if _, err := w.Write([]byte("foo")); err != nil {
		return err
	}
	return <-done
}

type roundTripError string

func (e roundTripError) Error() string { return string(e) }

const errRoundTrip = roundTripError("round-trip probe returned unexpected value")
