package collab

import (
	"context"
	"sync/atomic"
)

// StubUp2k is a no-op Up2k satisfying tests that don't care about
// upload indexing but need SvcHub's shutdown/reload ordering exercised.
type StubUp2k struct {
	ShutdownCalls atomic.Int32
	ReloadCalls   atomic.Int32
}

func (s *StubUp2k) Shutdown(ctx context.Context) error {
	s.ShutdownCalls.Add(1)
	return nil
}

func (s *StubUp2k) Reload() error {
	s.ReloadCalls.Add(1)
	return nil
}

// StubThumbSrv is a no-op ThumbSrv; Delay lets a test simulate a slow
// shutdown to exercise SvcHub's bounded wait.
type StubThumbSrv struct {
	Delay func(ctx context.Context)
}

func (s *StubThumbSrv) Shutdown(ctx context.Context) error {
	if s.Delay != nil {
		s.Delay(ctx)
	}
	return ctx.Err()
}

// StubAdapter is a no-op FtpAdapter/SmbAdapter. IsPresent defaults to
// false (adapter not configured); set it to exercise presence-gating.
type StubAdapter struct {
	IsPresent     bool
	ShutdownCalls atomic.Int32
	KillCalls     atomic.Int32
}

func (s *StubAdapter) Present() bool { return s.IsPresent }

func (s *StubAdapter) Shutdown(ctx context.Context) error {
	s.ShutdownCalls.Add(1)
	return nil
}

func (s *StubAdapter) Kill() error {
	s.KillCalls.Add(1)
	return nil
}

// StubAuthRegistry serves a fixed in-memory volume list.
type StubAuthRegistry struct {
	Vols        []Volume
	HistPaths   map[string]string
	ReloadCalls atomic.Int32
	ReloadErr   error
}

func (s *StubAuthRegistry) Volumes(token string) []Volume { return s.Vols }

func (s *StubAuthRegistry) HistPath(ptop string) (string, bool) {
	p, ok := s.HistPaths[ptop]
	return p, ok
}

func (s *StubAuthRegistry) Reload() error {
	s.ReloadCalls.Add(1)
	return s.ReloadErr
}
