// Package collab defines the narrow interfaces SvcHub uses to reach
// the rest of the file server (§1: "the rest... are treated as
// external collaborators invoked through narrow interfaces"). None of
// these concerns — upload indexing, thumbnailing, FTP/SMB framing —
// are implemented here; only the seams SvcHub's lifecycle needs.
package collab

import "context"

// Up2k is the upload indexer collaborator. SvcHub shuts it down during
// ordered shutdown and asks it to reopen its catalogs on reload.
type Up2k interface {
	Shutdown(ctx context.Context) error
	Reload() error
}

// ThumbSrv is the thumbnail worker pool. Shutdown is bounded: SvcHub
// gives it up to a fixed deadline before moving on regardless.
type ThumbSrv interface {
	Shutdown(ctx context.Context) error
}

// FtpAdapter is the optional FTP listener. Present reports whether the
// adapter was configured at all (shutdown is skipped entirely when not).
type FtpAdapter interface {
	Present() bool
	Shutdown(ctx context.Context) error
}

// SmbAdapter is the optional SMB listener. Like FtpAdapter its shutdown
// is presence-gated, with a hard-kill backstop SvcHub enforces itself.
type SmbAdapter interface {
	Present() bool
	Shutdown(ctx context.Context) error
	Kill() error
}

// Volume is a minimal snapshot of one configured share: its mount
// point, physical path, and the dotfile/filekey search flags U2Idx needs.
type Volume struct {
	Vtop    string
	Ptop    string
	DotSrch bool
	FkLen   int
}

// AuthRegistry resolves volumes for the caller's credentials and the
// physical top -> history path mapping U2Idx's cursor cache needs.
// Reload re-reads volume/account definitions; SvcHub calls it under
// its own reload guard alongside the indexer and broker reloads.
type AuthRegistry interface {
	Volumes(token string) []Volume
	HistPath(ptop string) (string, bool)
	Reload() error
}

// TcpListener is the minimal surface SvcHub needs from whatever is
// actually accepting connections (HTTP/FTP/SMB), so it can ask for an
// orderly close during shutdown without knowing the protocol.
type TcpListener interface {
	Close() error
}
