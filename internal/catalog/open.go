// Package catalog owns the assumed SQLite schema for a volume's
// upload catalog (spec §6.2: tables up and mt) and the connection-open
// strategy U2Idx uses to obtain a per-volume cursor (spec §4.5.1).
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/qustavo/sqlhooks/v2"
	"modernc.org/sqlite"
)

// LogFunc matches the hub-wide three-argument log call shape
// (source, message, color) so catalog code can log through LogSink
// without importing it directly.
type LogFunc func(source, message string, color any)

var registerOnce sync.Once

// driverName is registered lazily, wrapping modernc.org/sqlite with a
// query-logging hook (spec §4.5.4: "self.log('qs: ...')" in the
// original run_query becomes a driver-level hook). The hook logs
// through the LogFunc given to the first Open call only; u2idx's
// runQuery also logs each query it builds on its own.
const driverName = "sqlite+hooks"

func ensureDriver(logf LogFunc) {
	registerOnce.Do(func() {
		sql.Register(driverName, sqlhooks.Wrap(&sqlite.Driver{}, &queryLogHook{logf: logf}))
	})
}

type queryLogHook struct{ logf LogFunc }

func (h *queryLogHook) Before(ctx context.Context, query string, args ...any) (context.Context, error) {
	if h.logf != nil {
		h.logf("u2idx", fmt.Sprintf("qs: %q %v", query, args), nil)
	}
	return ctx, nil
}

func (h *queryLogHook) After(ctx context.Context, query string, args ...any) (context.Context, error) {
	return ctx, nil
}

// DBPath returns the path to the up2k-style catalog database under a
// volume's history directory.
func DBPath(histPath string) string {
	return filepath.Join(histPath, "up2k.db")
}

// Exists reports whether the catalog database file for this volume
// has been created yet.
func Exists(histPath string) bool {
	_, err := os.Stat(DBPath(histPath))
	return err == nil
}

// Open implements the §4.5.1 cursor-open strategy: on Windows, if the
// WAL sidecar does not yet exist, first attempt a read-only + no-lock
// open (avoids stealing the write lock from an in-progress writer),
// probing with a schema query; fall back to a normal read/write open
// if that probe fails or we're not on Windows.
func Open(histPath string, logf LogFunc) (*sql.DB, error) {
	ensureDriver(logf)
	dbPath := DBPath(histPath)

	if runtime.GOOS == "windows" {
		if _, err := os.Stat(dbPath + "-wal"); err != nil {
			if db, err := tryReadOnly(dbPath, logf); err == nil {
				return db, nil
			}
		}
	}

	return openReadWrite(dbPath)
}

func tryReadOnly(dbPath string, logf LogFunc) (*sql.DB, error) {
	uri := fmt.Sprintf("file:%s?mode=ro&nolock=1", filepath.ToSlash(dbPath))
	db, err := sql.Open(driverName, uri)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `pragma table_info("up")`); err != nil {
		_ = db.Close()
		if logf != nil {
			logf("u2idx", fmt.Sprintf("could not open read-only: %s: %v", uri, err), 3)
		}
		return nil, err
	}
	if logf != nil {
		logf("u2idx", "ro: "+dbPath, nil)
	}
	return db, nil
}

func openReadWrite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
