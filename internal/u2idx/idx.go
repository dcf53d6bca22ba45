// Package u2idx executes the search query language (spec §4.5) against
// each volume's upload catalog, grounded line-by-line on
// original_source/copyparty/u2idx.py's U2idx class.
package u2idx

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/clach04/copyparty/internal/catalog"
	"github.com/clach04/copyparty/internal/errs"
	"github.com/clach04/copyparty/internal/metrics"
	"github.com/clach04/copyparty/internal/query"
	"github.com/clach04/copyparty/internal/wark"
)

// LogFunc matches the hub-wide (source, message, color) log call shape.
type LogFunc func(source, message string, color any)

// Config carries the subset of hub configuration the search engine
// needs: the wark salt, the filekey salt, and the query timeout/hit
// ceiling (spec §4.5.2, §6.1 srch_time / srch_hits).
type Config struct {
	Salt     string
	FkSalt   string
	SrchTime time.Duration
	SrchHits int
}

// AuthRegistry resolves a volume's physical top path to the directory
// its upload history (and up2k.db catalog) lives in.
type AuthRegistry interface {
	HistPath(ptop string) (string, bool)
}

// Volume is the subset of per-volume state a search needs: its mount
// point (vtop), physical top (ptop), whether dotfiles are searchable,
// and the filekey suffix length to append to result paths (0 disables it).
type Volume struct {
	Vtop    string
	Ptop    string
	DotSrch bool
	FkLen   int
}

// Result is one matched upload, ready for JSON rendering by the caller.
type Result struct {
	MTime int64
	Size  int64
	Rp    string
	Tags  map[string]string
}

// Idx is the search engine. One Idx instance serves every volume of a
// running hub; a mutex enforces the single-active-query invariant the
// original's active_id/active_cur bookkeeping implied.
type Idx struct {
	cfg  Config
	auth AuthRegistry
	logf LogFunc

	// queryMu serializes Search/FSearch calls, mirroring the original's
	// single active_id/active_cur at a time.
	queryMu sync.Mutex

	// cacheMu guards cursors, which getCur/Reload/Shutdown touch even
	// while a query is in flight under queryMu.
	cacheMu sync.Mutex
	cursors map[string]*sql.DB
}

// New constructs a search engine bound to the auth registry used to
// resolve volumes' history paths.
func New(cfg Config, auth AuthRegistry, logf LogFunc) *Idx {
	if cfg.SrchTime <= 0 {
		cfg.SrchTime = 90 * time.Second
	}
	if cfg.SrchHits <= 0 {
		cfg.SrchHits = 1000
	}
	return &Idx{
		cfg:     cfg,
		auth:    auth,
		logf:    logf,
		cursors: map[string]*sql.DB{},
	}
}

func (x *Idx) log(msg string, color any) {
	if x.logf != nil {
		x.logf("u2idx", msg, color)
	}
}

// getCur returns the cached cursor for ptop, opening (and caching) one
// on first use. A nil, nil return means the volume has no catalog yet.
func (x *Idx) getCur(ptop string) (*sql.DB, error) {
	x.cacheMu.Lock()
	defer x.cacheMu.Unlock()

	if db, ok := x.cursors[ptop]; ok {
		return db, nil
	}

	histPath, ok := x.auth.HistPath(ptop)
	if !ok {
		x.log(fmt.Sprintf("no histpath for [%s]", ptop), nil)
		return nil, nil
	}

	if !catalog.Exists(histPath) {
		return nil, nil
	}

	db, err := catalog.Open(histPath, catalog.LogFunc(x.logf))
	if err != nil {
		return nil, fmt.Errorf("open catalog for %s: %w", ptop, err)
	}

	x.cursors[ptop] = db
	metrics.SearchOpenCursors.Set(float64(len(x.cursors)))
	return db, nil
}

// FSearch looks up the single upload whose content hash matches size
// and hashlist (spec §4.5.4: the up2k resume/dedupe lookup). It binds
// directly against the substr(w,1,16) index rather than going through
// the query compiler, since the wark is known exactly.
func (x *Idx) FSearch(ctx context.Context, vols []Volume, size int64, hashlist []string) ([]Result, error) {
	w := wark.FromHashlist(x.cfg.Salt, size, hashlist)
	expr := sq.Expr("substr(w,1,16) = ? and w = ?", w[:16], w)

	res, _, _, err := x.runQuery(ctx, vols, expr, nil, true, false, 99999)
	return res, err
}

// Search parses q with the query compiler and runs it across vols,
// returning matched results, the union of tag keys seen, and whether
// the hit count was truncated by lim or the srch_hits ceiling.
func (x *Idx) Search(ctx context.Context, vols []Volume, q string, lim int) ([]Result, []string, bool, error) {
	compiled, err := query.Compile(q)
	if err != nil {
		return nil, nil, false, errs.NewPebkac(400, "%v", err)
	}

	return x.runQuery(ctx, vols, nil, compiled, compiled.HaveUp, compiled.HaveMt, lim)
}

// runQuery mirrors U2idx.run_query: build the full select per volume
// (substituting the vtop placeholder), execute with a bounded context,
// dedupe by rendered path, decrement the shared limit, and finally
// collect each surviving hit's tag bundle.
func (x *Idx) runQuery(ctx context.Context, vols []Volume, staticExpr sq.Sqlizer, compiled *query.Compiled, haveUp, haveMt bool, lim int) (results []Result, keys []string, truncated bool, err error) {
	x.queryMu.Lock()
	defer x.queryMu.Unlock()

	start := time.Now()
	defer func() {
		if err != nil {
			err = errs.NewPebkac(500, "%v", err)
		}
		outcome := "ok"
		switch {
		case err != nil && ctx.Err() != nil:
			outcome = "cancelled"
		case err != nil:
			outcome = "error"
		case truncated:
			outcome = "truncated"
		}
		metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
		metrics.SearchQueryDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, x.cfg.SrchTime)
	defer cancel()

	if lim > x.cfg.SrchHits {
		lim = x.cfg.SrchHits
	}

	cols := "up.*"
	if haveMt {
		cols = "up.*, substr(up.w,1,16) mtw"
	}

	type hit struct {
		w   string
		res Result
	}

	var all []hit
	seenRP := map[string]bool{}
	taglist := map[string]bool{}
	remaining := lim
	truncated = false

	for _, vol := range vols {
		db, err := x.getCur(vol.Ptop)
		if err != nil {
			return nil, nil, false, err
		}
		if db == nil {
			continue
		}

		expr := staticExpr
		if compiled != nil {
			expr = compiled.Sqlizer(resolveVtop(compiled.Args(), vol.Vtop))
		}

		builder := sq.Select(cols).From("up")
		if expr != nil {
			builder = builder.Where(expr)
		}
		sqlText, args, err := builder.ToSql()
		if err != nil {
			return nil, nil, false, fmt.Errorf("build query: %w", err)
		}

		x.log(fmt.Sprintf("qs: %q %v", sqlText, args), nil)

		rows, err := db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return nil, nil, false, fmt.Errorf("query %s: %w", vol.Ptop, err)
		}

		err = scanRows(rows, vol, x.cfg.FkSalt, haveMt, func(r Result, dedupRp, w string) bool {
			if seenRP[dedupRp] {
				return true
			}

			remaining--
			if remaining < 0 {
				truncated = true
				return false
			}

			seenRP[dedupRp] = true
			all = append(all, hit{w: w, res: r})
			return true
		})
		rows.Close()
		if err != nil {
			return nil, nil, false, err
		}
	}

	results = make([]Result, 0, len(all))
	for i := range all {
		h := &all[i]
		tags, err := x.loadTags(ctx, vols, h.w)
		if err != nil {
			return nil, nil, false, err
		}
		for k := range tags {
			taglist[k] = true
		}
		h.res.Tags = tags
		results = append(results, h.res)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Rp < results[j].Rp })

	keys = make([]string, 0, len(taglist))
	for k := range taglist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return results, keys, truncated, nil
}

// resolveVtop substitutes VtopPlaceholder entries with vtop+"/", the
// per-volume value the original's "\nrd" sentinel stood in for.
func resolveVtop(args []any, vtop string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if _, ok := a.(query.VtopPlaceholder); ok {
			out[i] = vtop + "/"
			continue
		}
		out[i] = a
	}
	return out
}

// scanRows walks the result set for one volume, applying the dotfile
// policy, path rendering, dedupe (via the onHit callback, which owns
// the cross-volume seen-set and limit) and the optional filekey
// suffix. onHit's second argument is the dedupe key: the rendered path
// before any filekey suffix is appended, matching the original's
// "dedupe on rp, then append the per-row suffix" order, so two catalog
// rows that render the same visible path dedupe even if their filekey
// suffixes would otherwise differ. It stops early once onHit reports
// the limit was hit.
func scanRows(rows *sql.Rows, vol Volume, fkSalt string, haveMt bool, onHit func(Result, string, string) bool) error {
	for rows.Next() {
		var w, rd, fn, ip string
		var mt, sz, at int64
		var mtw string

		// cols mirrors the projection runQuery built: up.* (7 columns)
		// plus substr(up.w,1,16) mtw when the tag-exists subquery needs
		// it. The destination count must track that exactly, or Scan
		// fails every tag-scoped query.
		dest := []any{&w, &mt, &sz, &rd, &fn, &ip, &at}
		if haveMt {
			dest = append(dest, &mtw)
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		_, _, _ = ip, at, mtw // carried by the projection but not surfaced in Result

		rd, fn = decodePacked(rd, fn)

		rp := renderPath(vol.Vtop, rd, fn)
		if !vol.DotSrch && strings.Contains("/"+rp, "/.") {
			continue
		}

		res := Result{MTime: mt, Size: sz, Rp: rp}
		dedupRp := rp

		if vol.FkLen > 0 {
			suf, ok := filekeySuffix(vol, fkSalt, rd, fn, sz, vol.FkLen)
			if !ok {
				continue
			}
			res.Rp += suf
		}

		if !onHit(res, dedupRp, w[:min(16, len(w))]) {
			break
		}
	}
	return rows.Err()
}

func renderPath(vtop, rd, fn string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{vtop, rd, fn} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}

func filekeySuffix(vol Volume, fkSalt, rd, fn string, sz int64, fkLen int) (string, bool) {
	ap := filepath.Join(vol.Ptop, rd, fn)
	ino, ok := statIno(ap)
	if !ok {
		return "", false
	}
	key := wark.FileKey(fkSalt, ap, sz, ino)
	if fkLen < len(key) {
		key = key[:fkLen]
	}
	return "?k=" + key, true
}

// decodePacked reverses the "//"-prefixed sentinel up2k uses to store
// rd/fn components that aren't valid UTF-8 (sqlite's TEXT columns
// require it): the component is hex-encoded behind the sentinel, and
// untouched components pass through s3dec unchanged.
func decodePacked(rd, fn string) (string, string) {
	if strings.HasPrefix(rd, "//") || strings.HasPrefix(fn, "//") {
		rd, fn = s3dec(rd), s3dec(fn)
	}
	return rd, fn
}

func s3dec(s string) string {
	if !strings.HasPrefix(s, "//") {
		return s
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return s
	}
	return string(b)
}

// loadTags fetches the tag bundle for one wark, excluding the internal
// 'x' bookkeeping key, from whichever volume's cursor holds it.
func (x *Idx) loadTags(ctx context.Context, vols []Volume, w string) (map[string]string, error) {
	tags := map[string]string{}
	for _, vol := range vols {
		db, err := x.getCur(vol.Ptop)
		if err != nil || db == nil {
			continue
		}
		rows, err := db.QueryContext(ctx, `select k, v from mt where w = ? and +k != 'x'`, w)
		if err != nil {
			continue
		}
		found := false
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan tag: %w", err)
			}
			tags[k] = v
			found = true
		}
		rows.Close()
		if found {
			break
		}
	}
	return tags, nil
}

// Reload drops every cached cursor so the next search reopens against
// whatever catalogs exist after a config reload (volumes may have been
// added, removed, or rewritten).
func (x *Idx) Reload() {
	x.cacheMu.Lock()
	defer x.cacheMu.Unlock()
	for ptop, db := range x.cursors {
		_ = db.Close()
		delete(x.cursors, ptop)
	}
	metrics.SearchOpenCursors.Set(0)
}

// Shutdown closes every cached cursor.
func (x *Idx) Shutdown() {
	x.Reload()
}
