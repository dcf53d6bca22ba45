// Package logsink implements the hub's single serialized log stream
// (spec §4.1): one mutex orders every write, a UTC day banner is
// emitted before the first message of a new day, the file sink never
// sees ANSI escapes, and at each UTC day change the log-file name is
// re-rendered and the file reopened if the name differs. A name that
// changes within a day (e.g. through %H) is only picked up at the next
// day change.
package logsink

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mattn/go-isatty"
)

var ansiRe = regexp.MustCompile("\x1b\\[[0-9;]*m")

// dateTokens are the strftime-style tokens the log filename template
// may contain; when any of these is present, openLogFile picks a fresh
// ".N" name instead of appending to an existing file.
var dateTokens = []string{"%Y", "%m", "%d", "%H", "%M", "%S"}

// Config configures a Sink.
type Config struct {
	// Template is the log-file name, possibly containing %Y %m %d %H
	// %M %S tokens. Empty disables the file sink.
	Template string
	// Disabled puts the sink in "disabled" mode: writes go only to the
	// file sink, never to stdout.
	Disabled bool
	// NoAnsi forces the stdout stream to be treated like the file sink
	// (no color, escapes stripped) even when stdout is a TTY.
	NoAnsi bool
	// Stdout is the writer used in enabled mode. Defaults to os.Stdout.
	Stdout io.Writer
	// Now returns the current time; overridable for tests.
	Now func() time.Time
}

// Sink is the process-wide log stream described by spec §4.1.
type Sink struct {
	mu       sync.Mutex
	tmpl     string
	disabled bool
	noAnsi   bool
	stdout   io.Writer
	now      func() time.Time

	file      io.WriteCloser
	baseFn    string // name the current file was opened with (post date-render)
	nextDay   int64  // unix seconds of the next UTC midnight
}

// New creates a Sink and opens the initial log file (if Template is set).
func New(cfg Config) (*Sink, error) {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now() }
	}
	s := &Sink{
		tmpl:     cfg.Template,
		disabled: cfg.Disabled,
		noAnsi:   cfg.NoAnsi,
		stdout:   cfg.Stdout,
		now:      cfg.Now,
	}
	if s.tmpl != "" {
		if err := s.openLogFile(); err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
	}
	return s, nil
}

func renderName(tmpl string, t time.Time) string {
	t = t.UTC()
	repl := strings.NewReplacer(
		"%Y", fmt.Sprintf("%04d", t.Year()),
		"%m", fmt.Sprintf("%02d", int(t.Month())),
		"%d", fmt.Sprintf("%02d", t.Day()),
		"%H", fmt.Sprintf("%02d", t.Hour()),
		"%M", fmt.Sprintf("%02d", t.Minute()),
		"%S", fmt.Sprintf("%02d", t.Second()),
	)
	return repl.Replace(tmpl)
}

func hasDateToken(tmpl string) bool {
	for _, tok := range dateTokens {
		if strings.Contains(tmpl, tok) {
			return true
		}
	}
	return false
}

// openLogFile renders the current template, resolves a collision by
// appending ".N" when the template has date tokens (otherwise an
// existing file is appended to), and opens the resulting path. Names ending in
// ".zst" are transparently compressed.
func (s *Sink) openLogFile() error {
	name := renderName(s.tmpl, s.now())
	selected := name
	if hasDateToken(s.tmpl) {
		ctr := 0
		for {
			if _, err := os.Stat(selected); err != nil {
				break
			}
			ctr++
			selected = fmt.Sprintf("%s.%d", name, ctr)
		}
	}

	f, err := os.OpenFile(selected, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	var wc io.WriteCloser = f
	if strings.HasSuffix(strings.ToLower(selected), ".zst") {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return err
		}
		wc = &zstdFileCloser{enc: zw, f: f}
	}

	s.file = wc
	s.baseFn = name
	return nil
}

type zstdFileCloser struct {
	enc *zstd.Encoder
	f   *os.File
}

func (z *zstdFileCloser) Write(p []byte) (int, error) { return z.enc.Write(p) }
func (z *zstdFileCloser) Close() error {
	if err := z.enc.Close(); err != nil {
		_ = z.f.Close()
		return err
	}
	return z.f.Close()
}

// colorize applies a palette index (int), a bare ANSI escape prefix
// (string starting with \x1b), or a plain SGR code (string) to msg,
// matching the Python c-parameter overloading in _log_enabled.
func colorize(msg string, color any) string {
	switch c := color.(type) {
	case nil:
		return msg
	case int:
		if c == 0 {
			return msg
		}
		return fmt.Sprintf("\x1b[3%dm%s\x1b[0m", c, msg)
	case string:
		if c == "" {
			return msg
		}
		if strings.Contains(c, "\x1b") {
			return c + msg + "\x1b[0m"
		}
		return fmt.Sprintf("\x1b[%sm%s\x1b[0m", c, msg)
	default:
		return msg
	}
}

func stripAnsi(s string) string { return ansiRe.ReplaceAllString(s, "") }

// Log writes one line, serialized under the sink's mutex. color is an
// int palette index, a raw ANSI prefix, or nil/"".
func (s *Sink) Log(source, message string, color any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Unix() >= s.nextDay || s.nextDay == 0 {
		s.emitDayBanner(now)
	}

	ts := now.UTC().Format("15:04:05.000")

	if s.disabled {
		if s.file == nil {
			return
		}
		line := fmt.Sprintf("@%s [%s] %s\n", ts, stripAnsi(source), stripAnsi(message))
		_, _ = s.file.Write([]byte(line))
		return
	}

	display := colorize(message, color)
	var line string
	if s.noAnsi {
		line = fmt.Sprintf("%s %-21s %s\n", ts, stripAnsi(source), stripAnsi(display))
	} else {
		line = fmt.Sprintf("\x1b[36m%s \x1b[33m%-21s \x1b[0m%s\n", ts, source, display)
	}

	s.writeStdout(line)

	if s.file != nil {
		_, _ = s.file.Write([]byte(stripAnsi(line)))
	}
}

// writeStdout swallows EPIPE; on any other write error it degrades,
// retrying once with invalid UTF-8 replaced and then once with every
// non-ASCII rune replaced by '?'. Errors are never returned to the
// caller: an error that survives both retries is dropped.
func (s *Sink) writeStdout(line string) {
	if _, err := io.WriteString(s.stdout, line); err != nil {
		if isEPIPE(err) {
			return
		}
		if _, err := io.WriteString(s.stdout, strings.ToValidUTF8(line, "�")); err == nil {
			return
		}
		// degrade: ASCII-replace anything non-ASCII and retry once.
		ascii := toASCII(line)
		_, _ = io.WriteString(s.stdout, ascii)
	}
}

func toASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > 127 {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// emitDayBanner must be called with s.mu held.
func (s *Sink) emitDayBanner(now time.Time) {
	if s.nextDay != 0 && s.file != nil && s.tmpl != "" && s.baseFn != renderName(s.tmpl, now) {
		_ = s.file.Close()
		_ = s.openLogFile()
	}

	if !s.disabled {
		banner := now.UTC().Format("2006-01-02")
		var line string
		if s.noAnsi {
			line = banner + "\n"
		} else {
			line = "\x1b[36m" + banner + "\x1b[0m\n"
		}
		s.writeStdout(line)
		if s.file != nil {
			_, _ = s.file.Write([]byte(banner + "\n"))
		}
	}

	s.setNextDay(now)
}

// setNextDay advances nextDay to the next UTC midnight. Must be
// called with s.mu held.
func (s *Sink) setNextDay(now time.Time) {
	u := now.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	s.nextDay = midnight.Unix()
}

// Close flushes and closes the file sink, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ColorCapable reports whether w is a TTY suitable for ANSI output.
func ColorCapable(w *os.File) bool {
	return isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd())
}
