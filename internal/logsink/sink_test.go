package logsink

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogSerializesWrites(t *testing.T) {
	var buf strings.Builder
	s, err := New(Config{Stdout: &buf, NoAnsi: true, Now: func() time.Time {
		return time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	}})
	require.NoError(t, err)

	s.Log("root", "hello", nil)
	s.Log("root", "world", 1)

	out := buf.String()
	require.Contains(t, out, "hello")
	require.Contains(t, out, "world")
	require.Contains(t, out, "2026-07-30") // day banner precedes first message
}

func TestDayBannerOncePerDay(t *testing.T) {
	var buf strings.Builder
	now := time.Date(2026, 7, 30, 23, 59, 59, 0, time.UTC)
	s, err := New(Config{Stdout: &buf, NoAnsi: true, Now: func() time.Time { return now }})
	require.NoError(t, err)

	s.Log("a", "one", nil)
	firstLen := buf.Len()
	s.Log("a", "two", nil)
	require.Greater(t, buf.Len(), firstLen)
	require.Equal(t, 1, strings.Count(buf.String(), "2026-07-30"))

	now = now.Add(2 * time.Second) // crosses into 2026-07-31
	s.Log("a", "three", nil)
	require.Contains(t, buf.String(), "2026-07-31")
}

func TestColorizeIntPalette(t *testing.T) {
	require.Equal(t, "\x1b[31mx\x1b[0m", colorize("x", 1))
	require.Equal(t, "x", colorize("x", 0))
	require.Equal(t, "x", colorize("x", nil))
}

func TestFileSinkStripsAnsi(t *testing.T) {
	dir := t.TempDir()
	var buf strings.Builder
	s, err := New(Config{
		Stdout:   &buf,
		Template: dir + "/test.log",
		Now:      func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	defer s.Close()

	s.Log("\x1b[36msrc\x1b[0m", "\x1b[33mmsg\x1b[0m", 2)

	data, err := readFile(dir + "/test.log")
	require.NoError(t, err)
	require.NotContains(t, string(data), "\x1b")
	require.Contains(t, string(data), "msg")
}

func TestDisabledModeSkipsStdout(t *testing.T) {
	dir := t.TempDir()
	var buf strings.Builder
	s, err := New(Config{
		Stdout:   &buf,
		Disabled: true,
		Template: dir + "/test.log",
		Now:      func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	defer s.Close()

	s.Log("src", "secret", nil)
	require.Empty(t, buf.String())

	data, err := readFile(dir + "/test.log")
	require.NoError(t, err)
	require.Contains(t, string(data), "secret")
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
