// Package obslog provides optional, off-by-default diagnostic logging
// for machinization and pattern-matching decisions. It wraps log/slog
// with a compact single-line handler in the same style as the retrieved
// pack's S370 logger, trimmed down to what a disabled-by-default
// tracing hook needs: no debug flag, no io.Writer swapping mid-run.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// lineHandler formats a record as "time level message attr=val ...\n" on
// a single line, matching the teacher pack's logger.LogHandler output
// shape but without its debug-gated stderr mirroring (this package is
// always explicitly enabled by the caller, never silently upgraded).
type lineHandler struct {
	out  io.Writer
	mu   *sync.Mutex
	attr []slog.Attr
}

func (h *lineHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &lineHandler{out: h.out, mu: h.mu, attr: append(append([]slog.Attr{}, h.attr...), attrs...)}
}

func (h *lineHandler) WithGroup(string) slog.Handler { return h }

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	parts := []string{r.Time.Format("15:04:05.000"), r.Level.String() + ":", r.Message}
	for _, a := range h.attr {
		parts = append(parts, a.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, a.String())
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, strings.Join(parts, " ")+"\n")
	return err
}

// New returns a logger writing compact single-line records to w. Pass it
// to target.Context.SetLogger to trace machinization/pattern-matching
// decisions; a target.Context with no logger set discards everything
// (spec: tracing is never on the hot emission path by default).
func New(w io.Writer) *slog.Logger {
	return slog.New(&lineHandler{out: w, mu: &sync.Mutex{}})
}

// Discard is the logger every target.Context starts with.
var Discard = slog.New(slog.NewTextHandler(io.Discard, nil))
