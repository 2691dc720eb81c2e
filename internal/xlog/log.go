// Package xlog is a small leveled, contextual logger in the style of
// go-ethereum's log package: a Logger wraps log/slog, a terminal
// handler renders colorized "LVL [time] msg k=v ..." lines when the
// destination is a TTY, and call sites are captured with
// github.com/go-stack/stack for crash-adjacent diagnostics.
package xlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level mirrors the verbosity levels go-ethereum's log package
// exposes on top of slog's coarser four levels.
type Level int

const (
	LevelCrit Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelCrit:
		return "CRIT"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "????"
	}
}

func (l Level) slogLevel() slog.Level {
	// slog only has four levels; trace/debug collapse onto Debug-4/Debug,
	// crit maps onto Error+4 so a glog-style filter can still special-case it.
	switch l {
	case LevelCrit:
		return slog.LevelError + 4
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	case LevelTrace:
		return slog.LevelDebug - 4
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging capability every package in this module
// depends on instead of fmt.Println or the bare standard log package.
type Logger interface {
	New(ctx ...interface{}) Logger
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	inner *slog.Logger
}

// NewLogger wraps an slog.Handler into a Logger.
func NewLogger(h slog.Handler) Logger {
	return &logger{inner: slog.New(h)}
}

func (l *logger) New(ctx ...interface{}) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) write(lvl Level, msg string, ctx []interface{}) {
	l.inner.Log(context.Background(), lvl.slogLevel(), msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LevelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LevelError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LevelCrit, msg, ctx) }

// terminalHandler renders "LVL [MM-DD|HH:MM:SS.mmm] msg key=val ..." lines,
// colorized when the underlying writer is a terminal.
type terminalHandler struct {
	mu      sync.Mutex
	wr      io.Writer
	color   bool
	minLvl  slog.Level
	attrs   []slog.Attr
	prefix  string
}

// NewTerminalHandler builds a handler writing to wr, auto-detecting
// color support unless forceColor overrides the isatty probe.
func NewTerminalHandler(wr io.Writer, forceColor bool) slog.Handler {
	return NewTerminalHandlerWithLevel(wr, LevelInfo, forceColor)
}

// NewTerminalHandlerWithLevel is NewTerminalHandler with an explicit
// minimum level instead of the LevelInfo default.
func NewTerminalHandlerWithLevel(wr io.Writer, lvl Level, forceColor bool) slog.Handler {
	color := forceColor
	if f, ok := wr.(*os.File); ok && !forceColor {
		color = isatty.IsTerminal(f.Fd())
	}
	if f, ok := wr.(*os.File); ok && color {
		wr = colorable.NewColorable(f)
	}
	return &terminalHandler{wr: wr, color: color, minLvl: lvl.slogLevel()}
}

func (h *terminalHandler) Enabled(_ context.Context, lvl slog.Level) bool { return lvl >= h.minLvl }

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	lvl := levelName(r.Level)
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(color(h.color, lvl))
	b.WriteString(" [")
	b.WriteString(ts.Format("01-02|15:04:05.000"))
	b.WriteString("] ")
	b.WriteString(h.prefix)
	b.WriteString(r.Message)

	write := func(k string, v interface{}) {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	for _, a := range h.attrs {
		write(a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a.Key, a.Value.Any())
		return true
	})
	b.WriteString("\n")
	_, err := io.WriteString(h.wr, b.String())
	return err
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *terminalHandler) WithGroup(name string) slog.Handler {
	cp := *h
	cp.prefix = cp.prefix + name + "."
	return &cp
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError+4:
		return "CRIT "
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN "
	case l >= slog.LevelInfo:
		return "INFO "
	case l >= slog.LevelDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}

func color(enabled bool, lvl string) string {
	if !enabled {
		return lvl
	}
	code := "37"
	switch strings.TrimSpace(lvl) {
	case "CRIT":
		code = "35"
	case "ERROR":
		code = "31"
	case "WARN":
		code = "33"
	case "INFO":
		code = "32"
	case "DEBUG":
		code = "36"
	}
	return "\x1b[" + code + "m" + lvl + "\x1b[0m"
}

// Caller returns the formatted call site skip frames above the function
// that calls it (skip 0 is that function's own frame), for inclusion in crash-adjacent diagnostics (e.g. Fatal
// constructor errors) the way go-ethereum's log package annotates
// handler panics with a stack frame.
func Caller(skip int) string {
	c := stack.Caller(skip + 1)
	return fmt.Sprintf("%+v", c)
}

var (
	rootMu sync.RWMutex
	root   Logger = NewLogger(NewTerminalHandler(os.Stderr, false))
)

// SetDefault replaces the package-level root logger.
func SetDefault(l Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// Root returns the package-level root logger.
func Root() Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

func New(ctx ...interface{}) Logger { return Root().New(ctx...) }

func Trace(msg string, ctx ...interface{}) { Root().Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { Root().Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { Root().Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { Root().Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { Root().Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { Root().Crit(msg, ctx...) }
