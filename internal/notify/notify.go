// Package notify renders the transient banners the upload queue raises.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/dharsanguruparan/snapdrop/internal/model"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiBlue  = "\x1b[34m"
)

// Notifier surfaces a message to the user.
type Notifier interface {
	Notify(message string, severity model.Severity)
}

// Func adapts a function to Notifier.
type Func func(message string, severity model.Severity)

func (f Func) Notify(message string, severity model.Severity) { f(message, severity) }

// Notice is one recorded banner.
type Notice struct {
	Message  string
	Severity model.Severity
	At       time.Time
}

// Banner prints notices as single tagged lines, colored when the writer is a
// terminal.
type Banner struct {
	mu       sync.Mutex
	w        io.Writer
	colorize bool
}

// NewBanner returns a Banner writing to w.
func NewBanner(w io.Writer) *Banner {
	return &Banner{w: w, colorize: ShouldColorize(w)}
}

func (b *Banner) Notify(message string, severity model.Severity) {
	line := Render(message, severity, b.colorize)
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.w, line)
}

// Render formats a notice as "[LABEL] message".
func Render(message string, severity model.Severity, colorize bool) string {
	line := fmt.Sprintf("[%s] %s", label(severity), message)
	if colorize {
		return color(severity) + line + ansiReset
	}
	return line
}

func label(s model.Severity) string {
	switch s {
	case model.SeveritySuccess:
		return "OK"
	case model.SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func color(s model.Severity) string {
	switch s {
	case model.SeveritySuccess:
		return ansiGreen
	case model.SeverityError:
		return ansiRed
	default:
		return ansiBlue
	}
}

// ShouldColorize reports whether w is an interactive terminal.
func ShouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Logger mirrors notices into a structured log.
type Logger struct {
	log *slog.Logger
}

// NewLogger returns a notifier that logs every notice on logger.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{log: logger.With("component", "notify")}
}

func (l *Logger) Notify(message string, severity model.Severity) {
	level := slog.LevelInfo
	if severity == model.SeverityError {
		level = slog.LevelWarn
	}
	l.log.Log(context.Background(), level, "notice", "severity", string(severity), "message", message)
}

// Multi fans a notice out to every notifier in order. Nil entries are skipped.
func Multi(notifiers ...Notifier) Notifier {
	return Func(func(message string, severity model.Severity) {
		for _, n := range notifiers {
			if n != nil {
				n.Notify(message, severity)
			}
		}
	})
}

// Recorder keeps every notice in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
	now     func() time.Time
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

func (r *Recorder) Notify(message string, severity model.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, Notice{Message: message, Severity: severity, At: r.now()})
}

// Notices returns a copy of the recorded notices in order.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Messages returns just the recorded message texts.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Message
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}
