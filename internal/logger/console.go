package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	gray   = color.New(color.FgHiBlack)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Console writes log lines to a writer (stderr by default), colored when the
// writer is a terminal.
type Console struct {
	level     Level
	component string
	color     bool
	out       io.Writer
	mu        *sync.Mutex
}

// NewConsole creates a console logger on stderr.
func NewConsole(level Level) *Console {
	fd := os.Stderr.Fd()
	return &Console{
		level: level,
		color: os.Getenv("NO_COLOR") == "" && (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)),
		out:   os.Stderr,
		mu:    &sync.Mutex{},
	}
}

// NewWriter creates an uncolored console logger writing to w.
func NewWriter(w io.Writer, level Level) *Console {
	return &Console{level: level, out: w, mu: &sync.Mutex{}}
}

func (l *Console) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Console) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Console) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Console) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// WithComponent returns a logger sharing the same output and level.
func (l *Console) WithComponent(component string) Logger {
	c := *l
	c.component = component
	return &c
}

func (l *Console) log(level Level, msg string, args ...any) {
	if level < l.level || l.level == LevelQuiet {
		return
	}
	text := msg
	if len(args) > 0 {
		text = fmt.Sprintf(msg, args...)
	}

	prefix := ""
	if l.component != "" {
		prefix = "[" + l.component + "] "
		if l.color {
			prefix = cyan.Sprint("["+l.component+"]") + " "
		}
	}

	if l.color {
		switch level {
		case LevelDebug:
			text = gray.Sprint(text)
		case LevelWarn:
			text = yellow.Sprint(text)
		case LevelError:
			text = red.Sprint(text)
		}
	}

	// Workers log concurrently; keep lines whole
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, prefix+text)
}

var _ Logger = (*Console)(nil)
