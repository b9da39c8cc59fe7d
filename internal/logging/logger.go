package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kingrea/paneler/internal/config"
)

// Logger appends timestamped debug lines to .paneler/logs/paneler.log so a
// run can be reconstructed after the terminal output is gone.
type Logger struct {
	out   io.WriteCloser
	now   func() time.Time
	scope string
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir string) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.PanelerDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "paneler.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{out: f, now: time.Now}, nil
}

// With returns a logger that prefixes every line with scope.
func (l *Logger) With(scope string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	if child.scope != "" {
		scope = child.scope + "/" + scope
	}
	child.scope = scope
	return &child
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	return l.out.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	if l.scope != "" {
		line = "[" + l.scope + "] " + line
	}
	fmt.Fprintf(l.out, "[%s] %s\n", l.now().Format(time.RFC3339), line)
}
