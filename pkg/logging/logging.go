package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/glwatch/pkg/config"
)

// Logger wraps a zerolog.Logger tagged with the component name.
type Logger struct {
	zerolog.Logger
	closer io.Closer
}

// New returns an info-level logger writing to stdout.
func New(component string) *Logger {
	return NewWithWriter(component, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(component string, w io.Writer) *Logger {
	logger := zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Str("component", component).Logger()
	return &Logger{Logger: logger}
}

// Configure applies logging settings from config.
func (l *Logger) Configure(cfg config.LoggingConfig) error {
	if l == nil {
		return nil
	}
	if cfg.Level != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
		if err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
		l.Logger = l.Logger.Level(lvl)
	}
	if cfg.FilePath != "" {
		writer, err := OpenRollingFile(cfg.FilePath, cfg.FileMaxSize)
		if err != nil {
			return err
		}
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		l.Logger = l.Logger.Output(zerolog.MultiLevelWriter(console, writer))
		l.closer = writer
	}
	return nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// RollingFile is an append-only file renamed to <path>.1 once it would exceed
// maxMB. A zero maxMB never rolls.
type RollingFile struct {
	mu   sync.Mutex
	path string
	max  int
	file *os.File
}

// OpenRollingFile opens path for appending, creating parent directories.
func OpenRollingFile(path string, maxMB int) (*RollingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &RollingFile{path: path, max: maxMB, file: f}, nil
}

// Path returns the active file path.
func (r *RollingFile) Path() string {
	return r.path
}

func (r *RollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.max > 0 {
		if info, err := r.file.Stat(); err == nil && info.Size() > 0 && info.Size()+int64(len(p)) > int64(r.max)*1024*1024 {
			if err := r.roll(); err != nil {
				return 0, err
			}
		}
	}
	return r.file.Write(p)
}

func (r *RollingFile) roll() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(r.path, r.path+".1"); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		r.file = nil
		return err
	}
	r.file = f
	return nil
}

// Close closes the underlying file.
func (r *RollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
