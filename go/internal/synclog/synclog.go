// Package synclog keeps a human-readable log of the sync telemetry that
// listener clients report back to the beacon.
//
// The log only covers the sequence that is currently playing: a TRACK report
// truncates the file and writes a fresh header. Between tracks the file is
// rotated into a single backup once it grows past MaxBytes.
package synclog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxBytes is the size at which the log is rotated.
	DefaultMaxBytes int64 = 5 << 20

	// EventTrack marks the start of a new sequence.
	EventTrack = "TRACK"

	timestampLayout = "2006-01-02 15:04:05.000"
	backupSuffix    = ".1"
)

// Report is one telemetry sample from a client. Numeric fields keep the
// client's number text so the log shows exactly what was sent; an empty
// value means the field was absent.
type Report struct {
	Event  string      `json:"event"`
	Track  string      `json:"track"`
	Fpp    json.Number `json:"fpp"`
	Target json.Number `json:"target"`
	Local  json.Number `json:"local"`
	Err    json.Number `json:"err"`
	Rate   json.Number `json:"rate"`
	Eff    json.Number `json:"eff"`
	Offset json.Number `json:"offset"`
	Avg2s  json.Number `json:"avg2s"`
}

// Options configures a Logger.
type Options struct {
	Path     string
	MaxBytes int64
	Clock    clockwork.Clock
}

// Logger appends reports to a single file. It is safe for concurrent use.
type Logger struct {
	path     string
	backup   string
	maxBytes int64
	clock    clockwork.Clock

	mu sync.Mutex
}

// New creates a Logger. The file is not touched until the first report.
func New(opts Options) *Logger {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Logger{
		path:     opts.Path,
		backup:   opts.Path + backupSuffix,
		maxBytes: opts.MaxBytes,
		clock:    opts.Clock,
	}
}

// Path returns the live log file path.
func (l *Logger) Path() string {
	return l.path
}

// BackupPath returns the path of the single rotated generation.
func (l *Logger) BackupPath() string {
	return l.backup
}

// Record writes one report. Filesystem failures are logged at debug level and
// otherwise swallowed.
func (l *Logger) Record(clientLabel string, report Report) {
	if err := l.record(clientLabel, report); err != nil {
		log.Debug().
			Err(err).
			Str("client", clientLabel).
			Str("event", report.Event).
			Str("path", l.path).
			Msg("sync log write failed")
	}
}

func (l *Logger) record(clientLabel string, report Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	if report.Event == EventTrack {
		return l.startTrack(report.Track, now)
	}

	if err := l.rotateIfNeeded(); err != nil {
		return err
	}
	return l.write(os.O_APPEND, FormatLine(now, clientLabel, report))
}

// startTrack discards the current log and writes the header for track.
func (l *Logger) startTrack(track string, now time.Time) error {
	return l.write(os.O_TRUNC, FormatHeader(now, track))
}

func (l *Logger) rotateIfNeeded() error {
	info, err := os.Stat(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat sync log: %w", err)
	}
	if info.Size() <= l.maxBytes {
		return nil
	}

	if err := os.Remove(l.backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove old sync log backup: %w", err)
	}
	if err := os.Rename(l.path, l.backup); err != nil {
		return fmt.Errorf("failed to rotate sync log: %w", err)
	}

	log.Debug().
		Str("path", l.path).
		Int64("size", info.Size()).
		Msg("sync log rotated")
	return nil
}

func (l *Logger) write(mode int, line string) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if errors.Is(err, fs.ErrNotExist) {
		if mkErr := os.MkdirAll(filepath.Dir(l.path), 0o755); mkErr != nil {
			return fmt.Errorf("failed to create sync log directory: %w", mkErr)
		}
		f, err = os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	}
	if err != nil {
		return fmt.Errorf("failed to open sync log: %w", err)
	}

	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to write sync log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close sync log: %w", err)
	}
	return nil
}

// FormatHeader renders the line that opens the log for a new track.
func FormatHeader(ts time.Time, track string) string {
	return fmt.Sprintf("=== TRACK %s @ %s ===\n", track, ts.Format(timestampLayout))
}

// FormatLine renders a telemetry report in fixed-width columns. Values are
// right-aligned and printed as sent; absent fields show as "-".
// The label column fits a bracketed IPv6 host:port.
func FormatLine(ts time.Time, clientLabel string, r Report) string {
	return fmt.Sprintf(
		"%s %-47s %-8s %-16s fpp=%10s target=%10s local=%10s err=%8s rate=%9s eff=%9s offset=%9s avg2s=%9s\n",
		ts.Format(timestampLayout),
		clientLabel,
		r.Event,
		r.Track,
		value(r.Fpp),
		value(r.Target),
		value(r.Local),
		value(r.Err),
		value(r.Rate),
		value(r.Eff),
		value(r.Offset),
		value(r.Avg2s),
	)
}

func value(n json.Number) string {
	if n == "" {
		return "-"
	}
	return n.String()
}
