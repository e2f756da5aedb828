package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/aep-ledger/internal/adapter/codec"
	"github.com/V4T54L/aep-ledger/internal/adapter/lock"
	"github.com/V4T54L/aep-ledger/internal/adapter/metrics"
	"github.com/V4T54L/aep-ledger/internal/domain"
)

const (
	DefaultMaxFileSize = 1 << 20 // 1MiB
	DefaultLockTimeout = 5 * time.Second
)

var _ domain.LedgerWriter = (*Writer)(nil)

// Options configures a Writer.
type Options struct {
	Base        string
	Name        string
	MaxFileSize int64
	LockTimeout time.Duration
}

// Writer appends events to the current file of one ledger. Appends from any
// number of Writers, in this process or others, are serialized by a lock on
// a sidecar of the current file. The size check, the rotation and the write
// all happen while that lock is held.
type Writer struct {
	base        string
	name        string
	current     string
	maxFileSize int64
	lockTimeout time.Duration

	archiver domain.Archiver
	logger   *slog.Logger
	metrics  *metrics.LedgerMetrics
	dropLog  *rate.Sometimes
}

// NewWriter creates the base directory if needed and returns a Writer for
// the ledger described by opts. A nil archiver uses the gzip Archiver.
func NewWriter(opts Options, archiver domain.Archiver, logger *slog.Logger, m *metrics.LedgerMetrics) (*Writer, error) {
	if opts.Name == "" {
		return nil, errors.New("ledger name must not be empty")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if err := os.MkdirAll(opts.Base, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory %s: %w", opts.Base, err)
	}
	if archiver == nil {
		archiver = NewArchiver(opts.Name, logger)
	}
	if m == nil {
		m = metrics.NewLedgerMetrics(nil)
	}

	return &Writer{
		base:        opts.Base,
		name:        opts.Name,
		current:     currentPath(opts.Base, opts.Name),
		maxFileSize: opts.MaxFileSize,
		lockTimeout: opts.LockTimeout,
		archiver:    archiver,
		logger:      logger.With("component", "ledger_writer", "ledger", opts.Name),
		metrics:     m,
		dropLog:     &rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}, nil
}

// Base returns the ledger's base directory.
func (w *Writer) Base() string { return w.base }

// Name returns the ledger name.
func (w *Writer) Name() string { return w.name }

// CurrentPath returns the path of the current file.
func (w *Writer) CurrentPath() string { return w.current }

// Append writes exactly one record for event to the current file, or none.
// It never returns an error to the caller: losing an event is acceptable,
// hanging or crashing the host is not. The result says what happened.
func (w *Writer) Append(ctx context.Context, event domain.Event) (res domain.AppendResult) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.AppendResult{Status: domain.DroppedWriteFailure, Err: fmt.Errorf("%w: panic: %v", domain.ErrWrite, r)}
		}
		w.observe(res)
	}()

	data, err := codec.Encode(event)
	if err != nil {
		return domain.AppendResult{Status: domain.DroppedEncodeFailure, Err: err}
	}

	lk := lock.New(lockPath(w.current), w.lockTimeout)
	waitStart := time.Now()
	if err := lk.Acquire(ctx); err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			return domain.AppendResult{Status: domain.DroppedLockTimeout, Err: err}
		}
		return domain.AppendResult{Status: domain.DroppedWriteFailure, Err: fmt.Errorf("%w: %v", domain.ErrWrite, err)}
	}
	w.metrics.LockWaitSeconds.Observe(time.Since(waitStart).Seconds())
	defer func() {
		if err := lk.Release(); err != nil {
			w.logger.Error("Failed to release ledger lock", "path", lk.Path(), "error", err)
		}
	}()

	res.Rotated, res.RotationErr = w.rotateIfNeeded()

	n, err := w.writeRecord(data)
	res.Bytes = n
	if err != nil {
		res.Status = domain.DroppedWriteFailure
		res.Err = err
		return res
	}
	res.Status = domain.Appended
	return res
}

// rotateIfNeeded archives the current file when it has reached the size
// threshold. A failed rotation leaves the current file in place; the next
// append will try again.
func (w *Writer) rotateIfNeeded() (string, error) {
	info, err := os.Stat(w.current)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", domain.ErrRotation, w.current, err)
	}
	if info.Size() < w.maxFileSize {
		return "", nil
	}
	archive, err := w.archiver.Rotate(w.current)
	if err != nil {
		if !errors.Is(err, domain.ErrRotation) {
			err = fmt.Errorf("%w: %v", domain.ErrRotation, err)
		}
		return "", err
	}
	return archive, nil
}

func (w *Writer) writeRecord(data []byte) (int, error) {
	f, err := os.OpenFile(w.current, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", domain.ErrWrite, w.current, err)
	}
	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("%w: write %s: %v", domain.ErrWrite, w.current, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, fmt.Errorf("%w: sync %s: %v", domain.ErrWrite, w.current, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("%w: close %s: %v", domain.ErrWrite, w.current, err)
	}
	return n, nil
}

// observe reports the outcome of an append through metrics and logs.
func (w *Writer) observe(res domain.AppendResult) {
	w.metrics.AppendsTotal.WithLabelValues(res.Status.String()).Inc()
	if res.Status == domain.Appended {
		w.metrics.BytesTotal.Add(float64(res.Bytes))
	}

	switch {
	case res.Rotated != "":
		w.metrics.RotationsTotal.WithLabelValues("success").Inc()
	case res.RotationErr != nil:
		w.metrics.RotationsTotal.WithLabelValues("failure").Inc()
		w.logger.Error("Ledger rotation failed, keeping current file", "path", w.current, "error", res.RotationErr)
	}

	if res.Err != nil {
		w.dropLog.Do(func() {
			w.logger.Warn("Dropped ledger event", "status", res.Status.String(), "path", w.current, "error", res.Err)
		})
	}
}
