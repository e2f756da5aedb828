package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/V4T54L/aep-ledger/internal/domain"
)

// Archiver compresses a full current file into an immutable archive.
type Archiver struct {
	name   string
	now    func() time.Time
	logger *slog.Logger
}

// NewArchiver returns an Archiver producing archives of ledger name.
func NewArchiver(name string, logger *slog.Logger) *Archiver {
	return &Archiver{
		name:   name,
		now:    time.Now,
		logger: logger.With("component", "ledger_archiver", "ledger", name),
	}
}

// WithClock replaces the clock used to stamp archive names.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Rotate copies currentPath into a new gzip archive next to it and removes
// currentPath once the archive is complete and synced. On failure the
// current file is left untouched, no partial archive remains and the error
// wraps domain.ErrRotation.
func (a *Archiver) Rotate(currentPath string) (string, error) {
	src, err := os.Open(currentPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", domain.ErrRotation, currentPath, err)
	}

	dst, archivePath, err := a.createArchive(filepath.Dir(currentPath))
	if err != nil {
		_ = src.Close()
		return "", err
	}

	err = writeArchive(dst, src)
	_ = src.Close()
	if err != nil {
		_ = dst.Close()
		if rmErr := os.Remove(archivePath); rmErr != nil {
			a.logger.Error("Failed to remove partial archive", "path", archivePath, "error", rmErr)
		}
		return "", fmt.Errorf("%w: write %s: %v", domain.ErrRotation, archivePath, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("%w: close %s: %v", domain.ErrRotation, archivePath, err)
	}

	// The archive holds every byte; only now may the current file go.
	if err := os.Remove(currentPath); err != nil {
		// Keeping both would duplicate every record, so drop the archive instead.
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("%w: remove %s: %v", domain.ErrRotation, currentPath, err)
	}

	a.logger.Info("Rotated ledger file", "current", currentPath, "archive", archivePath)
	return archivePath, nil
}

// createArchive exclusively creates the next free archive name for the
// current second.
func (a *Archiver) createArchive(dir string) (*os.File, string, error) {
	stamp := a.now()
	for seq := 0; seq < maxArchiveTries; seq++ {
		path := filepath.Join(dir, ArchiveFileName(a.name, stamp, seq))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
		if err == nil {
			if seq > 0 {
				a.logger.Warn("Archive name collision, using suffix", "path", path, "seq", seq)
			}
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("%w: create %s: %v", domain.ErrRotation, path, err)
		}
	}
	return nil, "", fmt.Errorf("%w: no free archive name for %s at %s", domain.ErrRotation, a.name, stamp.UTC().Format(archiveTimeFmt))
}

func writeArchive(dst *os.File, src io.Reader) error {
	gz := gzip.NewWriter(dst)
	gz.Name = strings.TrimSuffix(filepath.Base(dst.Name()), ".gz")
	if _, err := io.Copy(gz, src); err != nil {
		_ = gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return dst.Sync()
}
