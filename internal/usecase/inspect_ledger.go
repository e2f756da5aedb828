package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/V4T54L/aep-ledger/internal/domain"
)

// InspectOptions selects the files and events to inspect.
type InspectOptions struct {
	// File is a single file to inspect, absolute or relative to the ledger's
	// base directory. It takes precedence over CurrentOnly and ArchivedOnly.
	File         string
	CurrentOnly  bool
	ArchivedOnly bool
	// Limit caps the number of events across all files; 0 means no limit.
	Limit int
}

// FileSummary reports what Inspect found in one file.
type FileSummary struct {
	File   domain.LedgerFile
	Events int
	Err    error // non-nil when the file was truncated, corrupt or unreadable
}

// InspectSummary reports the result of Inspect.
type InspectSummary struct {
	Files        []FileSummary
	Total        int
	LimitReached bool
}

// InspectLedgerUseCase reads a ledger's files for display.
type InspectLedgerUseCase struct {
	files  domain.FileEnumerator
	reader domain.EventReader
	logger *slog.Logger
}

// NewInspectLedgerUseCase creates a new InspectLedgerUseCase.
func NewInspectLedgerUseCase(files domain.FileEnumerator, reader domain.EventReader, logger *slog.Logger) *InspectLedgerUseCase {
	return &InspectLedgerUseCase{
		files:  files,
		reader: reader,
		logger: logger.With("component", "inspect"),
	}
}

// BaseDir returns the ledger's base directory.
func (uc *InspectLedgerUseCase) BaseDir() string {
	return filepath.Dir(uc.files.CurrentPath())
}

// List returns every file of the ledger, archives first, current last.
func (uc *InspectLedgerUseCase) List() ([]domain.LedgerFile, error) {
	return uc.files.Files(true)
}

// Select resolves opts to the files to inspect. An explicit File that does
// not exist yields an error wrapping domain.ErrFileNotFound.
func (uc *InspectLedgerUseCase) Select(opts InspectOptions) ([]domain.LedgerFile, error) {
	if opts.File != "" {
		path := opts.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(uc.BaseDir(), path)
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		return []domain.LedgerFile{{
			Path:    path,
			Name:    filepath.Base(path),
			Size:    info.Size(),
			Current: filepath.Clean(path) == filepath.Clean(uc.files.CurrentPath()),
		}}, nil
	}

	files, err := uc.files.Files(!opts.ArchivedOnly)
	if err != nil {
		return nil, err
	}
	if !opts.CurrentOnly {
		return files, nil
	}
	if opts.ArchivedOnly {
		return nil, nil
	}
	for _, f := range files {
		if f.Current {
			return []domain.LedgerFile{f}, nil
		}
	}
	return nil, nil
}

// Inspect streams the events of the selected files to fn in ledger order,
// stopping once opts.Limit events have been delivered. done, when not nil, is
// called after each file that was read. Truncated or missing files are
// reported in the summary and do not stop the inspection; an error returned
// by fn does.
func (uc *InspectLedgerUseCase) Inspect(ctx context.Context, opts InspectOptions, fn func(domain.LedgerFile, domain.Event) error, done func(FileSummary)) (InspectSummary, error) {
	var summary InspectSummary
	files, err := uc.Select(opts)
	if err != nil {
		return summary, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if opts.Limit > 0 && summary.Total >= opts.Limit {
			summary.LimitReached = true
			break
		}

		fs := FileSummary{File: f}
		var cbErr error
		err := uc.reader.Stream(f.Path, func(e domain.Event) error {
			if opts.Limit > 0 && summary.Total >= opts.Limit {
				summary.LimitReached = true
				return domain.ErrStop
			}
			if err := fn(f, e); err != nil {
				cbErr = err
				return err
			}
			fs.Events++
			summary.Total++
			return nil
		})
		if cbErr != nil {
			summary.Files = append(summary.Files, fs)
			return summary, cbErr
		}
		if err != nil {
			fs.Err = err
			uc.logger.Warn("Ledger file could not be fully read", "path", f.Path, "events", fs.Events, "error", err)
		}
		summary.Files = append(summary.Files, fs)
		if done != nil {
			done(fs)
		}
		if summary.LimitReached {
			break
		}
	}
	return summary, nil
}
