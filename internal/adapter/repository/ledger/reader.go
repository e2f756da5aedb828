package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/V4T54L/aep-ledger/internal/adapter/codec"
	"github.com/V4T54L/aep-ledger/internal/domain"
)

// Reader decodes ledger files. It takes no locks: archives never change and
// a concurrently appended current file at worst ends in an incomplete
// record, which is reported and treated as the end of the stream.
type Reader struct {
	logger *slog.Logger
}

// NewReader returns a Reader.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger.With("component", "ledger_reader")}
}

// Stream decodes path and calls fn for each event in order. Files ending in
// .gz are decompressed first. A missing file yields an error wrapping
// domain.ErrFileNotFound; a truncated or corrupt tail yields a
// *domain.DecodeError after every complete record has been delivered.
func (r *Reader) Stream(path string, fn func(domain.Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("Ledger file not found", "path", path)
			return fmt.Errorf("%w: %s", domain.ErrFileNotFound, path)
		}
		return fmt.Errorf("failed to open ledger file %s: %w", path, err)
	}
	defer f.Close()

	var src io.Reader = f
	if IsCompressed(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Zero-byte archive: no records.
				return nil
			}
			de := &domain.DecodeError{Path: path, Err: err}
			r.logger.Warn("Failed to open compressed ledger file", "path", path, "error", err)
			return de
		}
		defer gz.Close()
		src = gz
	}

	dec := codec.NewDecoder(src)
	for {
		event, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var de *domain.DecodeError
			if errors.As(err, &de) {
				de.Path = path
			}
			r.logger.Warn("Ledger file ends in an undecodable record, keeping decoded prefix",
				"path", path, "records", dec.Records(), "error", err)
			return err
		}
		if err := fn(event); err != nil {
			if errors.Is(err, domain.ErrStop) {
				return nil
			}
			return err
		}
	}
}

// ReadEvents returns every decodable event of path. On a truncated tail the
// decoded prefix is returned together with the *domain.DecodeError.
func (r *Reader) ReadEvents(path string) ([]domain.Event, error) {
	var events []domain.Event
	err := r.Stream(path, func(e domain.Event) error {
		events = append(events, e)
		return nil
	})
	return events, err
}
