package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/V4T54L/aep-ledger/internal/adapter/codec"
	"github.com/V4T54L/aep-ledger/internal/adapter/metrics"
	"github.com/V4T54L/aep-ledger/internal/domain"
)

// InputReport describes what the merge took from one input file.
type InputReport struct {
	Path      string
	Read      int  // events decoded
	Added     int  // events kept in the output
	Skipped   bool // missing or unreadable
	Truncated bool // decoded prefix only
	Err       error
}

// MergeReport summarizes a merge.
type MergeReport struct {
	Output     string
	Inputs     []InputReport
	Written    int
	Duplicates int
	WithoutID  int
}

// MergeEventsUseCase combines ledger files into one deduplicated,
// time-ordered file.
type MergeEventsUseCase struct {
	reader  domain.EventReader
	logger  *slog.Logger
	metrics *metrics.LedgerMetrics
}

// NewMergeEventsUseCase creates a new MergeEventsUseCase. A nil m uses
// unregistered metrics.
func NewMergeEventsUseCase(reader domain.EventReader, logger *slog.Logger, m *metrics.LedgerMetrics) *MergeEventsUseCase {
	if m == nil {
		m = metrics.NewLedgerMetrics(nil)
	}
	return &MergeEventsUseCase{
		reader:  reader,
		logger:  logger.With("component", "merge"),
		metrics: m,
	}
}

// Merge reads inputs in order, keeps the first event seen for each id plus
// every event without one, sorts the result by ts and writes it to output.
// Missing or corrupt inputs are skipped or cut to their decodable prefix and
// never fail the merge. Only a failure to produce output is returned, wrapping
// domain.ErrOutputWrite; output is then left as it was.
func (uc *MergeEventsUseCase) Merge(ctx context.Context, inputs []string, output string) (MergeReport, error) {
	report := MergeReport{Output: output}
	seen := make(map[string]struct{})
	var merged []domain.Event

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		in := InputReport{Path: path}
		err := uc.reader.Stream(path, func(e domain.Event) error {
			in.Read++
			id, ok := e.ID()
			if !ok {
				report.WithoutID++
				uc.metrics.MergeEventsTotal.WithLabelValues("without_id").Inc()
				uc.logger.Warn("Event without id, keeping it", "path", path, "index", in.Read-1)
			} else if _, dup := seen[id]; dup {
				report.Duplicates++
				uc.metrics.MergeEventsTotal.WithLabelValues("duplicate").Inc()
				return nil
			} else {
				seen[id] = struct{}{}
				uc.metrics.MergeEventsTotal.WithLabelValues("kept").Inc()
			}
			in.Added++
			merged = append(merged, e)
			return nil
		})

		var de *domain.DecodeError
		switch {
		case err == nil:
			uc.metrics.MergeInputsTotal.WithLabelValues("read").Inc()
		case errors.As(err, &de) && in.Read > 0:
			in.Truncated = true
			in.Err = err
			uc.metrics.MergeInputsTotal.WithLabelValues("truncated").Inc()
			uc.logger.Warn("Input is truncated, merged its decodable prefix", "path", path, "events", in.Read, "error", err)
		case errors.As(err, &de):
			// Nothing decodable; the whole file is unusable.
			in.Truncated = true
			in.Err = err
			uc.metrics.MergeInputsTotal.WithLabelValues("truncated").Inc()
			uc.logger.Warn("Input has no decodable events", "path", path, "error", err)
		default:
			in.Skipped = true
			in.Err = err
			uc.metrics.MergeInputsTotal.WithLabelValues("skipped").Inc()
			uc.logger.Warn("Skipping unreadable input", "path", path, "error", err)
		}
		report.Inputs = append(report.Inputs, in)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp() < merged[j].Timestamp()
	})

	if err := writeEventsAtomic(output, merged); err != nil {
		uc.logger.Error("Failed to write merge output", "output", output, "error", err)
		return report, err
	}
	report.Written = len(merged)
	uc.logger.Info("Merged ledger files", "output", output, "inputs", len(inputs),
		"written", report.Written, "duplicates", report.Duplicates, "without_id", report.WithoutID)
	return report, nil
}

// writeEventsAtomic writes events to a temporary file next to output and
// renames it into place, so readers see either the old output or the whole
// new one. Outputs ending in .gz are gzip compressed.
func writeEventsAtomic(output string, events []domain.Event) (err error) {
	dir := filepath.Dir(output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory %s: %v", domain.ErrOutputWrite, dir, err)
	}

	tmp := fmt.Sprintf("%s.tmp-%s", output, uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrOutputWrite, tmp, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(output, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	enc := codec.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrOutputWrite, err)
		}
	}
	if gz != nil {
		// Closing writes the gzip trailer, so even zero events make a valid stream.
		if err := gz.Close(); err != nil {
			return fmt.Errorf("%w: compress %s: %v", domain.ErrOutputWrite, tmp, err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", domain.ErrOutputWrite, tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrOutputWrite, tmp, err)
	}
	if err := os.Rename(tmp, output); err != nil {
		return fmt.Errorf("%w: rename %s: %v", domain.ErrOutputWrite, tmp, err)
	}
	return nil
}
