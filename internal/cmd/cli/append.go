package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/V4T54L/aep-ledger/internal/adapter/codec"
	"github.com/V4T54L/aep-ledger/internal/adapter/repository/ledger"
	"github.com/V4T54L/aep-ledger/internal/domain"
)

const maxEventLine = 16 << 20

func newAppendCommand(e *env) *cobra.Command {
	var (
		deriveID    bool
		maxFileSize int64
		lockTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append JSON events read from stdin, one object per line",
		Long: "Append reads one JSON object per line from stdin and appends each to the ledger.\n" +
			"Events that cannot be appended are dropped and counted; the command still succeeds.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ledger.Options{
				Base:        e.cfg.LedgerBasePath,
				Name:        e.cfg.LedgerName,
				MaxFileSize: e.cfg.MaxFileSize,
				LockTimeout: e.cfg.LockTimeout,
			}
			if cmd.Flags().Changed("max-file-size") {
				opts.MaxFileSize = maxFileSize
			}
			if cmd.Flags().Changed("lock-timeout") {
				opts.LockTimeout = lockTimeout
			}
			w, err := ledger.NewWriter(opts, nil, e.logger, nil)
			if err != nil {
				return err
			}

			summary := appendEvents(cmd.Context(), w, cmd.InOrStdin(), deriveID, e.logger)
			fmt.Fprintf(cmd.ErrOrStderr(), "append: %s\n", summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&deriveID, "derive-id", false, "Fill a missing id with a content hash and a missing ts with the current time")
	cmd.Flags().Int64Var(&maxFileSize, "max-file-size", ledger.DefaultMaxFileSize, "Rotation threshold in bytes")
	cmd.Flags().DurationVar(&lockTimeout, "lock-timeout", ledger.DefaultLockTimeout, "Maximum wait for the ledger lock")
	return cmd
}

// appendSummary counts the outcome of an append run.
type appendSummary struct {
	Counts    map[domain.AppendStatus]int
	Invalid   int
	Rotations int
}

func (s appendSummary) String() string {
	var parts []string
	for _, st := range []domain.AppendStatus{domain.Appended, domain.DroppedLockTimeout, domain.DroppedWriteFailure, domain.DroppedEncodeFailure} {
		parts = append(parts, fmt.Sprintf("%s=%d", st, s.Counts[st]))
	}
	parts = append(parts, fmt.Sprintf("invalid=%d", s.Invalid), fmt.Sprintf("rotations=%d", s.Rotations))
	return strings.Join(parts, " ")
}

// appendEvents appends every JSON object line of r through w. Lines that are
// blank are ignored; lines that are not JSON objects count as invalid.
func appendEvents(ctx context.Context, w domain.LedgerWriter, r io.Reader, deriveID bool, logger *slog.Logger) appendSummary {
	summary := appendSummary{Counts: make(map[domain.AppendStatus]int)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventLine)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		ev, err := parseEvent(raw)
		if err != nil {
			summary.Invalid++
			logger.Warn("Skipping invalid input line", "line", line, "error", err)
			continue
		}
		if deriveID {
			if err := fillDefaults(ev, time.Now()); err != nil {
				summary.Invalid++
				logger.Warn("Skipping event without derivable id", "line", line, "error", err)
				continue
			}
		}
		res := w.Append(ctx, ev)
		summary.Counts[res.Status]++
		if res.Rotated != "" {
			summary.Rotations++
		}
	}
	if err := sc.Err(); err != nil {
		logger.Warn("Stopped reading stdin", "line", line, "error", err)
	}
	return summary
}

// parseEvent decodes one JSON object. Integral numbers become int64 and the
// rest float64, so they are stored as msgpack integers and floats.
func parseEvent(raw []byte) (domain.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	return domain.Event(normalizeNumbers(m).(map[string]any)), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			t[k] = normalizeNumbers(vv)
		}
		return t
	case []any:
		for i, vv := range t {
			t[i] = normalizeNumbers(vv)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// fillDefaults sets ts to now and id to the content hash of the event when
// either is missing. The id is derived after ts is set.
func fillDefaults(ev domain.Event, now time.Time) error {
	if !ev.HasTimestamp() {
		ev[domain.KeyTimestamp] = float64(now.UnixNano()) / 1e9
	}
	if _, ok := ev.ID(); ok {
		return nil
	}
	delete(ev, domain.KeyID)
	id, err := codec.ContentID(map[string]any(ev))
	if err != nil {
		return err
	}
	ev[domain.KeyID] = id
	return nil
}
