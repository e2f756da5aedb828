package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/spf13/cobra"

	"github.com/V4T54L/aep-ledger/internal/domain"
	"github.com/V4T54L/aep-ledger/internal/usecase"
)

const payloadPreviewLen = 100

func newInspectCommand(e *env) *cobra.Command {
	var (
		opts   usecase.InspectOptions
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect events in ledger files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc := usecase.NewInspectLedgerUseCase(e.enumerator(), e.reader(), e.logger)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Inspecting ledger: '%s' in directory: %s\n", e.cfg.LedgerName, e.cfg.LedgerBasePath)

			files, err := uc.Select(opts)
			if err != nil {
				return err
			}
			if opts.File != "" {
				fmt.Fprintf(out, "Targeting specific file: %s\n", files[0].Path)
			} else {
				if len(files) == 0 {
					fmt.Fprintln(out, "No ledger files found to inspect.")
					return nil
				}
				fmt.Fprintf(out, "Found %d file(s) to inspect:\n", len(files))
				for _, f := range files {
					fmt.Fprintf(out, "  - %s (Size: %d bytes)\n", f.Name, f.Size)
				}
			}

			var header string
			printHeader := func(f domain.LedgerFile) {
				if header != f.Path {
					fmt.Fprintf(out, "\n--- Events from: %s ---\n", f.Name)
					header = f.Path
				}
			}
			summary, err := uc.Inspect(cmd.Context(), opts, func(f domain.LedgerFile, ev domain.Event) error {
				printHeader(f)
				if asJSON {
					return printEventJSON(out, ev)
				}
				printEventText(out, ev)
				return nil
			}, func(fs usecase.FileSummary) {
				printHeader(fs.File)
				if fs.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s: %v\n", fs.File.Name, fs.Err)
				}
				switch {
				case fs.Events == 0:
					fmt.Fprintln(out, "(No events in this file or file is empty/corrupted)")
				case !asJSON:
					fmt.Fprintf(out, "(Found %d events in %s)\n", fs.Events, fs.File.Name)
				}
			})
			if err != nil {
				return err
			}
			if summary.LimitReached {
				fmt.Fprintf(out, "Reached inspection limit of %d events.\n", opts.Limit)
			}
			fmt.Fprintf(out, "\nTotal events inspected across all targeted files: %d\n", summary.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.File, "file", "", "Specific ledger file to inspect (name or path relative to the ledger base)")
	cmd.Flags().BoolVar(&opts.CurrentOnly, "current-only", false, "Only inspect the current, active ledger file")
	cmd.Flags().BoolVar(&opts.ArchivedOnly, "archived-only", false, "Only inspect archived (gzipped) ledger files")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Limit the number of events to inspect (0 means no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output events as indented JSON")
	return cmd
}

func printEventText(w io.Writer, ev domain.Event) {
	fmt.Fprintf(w, "- Event ID: %v\n", display(ev["id"]))
	fmt.Fprintf(w, "  Timestamp: %v\n", display(ev["ts"]))
	fmt.Fprintf(w, "  Focus (ms): %v\n", display(ev["focus_ms"]))
	fmt.Fprintf(w, "  Kind: %v\n", display(ev["focus_kind"]))
	if v, ok := ev["query_id"]; ok {
		fmt.Fprintf(w, "  Query ID: %v\n", display(v))
	}
	if v, ok := ev["session_id"]; ok {
		fmt.Fprintf(w, "  Session ID: %v\n", display(v))
	}
	fmt.Fprintln(w, "  Payload:")
	if payload, ok := ev["payload"].(map[string]any); ok {
		keys := make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "    %s: %v\n", k, preview(payload[k]))
		}
	}
	fmt.Fprintln(w, "---")
}

func printEventJSON(w io.Writer, ev domain.Event) error {
	b, err := json.MarshalIndent(jsonSafe(map[string]any(ev)), "", "  ")
	if err != nil {
		return fmt.Errorf("render event as JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func display(v any) any {
	if v == nil {
		return "None"
	}
	return v
}

// preview shortens long strings to payloadPreviewLen runes.
func preview(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	r := []rune(s)
	if len(r) <= payloadPreviewLen {
		return s
	}
	return string(r[:payloadPreviewLen]) + "..."
}

// jsonSafe rewrites values encoding/json cannot marshal: maps with non-string
// keys get their keys formatted, byte slices become strings and NaN or
// infinite floats become "NaN", "+Inf" or "-Inf".
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = jsonSafe(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = jsonSafe(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = jsonSafe(vv)
		}
		return out
	case []byte:
		return string(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Sprint(t)
		}
		return t
	case float32:
		if f := float64(t); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return t
	default:
		return v
	}
}
