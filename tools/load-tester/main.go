package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/V4T54L/aep-ledger/internal/adapter/metrics"
	"github.com/V4T54L/aep-ledger/internal/adapter/repository/ledger"
	"github.com/V4T54L/aep-ledger/internal/domain"
)

func main() {
	base := flag.String("base", "", "Ledger base directory (default: a new temporary directory)")
	name := flag.String("name", "loadtest", "Ledger name")
	concurrency := flag.Int("c", 10, "Number of concurrent writers, each with its own lock handle")
	duration := flag.Duration("d", 10*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 1000, "Appends per second limit")
	maxFileSize := flag.Int64("max-file-size", 64<<10, "Rotation threshold in bytes")
	lockTimeout := flag.Duration("lock-timeout", ledger.DefaultLockTimeout, "Lock timeout per append")
	flag.Parse()

	if *base == "" {
		dir, err := os.MkdirTemp("", "aep-load-")
		if err != nil {
			log.Fatalf("failed to create temp dir: %v", err)
		}
		*base = dir
	}

	log.Printf("Starting load test on ledger %q in %s", *name, *base)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Max file size: %d", *concurrency, *duration, *rps, *maxFileSize)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewLedgerMetrics(reg)

	var wg sync.WaitGroup
	var appended, dropped atomic.Int64
	var ids sync.Map
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	for i := 0; i < *concurrency; i++ {
		w, err := ledger.NewWriter(ledger.Options{
			Base:        *base,
			Name:        *name,
			MaxFileSize: *maxFileSize,
			LockTimeout: *lockTimeout,
		}, nil, logger, m)
		if err != nil {
			log.Fatalf("failed to create writer: %v", err)
		}

		wg.Add(1)
		go func(workerID int, w *ledger.Writer) {
			defer wg.Done()
			for seq := 0; ; seq++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				eventID := uuid.NewString()
				res := w.Append(context.Background(), domain.Event{
					"id":         eventID,
					"ts":         float64(time.Now().UnixNano()) / 1e9,
					"focus_ms":   int64(seq),
					"focus_kind": "load_test",
					"payload":    map[string]any{"worker": int64(workerID), "text": strings.Repeat("x", 64)},
				})
				if res.OK() {
					appended.Add(1)
					ids.Store(eventID, struct{}{})
				} else {
					dropped.Add(1)
				}
			}
		}(i, w)
	}

	wg.Wait()

	// Verify: every appended id must be read back exactly once.
	files, err := ledger.NewEnumerator(*base, *name).ListFiles(true)
	if err != nil {
		log.Fatalf("failed to list ledger files: %v", err)
	}
	reader := ledger.NewReader(logger)
	var read, duplicates, unknown, corrupt int
	seen := make(map[string]struct{})
	for _, f := range files {
		err := reader.Stream(f, func(e domain.Event) error {
			read++
			id, _ := e.ID()
			if _, ok := seen[id]; ok {
				duplicates++
			}
			seen[id] = struct{}{}
			if _, ok := ids.Load(id); !ok {
				unknown++
			}
			return nil
		})
		var de *domain.DecodeError
		if errors.As(err, &de) {
			corrupt++
			log.Printf("Corrupt file %s: %v", f, err)
		} else if err != nil {
			log.Printf("Failed to read %s: %v", f, err)
		}
	}

	total := appended.Load() + dropped.Load()
	log.Println("Load test finished.")
	log.Printf("Total appends: %d (%.2f/s)", total, float64(total)/duration.Seconds())
	log.Printf("Appended: %d, Dropped: %d", appended.Load(), dropped.Load())
	log.Printf("Files: %d, Events read: %d, Duplicates: %d, Unknown: %d, Corrupt files: %d",
		len(files), read, duplicates, unknown, corrupt)
	printMetrics(reg)

	if int64(read) != appended.Load() || duplicates > 0 || unknown > 0 || corrupt > 0 {
		log.Printf("FAIL: ledger content does not match the appended events")
		os.Exit(1)
	}
	log.Println("OK: every appended event was read back exactly once")
}

func printMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Printf("failed to gather metrics: %v", err)
		return
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			switch {
			case metric.GetCounter() != nil:
				log.Printf("%s{%s} %v", mf.GetName(), strings.Join(labels, ","), metric.GetCounter().GetValue())
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				log.Printf("%s count=%d sum=%.4fs", mf.GetName(), h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
}
