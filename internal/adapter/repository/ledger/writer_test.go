package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/aep-ledger/internal/adapter/codec"
	"github.com/V4T54L/aep-ledger/internal/adapter/lock"
	"github.com/V4T54L/aep-ledger/internal/adapter/metrics"
	"github.com/V4T54L/aep-ledger/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestWriter(t *testing.T, maxFileSize int64, archiver domain.Archiver) (*Writer, *metrics.LedgerMetrics) {
	t.Helper()
	m := metrics.NewLedgerMetrics(nil)
	w, err := NewWriter(Options{
		Base:        t.TempDir(),
		Name:        "test_log",
		MaxFileSize: maxFileSize,
		LockTimeout: time.Second,
	}, archiver, discardLogger(), m)
	if err != nil {
		t.Fatalf("failed to create Writer: %v", err)
	}
	return w, m
}

func testEvent(i int) domain.Event {
	return domain.Event{
		"id":         fmt.Sprintf("event_%d", i),
		"ts":         float64(1716400000 + i),
		"focus_ms":   int64(100 + i*10),
		"focus_kind": "test_event",
		"payload":    map[string]any{"data": strings.Repeat(fmt.Sprintf("Sample payload content %d", i), 10)},
	}
}

func mustAppend(t *testing.T, w *Writer, ev domain.Event) domain.AppendResult {
	t.Helper()
	res := w.Append(context.Background(), ev)
	if !res.OK() {
		t.Fatalf("append %v: status=%s err=%v", ev["id"], res.Status, res.Err)
	}
	return res
}

func ids(events []domain.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i], _ = e.ID()
	}
	return out
}

func TestWriter_AppendAndRead(t *testing.T) {
	w, m := setupTestWriter(t, DefaultMaxFileSize, nil)

	if _, err := os.Stat(w.CurrentPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("current file should be created lazily, stat err=%v", err)
	}

	const n = 10
	for i := 0; i < n; i++ {
		res := mustAppend(t, w, testEvent(i))
		if res.Rotated != "" || res.RotationErr != nil {
			t.Fatalf("unexpected rotation below threshold: %+v", res)
		}
	}

	events, err := NewReader(discardLogger()).ReadEvents(w.CurrentPath())
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
	for i, id := range ids(events) {
		if want := fmt.Sprintf("event_%d", i); id != want {
			t.Errorf("event %d: got id %q, want %q", i, id, want)
		}
	}

	if got := testutil.ToFloat64(m.AppendsTotal.WithLabelValues("appended")); got != n {
		t.Errorf("expected %d appended in metrics, got %v", n, got)
	}
	info, _ := os.Stat(w.CurrentPath())
	if got := testutil.ToFloat64(m.BytesTotal); got != float64(info.Size()) {
		t.Errorf("expected bytes metric %d, got %v", info.Size(), got)
	}
}

func TestWriter_RotationCorrectness(t *testing.T) {
	const threshold = 1000
	w, m := setupTestWriter(t, threshold, nil)
	reader := NewReader(discardLogger())

	// Append until the current file reaches the threshold.
	var before []string
	for i := 0; ; i++ {
		mustAppend(t, w, testEvent(i))
		before = append(before, fmt.Sprintf("event_%d", i))
		info, err := os.Stat(w.CurrentPath())
		if err != nil {
			t.Fatalf("stat current: %v", err)
		}
		if info.Size() >= threshold {
			break
		}
	}

	archives, _ := NewEnumerator(w.Base(), w.Name()).ListFiles(false)
	if len(archives) != 0 {
		t.Fatalf("rotation must wait for the next append, found archives %v", archives)
	}

	next := testEvent(len(before))
	res := mustAppend(t, w, next)
	if res.Rotated == "" {
		t.Fatalf("expected the append after the threshold to rotate, got %+v", res)
	}

	archives, _ = NewEnumerator(w.Base(), w.Name()).ListFiles(false)
	if len(archives) != 1 || archives[0] != res.Rotated {
		t.Fatalf("expected exactly the reported archive, got %v (reported %s)", archives, res.Rotated)
	}

	archived, err := reader.ReadEvents(res.Rotated)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if got := ids(archived); strings.Join(got, ",") != strings.Join(before, ",") {
		t.Fatalf("archive holds %v, want %v", got, before)
	}

	current, err := reader.ReadEvents(w.CurrentPath())
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if got := ids(current); len(got) != 1 || got[0] != next["id"] {
		t.Fatalf("current file should only hold the post-rotation event, got %v", got)
	}
	if got := testutil.ToFloat64(m.RotationsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("expected 1 successful rotation in metrics, got %v", got)
	}
}

func TestWriter_ArchiveIsByteIdenticalToCurrent(t *testing.T) {
	w, _ := setupTestWriter(t, 1, nil)
	mustAppend(t, w, testEvent(0))
	before, err := os.ReadFile(w.CurrentPath())
	if err != nil {
		t.Fatalf("read current: %v", err)
	}

	res := mustAppend(t, w, testEvent(1))
	if res.Rotated == "" {
		t.Fatal("expected rotation")
	}
	got := gunzipFile(t, res.Rotated)
	if string(got) != string(before) {
		t.Fatalf("archive content differs from the rotated current file")
	}
}

type failingArchiver struct {
	calls int
}

func (f *failingArchiver) Rotate(string) (string, error) {
	f.calls++
	return "", errors.New("disk full")
}

func TestWriter_RotationFailureKeepsCurrentAndAppends(t *testing.T) {
	arch := &failingArchiver{}
	w, m := setupTestWriter(t, 1, arch)

	mustAppend(t, w, testEvent(0))
	res := mustAppend(t, w, testEvent(1))
	if !errors.Is(res.RotationErr, domain.ErrRotation) {
		t.Fatalf("expected RotationErr wrapping ErrRotation, got %v", res.RotationErr)
	}
	if res.Rotated != "" {
		t.Fatalf("no archive expected, got %s", res.Rotated)
	}

	// Every later append retries the rotation.
	mustAppend(t, w, testEvent(2))
	if arch.calls != 2 {
		t.Errorf("expected 2 rotation attempts, got %d", arch.calls)
	}

	events, err := NewReader(discardLogger()).ReadEvents(w.CurrentPath())
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("current file should keep growing past the threshold, got %d events", len(events))
	}
	if got := testutil.ToFloat64(m.RotationsTotal.WithLabelValues("failure")); got != 2 {
		t.Errorf("expected 2 failed rotations in metrics, got %v", got)
	}
}

func TestWriter_LockTimeoutDropsEvent(t *testing.T) {
	w, err := NewWriter(Options{
		Base:        t.TempDir(),
		Name:        "test_log",
		LockTimeout: 100 * time.Millisecond,
	}, nil, discardLogger(), nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	holder := lock.New(lockPath(w.CurrentPath()), time.Second)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire holder: %v", err)
	}

	start := time.Now()
	res := w.Append(context.Background(), testEvent(0))
	if res.Status != domain.DroppedLockTimeout {
		t.Fatalf("expected DroppedLockTimeout, got %s (%v)", res.Status, res.Err)
	}
	if !errors.Is(res.Err, domain.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", res.Err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("append blocked for %s", time.Since(start))
	}
	if _, err := os.Stat(w.CurrentPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dropped event must not create the current file")
	}

	_ = holder.Release()
	mustAppend(t, w, testEvent(1))
}

func TestWriter_EncodeFailureDropsEvent(t *testing.T) {
	w, _ := setupTestWriter(t, DefaultMaxFileSize, nil)
	res := w.Append(context.Background(), domain.Event{"id": "bad", "payload": make(chan int)})
	if res.Status != domain.DroppedEncodeFailure {
		t.Fatalf("expected DroppedEncodeFailure, got %s", res.Status)
	}
	if !errors.Is(res.Err, domain.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", res.Err)
	}
}

func TestWriter_NilEventDoesNotHideLaterRecords(t *testing.T) {
	w, _ := setupTestWriter(t, DefaultMaxFileSize, nil)

	var want []string
	for i, ev := range []domain.Event{testEvent(1), nil, testEvent(2), testEvent(3)} {
		res := w.Append(context.Background(), ev)
		if ev == nil {
			if res.Status != domain.DroppedEncodeFailure || !errors.Is(res.Err, domain.ErrEncode) {
				t.Fatalf("append %d: expected nil event to be dropped as encode failure, got %s (%v)", i, res.Status, res.Err)
			}
			continue
		}
		if !res.OK() {
			t.Fatalf("append %d: status=%s err=%v", i, res.Status, res.Err)
		}
		want = append(want, ev["id"].(string))
	}

	events, err := NewReader(discardLogger()).ReadEvents(w.CurrentPath())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := ids(events)
	if len(got) != len(want) {
		t.Fatalf("expected every appended event %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWriter_WriteFailureDropsEvent(t *testing.T) {
	w, _ := setupTestWriter(t, DefaultMaxFileSize, nil)
	// A directory where the current file belongs makes the open fail.
	if err := os.Mkdir(w.CurrentPath(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	res := w.Append(context.Background(), testEvent(0))
	if res.Status != domain.DroppedWriteFailure {
		t.Fatalf("expected DroppedWriteFailure, got %s", res.Status)
	}
	if !errors.Is(res.Err, domain.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", res.Err)
	}
}

func TestWriter_ConcurrentWritersLoseNothing(t *testing.T) {
	base := t.TempDir()
	const (
		writers   = 4
		perWriter = 50
	)

	var wg sync.WaitGroup
	for g := 0; g < writers; g++ {
		// Separate Writers stand in for separate processes sharing a ledger.
		w, err := NewWriter(Options{Base: base, Name: "shared", MaxFileSize: 2048, LockTimeout: 10 * time.Second}, nil, discardLogger(), nil)
		if err != nil {
			t.Fatalf("new writer: %v", err)
		}
		wg.Add(1)
		go func(g int, w *Writer) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				res := w.Append(context.Background(), domain.Event{"id": fmt.Sprintf("w%d-%d", g, i), "ts": float64(i)})
				if !res.OK() {
					t.Errorf("append: %s %v", res.Status, res.Err)
				}
			}
		}(g, w)
	}
	wg.Wait()

	files, err := NewEnumerator(base, "shared").ListFiles(true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("expected rotations to have happened, got files %v", files)
	}

	reader := NewReader(discardLogger())
	seen := map[string]int{}
	for _, f := range files {
		events, err := reader.ReadEvents(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		for _, id := range ids(events) {
			seen[id]++
		}
	}
	if len(seen) != writers*perWriter {
		t.Fatalf("expected %d distinct events, got %d", writers*perWriter, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("event %s appears %d times", id, n)
		}
	}
}

func TestNewWriter_Validation(t *testing.T) {
	if _, err := NewWriter(Options{Base: t.TempDir()}, nil, discardLogger(), nil); err == nil {
		t.Fatal("expected an error for an empty ledger name")
	}

	base := filepath.Join(t.TempDir(), "nested", "dir")
	w, err := NewWriter(Options{Base: base, Name: "default"}, nil, discardLogger(), nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		t.Fatalf("expected base directory to be created: %v", err)
	}
	if w.CurrentPath() != filepath.Join(base, "default.aep.current") {
		t.Errorf("unexpected current path %s", w.CurrentPath())
	}
	if w.maxFileSize != DefaultMaxFileSize || w.lockTimeout != DefaultLockTimeout {
		t.Errorf("expected defaults, got size=%d timeout=%s", w.maxFileSize, w.lockTimeout)
	}
}

func encodeAll(t *testing.T, events ...domain.Event) []byte {
	t.Helper()
	var out []byte
	for _, e := range events {
		b, err := codec.Encode(e)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		out = append(out, b...)
	}
	return out
}
