package ledger

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/V4T54L/aep-ledger/internal/domain"
)

func gunzipFile(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader %s: %v", path, err)
	}
	defer gz.Close()
	b, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("gunzip %s: %v", path, err)
	}
	return b
}

func fixedClock(ts string) func() time.Time {
	t, _ := time.Parse(time.RFC3339, ts)
	return func() time.Time { return t }
}

func writeCurrent(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, CurrentFileName(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write current: %v", err)
	}
	return path
}

func TestArchiver_Rotate(t *testing.T) {
	dir := t.TempDir()
	data := encodeAll(t, testEvent(0), testEvent(1))
	current := writeCurrent(t, dir, "app", data)

	a := NewArchiver("app", discardLogger()).WithClock(fixedClock("2025-05-22T12:34:16Z"))
	archive, err := a.Rotate(current)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if want := filepath.Join(dir, "app.aep.20250522T123416Z.msgpack.gz"); archive != want {
		t.Fatalf("archive path %s, want %s", archive, want)
	}
	if _, err := os.Stat(current); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("current file should be removed after rotation, stat err=%v", err)
	}
	if got := gunzipFile(t, archive); !bytes.Equal(got, data) {
		t.Fatal("archive content is not the original byte stream")
	}
}

func TestArchiver_SameSecondCollisionGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	a := NewArchiver("app", discardLogger()).WithClock(fixedClock("2025-05-22T12:34:16Z"))

	var archives []string
	for i := 0; i < 3; i++ {
		current := writeCurrent(t, dir, "app", encodeAll(t, testEvent(i)))
		archive, err := a.Rotate(current)
		if err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
		archives = append(archives, filepath.Base(archive))
	}

	want := []string{
		"app.aep.20250522T123416Z.msgpack.gz",
		"app.aep.20250522T123416Z_001.msgpack.gz",
		"app.aep.20250522T123416Z_002.msgpack.gz",
	}
	for i := range want {
		if archives[i] != want[i] {
			t.Errorf("archive %d: got %s, want %s", i, archives[i], want[i])
		}
	}

	// Listing order must equal rotation order.
	listed, err := NewEnumerator(dir, "app").ListFiles(false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := range want {
		if filepath.Base(listed[i]) != want[i] {
			t.Errorf("listed %d: got %s, want %s", i, filepath.Base(listed[i]), want[i])
		}
	}
}

func TestArchiver_FailureLeavesCurrentUntouched(t *testing.T) {
	dir := t.TempDir()
	data := encodeAll(t, testEvent(0))
	current := writeCurrent(t, dir, "app", data)

	// Occupy every archive name for this second with directories so that no
	// archive can be created.
	clock := fixedClock("2025-05-22T12:34:16Z")
	for seq := 0; seq < maxArchiveTries; seq++ {
		if err := os.Mkdir(filepath.Join(dir, ArchiveFileName("app", clock(), seq)), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	_, err := NewArchiver("app", discardLogger()).WithClock(clock).Rotate(current)
	if !errors.Is(err, domain.ErrRotation) {
		t.Fatalf("expected ErrRotation, got %v", err)
	}
	got, readErr := os.ReadFile(current)
	if readErr != nil {
		t.Fatalf("current file must survive a failed rotation: %v", readErr)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("current file content changed after a failed rotation")
	}
}

func TestArchiver_MissingCurrent(t *testing.T) {
	_, err := NewArchiver("app", discardLogger()).Rotate(filepath.Join(t.TempDir(), "app.aep.current"))
	if !errors.Is(err, domain.ErrRotation) {
		t.Fatalf("expected ErrRotation, got %v", err)
	}
}

func TestArchiveFileName(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 999, time.FixedZone("X", 3600))
	if got := ArchiveFileName("default", ts, 0); got != "default.aep.20250102T020405Z.msgpack.gz" {
		t.Errorf("unexpected name %s", got)
	}
	if got := ArchiveFileName("default", ts, 7); got != "default.aep.20250102T020405Z_007.msgpack.gz" {
		t.Errorf("unexpected suffixed name %s", got)
	}
}

func TestIsArchiveOf(t *testing.T) {
	tests := []struct {
		file string
		want bool
	}{
		{"foo.aep.20250102T030405Z.msgpack.gz", true},
		{"foo.aep.20250102T030405Z_001.msgpack.gz", true},
		{"foo.aep.x.aep.20250102T030405Z.msgpack.gz", false},
		{"foo.aep.merged.msgpack.gz", false},
		{"foo.aep.20250102T030405Z_1.msgpack.gz", false},
		{"foo.aep.20250102T030405Z_abc.msgpack.gz", false},
		{"foo.aep.20251302T030405Z.msgpack.gz", false},
		{"foo.aep..msgpack.gz", false},
		{"foo.aep.current", false},
		{"bar.aep.20250102T030405Z.msgpack.gz", false},
	}
	for _, tc := range tests {
		if got := IsArchiveOf("foo", tc.file); got != tc.want {
			t.Errorf("IsArchiveOf(foo, %s) = %v, want %v", tc.file, got, tc.want)
		}
	}
}
