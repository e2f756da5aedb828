package ledger

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	ledgerInfix     = ".aep."
	currentSuffix   = ".aep.current"
	archiveSuffix   = ".msgpack.gz"
	lockSuffix      = ".lock"
	archiveTimeFmt  = "20060102T150405Z"
	maxArchiveTries = 1000

	dirPerm  = 0o755
	filePerm = 0o644
)

// CurrentFileName returns the current-file name of ledger name.
func CurrentFileName(name string) string { return name + currentSuffix }

// ArchiveFileName returns the archive name for a rotation at t. seq 0 is the
// plain name; later seqs add a fixed-width "_NNN" which sorts after the plain
// name because '_' > '.', so lexicographic order stays chronological.
func ArchiveFileName(name string, t time.Time, seq int) string {
	stamp := t.UTC().Format(archiveTimeFmt)
	if seq > 0 {
		stamp = fmt.Sprintf("%s_%03d", stamp, seq)
	}
	return name + ledgerInfix + stamp + archiveSuffix
}

// IsArchiveOf reports whether file (a base name) is an archive of ledger
// name: the part between "<name>.aep." and ".msgpack.gz" must be an archive
// timestamp, optionally followed by a "_NNN" collision suffix.
func IsArchiveOf(name, file string) bool {
	prefix := name + ledgerInfix
	if !strings.HasPrefix(file, prefix) || !strings.HasSuffix(file, archiveSuffix) {
		return false
	}
	stamp := file[len(prefix):]
	if len(stamp) < len(archiveSuffix) {
		return false
	}
	stamp = stamp[:len(stamp)-len(archiveSuffix)]
	if i := strings.IndexByte(stamp, '_'); i >= 0 {
		if !isSeq(stamp[i+1:]) {
			return false
		}
		stamp = stamp[:i]
	}
	_, err := time.Parse(archiveTimeFmt, stamp)
	return err == nil
}

func isSeq(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsCompressed reports whether path names a gzip stream.
func IsCompressed(path string) bool { return strings.HasSuffix(path, ".gz") }

func currentPath(base, name string) string {
	return filepath.Join(base, CurrentFileName(name))
}

func lockPath(current string) string { return current + lockSuffix }
