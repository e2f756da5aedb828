package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/V4T54L/aep-ledger/internal/domain"
)

// Enumerator lists the files of one ledger.
type Enumerator struct {
	base string
	name string
}

// NewEnumerator returns an Enumerator for the ledger (base, name).
func NewEnumerator(base, name string) *Enumerator {
	return &Enumerator{base: base, name: name}
}

// CurrentPath returns the path of the ledger's current file.
func (e *Enumerator) CurrentPath() string { return currentPath(e.base, e.name) }

// ListFiles returns archives oldest first, then the current file when
// includeCurrent is set and it exists. A missing base directory has no files.
func (e *Enumerator) ListFiles(includeCurrent bool) ([]string, error) {
	files, err := e.Files(includeCurrent)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// Files is ListFiles with file sizes.
func (e *Enumerator) Files(includeCurrent bool) ([]domain.LedgerFile, error) {
	entries, err := os.ReadDir(e.base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger directory %s: %w", e.base, err)
	}

	var archives []domain.LedgerFile
	var current *domain.LedgerFile
	currentName := CurrentFileName(e.name)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		isArchive := IsArchiveOf(e.name, entry.Name())
		isCurrent := entry.Name() == currentName
		if !isArchive && !(isCurrent && includeCurrent) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Rotated away between ReadDir and Info.
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		f := domain.LedgerFile{
			Path:    filepath.Join(e.base, entry.Name()),
			Name:    entry.Name(),
			Size:    info.Size(),
			Current: isCurrent,
		}
		if isCurrent {
			current = &f
			continue
		}
		archives = append(archives, f)
	}

	sort.Slice(archives, func(i, j int) bool { return archives[i].Name < archives[j].Name })
	if current != nil {
		archives = append(archives, *current)
	}
	return archives, nil
}
