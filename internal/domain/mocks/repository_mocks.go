package mocks

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"

	"github.com/V4T54L/aep-ledger/internal/domain"
)

// MockEventReader is a mock implementation of domain.EventReader for testing.
// Events and Errs are keyed by path; a path present in neither behaves like a
// missing file.
type MockEventReader struct {
	mu     sync.Mutex
	Events map[string][]domain.Event
	Errs   map[string]error
	Reads  []string
}

func (m *MockEventReader) Stream(path string, fn func(domain.Event) error) error {
	m.mu.Lock()
	m.Reads = append(m.Reads, path)
	events, ok := m.Events[path]
	err, hasErr := m.Errs[path]
	m.mu.Unlock()

	if !ok && !hasErr {
		return domain.ErrFileNotFound
	}
	for _, e := range events {
		if ferr := fn(e); ferr != nil {
			if errors.Is(ferr, domain.ErrStop) {
				return nil
			}
			return ferr
		}
	}
	return err
}

func (m *MockEventReader) ReadEvents(path string) ([]domain.Event, error) {
	var out []domain.Event
	err := m.Stream(path, func(e domain.Event) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// MockFileEnumerator is a mock implementation of domain.FileEnumerator.
type MockFileEnumerator struct {
	Current  string
	Archives []domain.LedgerFile
	HasCur   bool
	CurSize  int64
	ListErr  error
}

func (m *MockFileEnumerator) CurrentPath() string { return m.Current }

func (m *MockFileEnumerator) Files(includeCurrent bool) ([]domain.LedgerFile, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	files := append([]domain.LedgerFile(nil), m.Archives...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	if includeCurrent && m.HasCur {
		files = append(files, domain.LedgerFile{Path: m.Current, Name: filepath.Base(m.Current), Size: m.CurSize, Current: true})
	}
	return files, nil
}

func (m *MockFileEnumerator) ListFiles(includeCurrent bool) ([]string, error) {
	files, err := m.Files(includeCurrent)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// MockLedgerWriter is a mock implementation of domain.LedgerWriter. It records
// every event and answers with Status.
type MockLedgerWriter struct {
	mu       sync.Mutex
	Appended []domain.Event
	Status   domain.AppendStatus
	Err      error
}

func (m *MockLedgerWriter) Append(ctx context.Context, event domain.Event) domain.AppendResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Status != domain.Appended {
		return domain.AppendResult{Status: m.Status, Err: m.Err}
	}
	m.Appended = append(m.Appended, event)
	return domain.AppendResult{Status: domain.Appended}
}
