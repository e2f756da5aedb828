package domain

import "context"

// LedgerWriter appends events to a ledger. Append never blocks indefinitely
// and never fails the caller; the result describes whether the event landed.
type LedgerWriter interface {
	Append(ctx context.Context, event Event) AppendResult
}

// Archiver turns a current file into an immutable compressed archive.
type Archiver interface {
	Rotate(currentPath string) (archivePath string, err error)
}

// EventReader decodes the records stored in a ledger file, current or archived.
type EventReader interface {
	// Stream hands each decoded event to fn in file order. A truncated tail
	// yields every complete record followed by a *DecodeError.
	Stream(path string, fn func(Event) error) error

	// ReadEvents returns every decodable event of the file.
	ReadEvents(path string) ([]Event, error)
}

// FileEnumerator lists the files that make up a ledger.
type FileEnumerator interface {
	// ListFiles returns archive paths in chronological order, followed by the
	// current file when includeCurrent is set and it exists.
	ListFiles(includeCurrent bool) ([]string, error)

	// Files is ListFiles with sizes and the current-file flag.
	Files(includeCurrent bool) ([]LedgerFile, error)

	// CurrentPath is the path of the ledger's current file, existing or not.
	CurrentPath() string
}
