package domain

import (
	"errors"
	"fmt"
)

// Failure taxonomy of the ledger. Writer, Archiver and Reader report these
// instead of failing the host application; only the merge command turns
// ErrOutputWrite into a non-zero exit.
var (
	ErrLockTimeout  = errors.New("ledger lock timeout")
	ErrRotation     = errors.New("ledger rotation failed")
	ErrWrite        = errors.New("ledger write failed")
	ErrEncode       = errors.New("event encode failed")
	ErrDecode       = errors.New("event decode failed")
	ErrFileNotFound = errors.New("ledger file not found")
	ErrOutputWrite  = errors.New("merge output write failed")
)

// ErrStop may be returned by an EventReader.Stream callback to end the read
// early. Stream then returns nil.
var ErrStop = errors.New("stop reading")

// DecodeError describes a record stream that ended mid-record or contained
// bytes that are not a valid record. Records lists how many complete records
// were decoded before the failure and Offset is the byte offset of the record
// that could not be decoded.
type DecodeError struct {
	Path    string
	Offset  int64
	Records int
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decode %s at offset %d after %d records: %v", e.Path, e.Offset, e.Records, e.Err)
	}
	return fmt.Sprintf("decode at offset %d after %d records: %v", e.Offset, e.Records, e.Err)
}

// Unwrap lets errors.Is match both ErrDecode and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}
