package domain

import "fmt"

// AppendStatus is the outcome of a single best-effort append.
type AppendStatus int

const (
	Appended AppendStatus = iota
	DroppedLockTimeout
	DroppedWriteFailure
	DroppedEncodeFailure
)

func (s AppendStatus) String() string {
	switch s {
	case Appended:
		return "appended"
	case DroppedLockTimeout:
		return "dropped_lock_timeout"
	case DroppedWriteFailure:
		return "dropped_write_failure"
	case DroppedEncodeFailure:
		return "dropped_encode_failure"
	default:
		return fmt.Sprintf("append_status(%d)", int(s))
	}
}

// AppendResult reports what happened to one appended event. Err is nil only
// when Status is Appended. A rotation attempted during the append is reported
// separately: Rotated holds the new archive path on success and RotationErr
// the failure otherwise; neither affects Status.
type AppendResult struct {
	Status      AppendStatus
	Err         error
	Bytes       int
	Rotated     string
	RotationErr error
}

// OK reports whether the event reached the current file.
func (r AppendResult) OK() bool { return r.Status == Appended }

// LedgerFile is one on-disk file of a ledger.
type LedgerFile struct {
	Path    string
	Name    string
	Size    int64
	Current bool
}
