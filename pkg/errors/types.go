package errors

import (
	"fmt"
)

// RemoteUnavailable indicates that the remote directory could not be
// reached, typically because the underlying network filesystem mount
// dropped. A cycle that hits this at its start is deferred and retried
// with backoff.
type RemoteUnavailable struct {
	Cause error
}

func (err RemoteUnavailable) Error() string {
	return fmt.Sprintf("remote directory unavailable: %s", err.Cause)
}

func (err RemoteUnavailable) Unwrap() error {
	return err.Cause
}

// IntegrityMismatch indicates that fetched content disagrees with the
// metadata it was fetched under. The record's location is left unchanged.
type IntegrityMismatch struct {
	Path     string
	Expected int64
	Actual   int64
}

func (err IntegrityMismatch) Error() string {
	return fmt.Sprintf("%q: fetched %d bytes, expected %d",
		err.Path, err.Actual, err.Expected)
}

// BudgetExceeded indicates that a single item is larger than the entire
// storage limit. Non-fatal: the item stays remote-only.
type BudgetExceeded struct {
	Path  string
	Size  int64
	Limit int64
}

func (err BudgetExceeded) Error() string {
	return fmt.Sprintf("%q (%d bytes) exceeds the storage limit (%d bytes)",
		err.Path, err.Size, err.Limit)
}

// TrashLookupFailure indicates that a configured trash root couldn't be
// searched. Callers treat it as "no match found".
type TrashLookupFailure struct {
	Root  string
	Cause error
}

func (err TrashLookupFailure) Error() string {
	return fmt.Sprintf("search trash root %q: %s", err.Root, err.Cause)
}

func (err TrashLookupFailure) Unwrap() error {
	return err.Cause
}

// ConcurrentModification indicates that a path changed while an operation
// on it was in progress. The operation is aborted and the path is
// re-evaluated on the next cycle.
type ConcurrentModification struct {
	Path string
}

func (err ConcurrentModification) Error() string {
	return fmt.Sprintf("%q changed during the operation", err.Path)
}

// FileNotFound represents when we were unable to access a file because the
// path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}
