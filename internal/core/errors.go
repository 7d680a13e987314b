package core

import "errors"

// Failure taxonomy shared by every component. Wrap with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	// ErrStorage is a backing store open/read/write failure.
	ErrStorage = errors.New("storage failure")
	// ErrValidation is a malformed record.
	ErrValidation = errors.New("validation failure")
	// ErrNotFound is an absent id/type or recurrence index.
	ErrNotFound = errors.New("not found")
	// ErrSync is a network or authority failure during sync.
	ErrSync = errors.New("sync failure")
	// ErrCorruptRecurrency is a recurring template without its recurrency.
	ErrCorruptRecurrency = errors.New("corrupt recurrency")
)
