package storage

import "fmt"

// Error reports a failed store operation.
type Error struct {
	Op   string // "load", "save", "clear", "lock", "open"
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CorruptError is wrapped by Load errors under CorruptStrict when the
// persisted state exists but does not decode into a valid conversation.
type CorruptError struct {
	Reason error
}

func (e *CorruptError) Error() string {
	return "corrupt conversation: " + e.Reason.Error()
}

func (e *CorruptError) Unwrap() error {
	return e.Reason
}
