package chapter

import (
	"errors"
	"fmt"
)

// ErrHalted is returned by the write loop when a pause or cancel signal was observed.
// It is not a failure.
var ErrHalted = errors.New("chapter download halted")

// InvalidIDError is returned for composite keys that cannot be split into three parts.
type InvalidIDError struct {
	Key    string
	Reason string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid chapter id %q: %s", e.Key, e.Reason)
}

// FetchError wraps a content provider failure.
type FetchError struct {
	ID  ID
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch pages for %s: %v", e.ID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// WriteError represents a failure downloading or writing a single page.
type WriteError struct {
	ID   ID
	Page int // zero-based page index
	URL  string
	Err  error
}

func (e *WriteError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("write page %d of %s from %s: %v", e.Page, e.ID, e.URL, e.Err)
	}

	return fmt.Sprintf("write page %d of %s: %v", e.Page, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// FinalizeError represents a failure moving or compressing a finished scratch directory.
type FinalizeError struct {
	ID   ID
	Mode string // "directory" or "archive"
	Err  error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize %s of %s: %v", e.Mode, e.ID, e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}
