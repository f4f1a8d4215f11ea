package data

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskActive        = errors.New("task is downloading")
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrIncompleteListing = errors.New("listing incomplete")
)

// FetchError is a network, timeout or status failure that survived every
// retry attempt.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means an expected element was missing from the markup.
type ParseError struct {
	URL      string
	Selector string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: no match for %q", e.URL, e.Selector)
}

// DecodeError means a payload was not a recognised image.
type DecodeError struct {
	Src string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Src, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IOError is a filesystem create or write failure.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// PersistenceError is a failed task store operation.
type PersistenceError struct {
	Op     string
	TaskID int64
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.TaskID == 0 {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s task %d: %v", e.Op, e.TaskID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IncompleteListingError reports groups whose advertised image count did
// not match what the page contained. Retrying the ingress re-fetches them.
type IncompleteListingError struct {
	URL     string
	Pending []string
}

func (e *IncompleteListingError) Error() string {
	const max = 5
	names := e.Pending
	suffix := ""
	if len(names) > max {
		names = names[:max]
		suffix = fmt.Sprintf(" (+%d more)", len(e.Pending)-max)
	}
	return fmt.Sprintf("%s: %d group(s) not resolved: %s%s", e.URL, len(e.Pending), strings.Join(names, ", "), suffix)
}

func (e *IncompleteListingError) Unwrap() error { return ErrIncompleteListing }
