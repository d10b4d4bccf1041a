package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparsableContent means neither a structured-JSON document nor a
	// recognizable XML feed root could be extracted from the response body.
	ErrUnparsableContent = errors.New("unparsable feed content")

	// ErrSourceNotFound means the source id is unknown or not owned by the
	// caller.
	ErrSourceNotFound = errors.New("source not found")
)

// FetchError is a transient failure talking to the upstream feed: a
// transport error, timeout, or non-success HTTP status. It increments the
// source's failure counter but never corrupts stored article state.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the request never produced a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
