package feed

import (
	"errors"
	"fmt"
)

var ErrMalformedFeed = errors.New("malformed feed")

// FetchError reports a failed retrieval. StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	cause      error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.cause != nil:
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.cause)
	}
}

func (e *FetchError) Unwrap() error {
	return e.cause
}
