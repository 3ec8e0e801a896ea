package httpclient

import (
	"fmt"
)

// SourceError reports a non-retryable failure talking to a source: a
// transport error other than a timeout, an HTTP error status, or a body that
// is not valid JSON.
type SourceError struct {
	Source string
	URL    string
	Status int // 0 when no response was received
	Body   string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: GET %s returned %d: %v", e.Source, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Source, e.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
