package api

import "fmt"

// FetchError reports a failed history or case read. Reads are never
// retried automatically; callers surface the failure.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch failed: status %d", e.Status)
	}
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError reports a rejected or failed message create. The store does
// not retry; the optimistic entry is flagged failed.
type SendError struct {
	Status int
	Err    error
}

func (e *SendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("send failed: status %d", e.Status)
	}
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
