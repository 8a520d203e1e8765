package classify

import "fmt"

// MalformedResponseError reports a model response that could not be parsed
// into the expected wire shape. Permanent for the attempt: the same prompt is
// not retried on it.
type MalformedResponseError struct {
	Stage  string // "coarse" or "deep"
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s response malformed: %s", e.Stage, e.Reason)
}

// ValidationError reports a response that parsed but violated a semantic
// constraint (importance out of range, item on a non-academic category).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// IsRetryable reports whether an error anywhere in the chain marks a
// transient external failure (network, 429, 5xx, timeout).
func IsRetryable(err error) bool {
	for e := err; e != nil; {
		if _, ok := e.(*retryableError); ok {
			return true
		}
		if unwrapper, ok := e.(interface{ Unwrap() error }); ok {
			e = unwrapper.Unwrap()
		} else {
			break
		}
	}
	return false
}
