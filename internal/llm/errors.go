package llm

import (
	"errors"
	"fmt"
)

var (
	ErrNoEmbedding   = errors.New("no embedding returned")
	ErrModelNotFound = errors.New("model not available on server")
	ErrUnsupported   = errors.New("operation not supported by backend")
)

// HTTPError is a non-2xx answer from the inference server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "upstream http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("upstream http error: status=%d body=%s", e.StatusCode, e.Body)
}

// UpstreamError is a failure the inference server reported inside an
// otherwise successful streamed response.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "upstream error: " + e.Message
}

// Error is the gateway failure callers see from Generate, Embed and Stream.Err.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "llm error"
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	return &Error{Backend: backend, Op: op, Err: err}
}

// Wrap tags err with the backend and operation unless it already is an *Error.
func Wrap(backend, op string, err error) error { return wrap(backend, op, err) }
