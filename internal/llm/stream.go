package llm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// Stream is a single-pass, consumer-paced sequence of text fragments.
//
//	for s.Next() {
//		fmt.Print(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
//
// The underlying connection is released when the sequence ends, on Close, or
// when the context it was opened with is cancelled. A Stream is not safe for
// concurrent use; cancel its context to stop it from another goroutine.
type Stream struct {
	next    func() (string, error)
	release func() error

	cur      string
	err      error
	finished bool

	closeOnce sync.Once
	closeErr  error
}

// LineDecoder interprets one line of a streamed response body. It reports the
// fragment carried by the line (possibly ""), whether the line terminates the
// stream, and ok=false for lines that should be skipped. A non-nil err ends
// the stream with that failure.
type LineDecoder func(line string) (text string, done bool, ok bool, err error)

// NewLineStream reads body line by line through decode. cancel, when non-nil,
// is called once the stream is released.
func NewLineStream(backend string, body io.ReadCloser, cancel context.CancelFunc, decode LineDecoder) *Stream {
	br := bufio.NewReader(body)
	s := &Stream{
		release: func() error {
			err := body.Close()
			if cancel != nil {
				cancel()
			}
			return err
		},
	}
	s.next = func() (string, error) {
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				text, done, ok, derr := decode(strings.TrimRight(line, "\r\n"))
				if derr != nil {
					return "", wrap(backend, "stream", derr)
				}
				if done {
					if ok && text != "" {
						// Deliver the final fragment; the next call hits EOF below.
						br = bufio.NewReader(strings.NewReader(""))
						return text, nil
					}
					return "", io.EOF
				}
				if ok && text != "" {
					return text, nil
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return "", io.EOF
				}
				return "", wrap(backend, "stream", err)
			}
		}
	}
	return s
}

// FromFragments returns a stream that yields frags in order, then ends with err
// (nil for a clean end).
func FromFragments(err error, frags ...string) *Stream {
	i := 0
	return &Stream{
		next: func() (string, error) {
			if i < len(frags) {
				i++
				return frags[i-1], nil
			}
			if err != nil {
				return "", err
			}
			return "", io.EOF
		},
	}
}

func (s *Stream) Next() bool {
	if s == nil || s.finished {
		return false
	}
	text, err := s.next()
	if err != nil {
		s.finished = true
		s.cur = ""
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		_ = s.Close()
		return false
	}
	s.cur = text
	return true
}

// Text is the fragment produced by the last successful Next.
func (s *Stream) Text() string {
	if s == nil {
		return ""
	}
	return s.cur
}

func (s *Stream) Err() error {
	if s == nil {
		return nil
	}
	return s.err
}

// Close releases the upstream connection. It is safe to call more than once.
func (s *Stream) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.finished = true
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}

// Collect drains s and returns the concatenated text.
func Collect(s *Stream) (string, error) {
	defer s.Close()
	var b strings.Builder
	for s.Next() {
		b.WriteString(s.Text())
	}
	return b.String(), s.Err()
}
