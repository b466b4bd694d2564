package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/nono-backend/internal/llm"
)

// TurnStream is one streamed chat turn. The caller drains it with Next/Text,
// then calls Complete to store the reply, and always calls Close. Like
// llm.Stream it is single-pass and not safe for concurrent use.
type TurnStream struct {
	svc    *chatService
	turn   *turn
	stream *llm.Stream
	span   trace.Span

	reply    strings.Builder
	complete bool
	failure  error
	closeErr error
	once     sync.Once
}

func (ts *TurnStream) Next() bool {
	if ts.complete || !ts.stream.Next() {
		return false
	}
	ts.reply.WriteString(ts.stream.Text())
	return true
}

func (ts *TurnStream) Text() string { return ts.stream.Text() }

func (ts *TurnStream) Err() error { return ts.stream.Err() }

// Persona is the persona key the turn was generated with.
func (ts *TurnStream) Persona() string { return ts.turn.persona }

// Complete stores the concatenated reply once the stream is drained. When the
// stream ended with an error nothing is stored beyond the user message and the
// error is returned as a generation failure.
func (ts *TurnStream) Complete(ctx context.Context) (reply string, err error) {
	if ts.complete {
		return "", errors.New("turn already completed")
	}
	defer func() {
		ts.failure = err
		ts.svc.record(ts.turn, err)
	}()
	ts.complete = true
	if serr := ts.stream.Err(); serr != nil {
		return "", generationFailed(serr)
	}
	reply = ts.reply.String()
	if err := ts.svc.finish(ctx, ts.turn, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// Close releases the upstream connection and ends the turn's span. A turn
// closed before Complete counts as failed with ErrTurnAbandoned, or with the
// upstream error when the stream had already failed.
func (ts *TurnStream) Close() error {
	ts.once.Do(func() {
		ts.closeErr = ts.stream.Close()
		if !ts.complete {
			ts.complete = true
			ts.failure = ErrTurnAbandoned
			if serr := ts.stream.Err(); serr != nil {
				ts.failure = generationFailed(serr)
			}
			ts.svc.record(ts.turn, ts.failure)
		}
		endSpan(ts.span, &ts.failure)
	})
	return ts.closeErr
}
