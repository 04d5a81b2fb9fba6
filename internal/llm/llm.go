package llm

import (
	"context"
	"errors"
	"io"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Options tune a single inference call.
type Options struct {
	MaxTokens   int
	Temperature float32
	// JSON asks the provider for a single JSON object response.
	JSON bool
}

// Client abstracts inference providers.
type Client interface {
	// Complete returns the whole model response.
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)
	// Stream returns the response incrementally.
	Stream(ctx context.Context, msgs []Message, opts Options) (Stream, error)
}

// Stream yields response fragments. Recv returns io.EOF after the last one.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Describer is implemented by providers that can name themselves.
type Describer interface {
	Provider() string
	Model() string
}

var (
	// ErrNotImplemented is returned by the placeholder client.
	ErrNotImplemented = errors.New("inference provider not configured")
	// ErrMalformedOutput marks a response that could not be parsed. It is retryable.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrTransient marks provider errors worth retrying (throttling, 5xx).
	ErrTransient = errors.New("transient inference error")
)

// Transient wraps err so retry logic treats it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// PlaceholderClient fails every call; it is used when no provider is configured.
type PlaceholderClient struct{}

func (PlaceholderClient) Complete(context.Context, []Message, Options) (string, error) {
	return "", ErrNotImplemented
}

func (PlaceholderClient) Stream(context.Context, []Message, Options) (Stream, error) {
	return nil, ErrNotImplemented
}

func (PlaceholderClient) Provider() string { return "placeholder" }

func (PlaceholderClient) Model() string { return "" }

// SliceStream returns a Stream over fixed fragments.
func SliceStream(chunks ...string) Stream {
	return &sliceStream{chunks: chunks}
}

type sliceStream struct {
	chunks []string
	pos    int
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if s.closed || s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// Collect drains a stream into one string.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, chunk...)
	}
}
