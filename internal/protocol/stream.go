package protocol

import (
	"errors"
	"io"
	"iter"
	"sync"

	"github.com/liliang-cn/lexrag/internal/domain"
	"go.uber.org/zap"
)

// DefaultReadSize is the chunk size requested from the body per read
const DefaultReadSize = 4096

// ErrStreamClosed is returned by Next after the caller closed the stream
var ErrStreamClosed = errors.New("response stream closed")

// SkipHook observes lines the decoder dropped
type SkipHook func(domain.SkipEvent)

// TruncatedError reports a body that ended without a done or error event
type TruncatedError struct {
	// Cause is the read error that ended the body; io.EOF for a clean close
	Cause error
	// Discarded is the length of an unterminated trailing fragment that was dropped
	Discarded int
}

func (e *TruncatedError) Error() string {
	if e.Cause == nil || e.Cause == io.EOF {
		return domain.ErrStreamTruncated.Error()
	}
	return domain.ErrStreamTruncated.Error() + ": " + e.Cause.Error()
}

func (e *TruncatedError) Unwrap() []error {
	if e.Cause == nil || e.Cause == io.EOF {
		return []error{domain.ErrStreamTruncated}
	}
	return []error{domain.ErrStreamTruncated, e.Cause}
}

// Option configures a ResponseStream
type Option func(*ResponseStream)

// WithSkipHook registers a hook called for every dropped line
func WithSkipHook(hook SkipHook) Option {
	return func(s *ResponseStream) { s.onSkip = hook }
}

// WithReadSize sets the chunk size used when reading the body
func WithReadSize(n int) Option {
	return func(s *ResponseStream) {
		if n > 0 {
			s.buf = make([]byte, n)
		}
	}
}

// WithLogger sets the logger used for skip diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(s *ResponseStream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ResponseStream yields typed events from an NDJSON response body.
// It ends at the first done or error event, closing the body even if the
// server has not finished sending. A stream is single-use.
type ResponseStream struct {
	body     io.ReadCloser
	splitter *LineSplitter
	buf      []byte
	pending  []string
	readErr  error
	err      error

	skipped int
	onSkip  SkipHook
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewResponseStream wraps a body already known to belong to a successful response
func NewResponseStream(body io.ReadCloser, opts ...Option) *ResponseStream {
	s := &ResponseStream{
		body:     body,
		splitter: NewLineSplitter(),
		buf:      make([]byte, DefaultReadSize),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next protocol event.
// After a terminal event it returns io.EOF; if the body ends first it returns
// a *TruncatedError wrapping domain.ErrStreamTruncated.
func (s *ResponseStream) Next() (domain.Event, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}

		if ev, ok := s.nextPending(); ok {
			return ev, nil
		}

		if s.readErr != nil {
			discarded := s.splitter.Finish()
			if discarded > 0 {
				s.logger.Debug("discarding unterminated trailing line", zap.Int("bytes", discarded))
			}
			s.finish(&TruncatedError{Cause: s.readErr, Discarded: discarded})
			continue
		}

		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.splitter.Push(s.buf[:n])...)
		}
		if err != nil {
			s.readErr = err
		}
	}
}

// All adapts the stream to a range-over-func sequence.
// The sequence ends silently after a terminal event and yields the error otherwise.
// Breaking out of the loop closes the stream.
func (s *ResponseStream) All() iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		for {
			ev, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(ev, err) {
				s.Close()
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Skipped returns how many lines were dropped so far
func (s *ResponseStream) Skipped() int {
	return s.skipped
}

// Close releases the body. Safe to call more than once.
func (s *ResponseStream) Close() error {
	if s.err == nil {
		s.err = ErrStreamClosed
	}
	return s.close()
}

func (s *ResponseStream) nextPending() (domain.Event, bool) {
	for len(s.pending) > 0 {
		line := s.pending[0]
		s.pending = s.pending[1:]

		ev := DecodeEvent(line)
		if sk, ok := ev.(domain.SkipEvent); ok {
			s.skipped++
			s.logger.Debug("skipping stream line",
				zap.String("reason", string(sk.Reason)),
				zap.Int("length", len(sk.Line)),
			)
			if s.onSkip != nil {
				s.onSkip(sk)
			}
			continue
		}

		if domain.Terminal(ev) {
			s.pending = nil
			s.finish(io.EOF)
		}
		return ev, true
	}
	return nil, false
}

func (s *ResponseStream) finish(err error) {
	s.err = err
	s.close()
}

func (s *ResponseStream) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
