package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/liliang-cn/lexrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chunkedBody serves predetermined chunks, then err (io.EOF when nil)
type chunkedBody struct {
	chunks []string
	err    error
	closed int
	reads  int
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	b.reads++
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed++
	return nil
}

func collect(t *testing.T, s *ResponseStream) ([]domain.Event, error) {
	t.Helper()
	var events []domain.Event
	for ev, err := range s.All() {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestResponseStream_FullResponse(t *testing.T) {
	body := &chunkedBody{chunks: []string{
		`{"type":"strategy","strategy":"complex"}` + "\n" + `{"type":"reasoning","subq`,
		`ueries":["a","b"]}` + "\n",
		`{"type":"token","content":"Answer: "}` + "\n" + `{"type":"token","content":"42"}` + "\n",
		`{"type":"sources","sources":[{"title":"doc.pdf","page":0,"snippet":"..."}]}` + "\n",
		`{"type":"done"}` + "\n",
	}}

	events, err := collect(t, NewResponseStream(body, WithLogger(zaptest.NewLogger(t))))
	require.NoError(t, err)

	assert.Equal(t, []domain.Event{
		domain.StrategyEvent{Strategy: domain.StrategyComplex},
		domain.ReasoningEvent{Subqueries: []string{"a", "b"}},
		domain.TokenEvent{Content: "Answer: "},
		domain.TokenEvent{Content: "42"},
		domain.SourcesEvent{Sources: []domain.Source{{Title: "doc.pdf", Page: domain.PageNumber(0), Snippet: "..."}}},
		domain.DoneEvent{},
	}, events)
	assert.Equal(t, 1, body.closed)
}

func TestResponseStream_StopsAtTerminalEvent(t *testing.T) {
	body := &chunkedBody{chunks: []string{
		`{"type":"token","content":"x"}` + "\n" + `{"type":"error","message":"boom"}` + "\n" + `{"type":"token","content":"late"}` + "\n",
		`{"type":"done"}` + "\n",
	}}
	s := NewResponseStream(body)

	events, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []domain.Event{
		domain.TokenEvent{Content: "x"},
		domain.ErrorEvent{Message: "boom"},
	}, events)

	// The second chunk is never read and the body is closed
	assert.Equal(t, 1, body.reads)
	assert.Equal(t, 1, body.closed)

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestResponseStream_TruncatedWithoutTerminal(t *testing.T) {
	body := &chunkedBody{chunks: []string{
		`{"type":"token","content":"partial"}` + "\n" + `{"type":"done"}`,
	}}
	s := NewResponseStream(body)

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.TokenEvent{Content: "partial"}, ev)

	// The unterminated done line must not produce an event
	_, err = s.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStreamTruncated)
	assert.NotErrorIs(t, err, io.EOF)

	var trunc *TruncatedError
	require.ErrorAs(t, err, &trunc)
	assert.Equal(t, len(`{"type":"done"}`), trunc.Discarded)
	assert.Equal(t, 1, body.closed)
}

func TestResponseStream_ReadErrorIsTruncation(t *testing.T) {
	readErr := errors.New("connection reset by peer")
	body := &chunkedBody{chunks: []string{`{"type":"token","content":"a"}` + "\n"}, err: readErr}

	events, err := collect(t, NewResponseStream(body))
	assert.Len(t, events, 1)
	assert.ErrorIs(t, err, domain.ErrStreamTruncated)
	assert.ErrorIs(t, err, readErr)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestResponseStream_SkipsMalformedLines(t *testing.T) {
	var skipped []domain.SkipEvent
	body := &chunkedBody{chunks: []string{
		`{"type":"token","content":"Hello "}` + "\n" + "not json\n" + `{"type":"ping"}` + "\n" +
			`{"type":"token","content":"world"}` + "\n" + `{"type":"done"}` + "\n",
	}}
	s := NewResponseStream(body, WithSkipHook(func(ev domain.SkipEvent) { skipped = append(skipped, ev) }))

	events, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []domain.Event{
		domain.TokenEvent{Content: "Hello "},
		domain.TokenEvent{Content: "world"},
		domain.DoneEvent{},
	}, events)
	assert.Equal(t, 2, s.Skipped())
	require.Len(t, skipped, 2)
	assert.Equal(t, domain.SkipMalformed, skipped[0].Reason)
	assert.Equal(t, domain.SkipUnknownType, skipped[1].Reason)
}

func TestResponseStream_SmallReadSize(t *testing.T) {
	payload := `{"type":"strategy","strategy":"simple_conversation"}` + "\n" +
		`{"type":"token","content":"Grüße "}` + "\n" +
		`{"type":"token","content":"world"}` + "\n" +
		`{"type":"done"}` + "\n"

	for _, size := range []int{1, 2, 3, 7, 64} {
		body := &chunkedBody{chunks: []string{payload}}
		events, err := collect(t, NewResponseStream(body, WithReadSize(size)))
		require.NoError(t, err, "read size %d", size)
		require.Len(t, events, 4, "read size %d", size)
		assert.Equal(t, domain.TokenEvent{Content: "Grüße "}, events[1])
	}
}

func TestResponseStream_BreakClosesBody(t *testing.T) {
	body := &chunkedBody{chunks: []string{strings.Repeat(`{"type":"token","content":"t"}`+"\n", 5)}}
	s := NewResponseStream(body)

	for range s.All() {
		break
	}
	assert.Equal(t, 1, body.closed)

	_, err := s.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.NoError(t, s.Close())
	assert.Equal(t, 1, body.closed)
}
