package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// EventType is the discriminator carried in the "type" field of every stream line
type EventType string

const (
	EventStrategy  EventType = "strategy"
	EventReasoning EventType = "reasoning"
	EventToken     EventType = "token"
	EventSources   EventType = "sources"
	EventDone      EventType = "done"
	EventError     EventType = "error"
	// EventSkip never appears on the wire; it marks a line the decoder dropped
	EventSkip EventType = "skip"
)

// Strategy is the retrieval approach the backend picked for a query
type Strategy string

const (
	StrategyComplex            Strategy = "complex"
	StrategyMultiHop           Strategy = "multi_hop"
	StrategySimpleConversation Strategy = "simple_conversation"
)

// Valid reports whether s is one of the known strategies
func (s Strategy) Valid() bool {
	switch s {
	case StrategyComplex, StrategyMultiHop, StrategySimpleConversation:
		return true
	}
	return false
}

// Event is one decoded line of a chat response stream.
// The set of implementations is closed; switch on the concrete type.
type Event interface {
	Type() EventType
	isEvent()
}

// Terminal reports whether ev ends a response stream
func Terminal(ev Event) bool {
	switch ev.(type) {
	case DoneEvent, ErrorEvent:
		return true
	}
	return false
}

// StrategyEvent announces the retrieval strategy, once per response
type StrategyEvent struct {
	Strategy Strategy `json:"strategy"`
}

// ReasoningEvent carries the decomposed subqueries used during retrieval
type ReasoningEvent struct {
	Subqueries []string `json:"subqueries"`
}

// TokenEvent carries the next fragment of the answer
type TokenEvent struct {
	Content string `json:"content"`
}

// SourcesEvent carries the citations for the answer
type SourcesEvent struct {
	Sources []Source `json:"sources"`
}

// DoneEvent marks successful completion
type DoneEvent struct{}

// ErrorEvent is a backend-signaled failure
type ErrorEvent struct {
	Message string `json:"message"`
}

// SkipReason explains why a line produced no event
type SkipReason string

const (
	SkipMalformed      SkipReason = "malformed"
	SkipUnknownType    SkipReason = "unknown_type"
	SkipInvalidPayload SkipReason = "invalid_payload"
)

// SkipEvent stands in for a line that could not be turned into a protocol event
type SkipEvent struct {
	Line   string
	Reason SkipReason
}

func (StrategyEvent) Type() EventType  { return EventStrategy }
func (ReasoningEvent) Type() EventType { return EventReasoning }
func (TokenEvent) Type() EventType     { return EventToken }
func (SourcesEvent) Type() EventType   { return EventSources }
func (DoneEvent) Type() EventType      { return EventDone }
func (ErrorEvent) Type() EventType     { return EventError }
func (SkipEvent) Type() EventType      { return EventSkip }

func (StrategyEvent) isEvent()  {}
func (ReasoningEvent) isEvent() {}
func (TokenEvent) isEvent()     {}
func (SourcesEvent) isEvent()   {}
func (DoneEvent) isEvent()      {}
func (ErrorEvent) isEvent()     {}
func (SkipEvent) isEvent()      {}

// Source represents a citation attached to an answer
type Source struct {
	Title   string `json:"title"`
	Page    Page   `json:"page"`
	Snippet string `json:"snippet"`
}

// UnknownPageMarker is what the backend sends when a document has no page metadata
const UnknownPageMarker = "—"

// Page is a zero-indexed page number or "unknown"
type Page struct {
	Number int
	Known  bool
}

// PageNumber returns a known page
func PageNumber(n int) Page {
	return Page{Number: n, Known: true}
}

// UnknownPage returns the unknown page sentinel
func UnknownPage() Page {
	return Page{}
}

// Display renders the page 1-indexed, or the unknown marker
func (p Page) Display() string {
	if !p.Known {
		return UnknownPageMarker
	}
	return strconv.Itoa(p.Number + 1)
}

// MarshalJSON writes an integer or the unknown marker
func (p Page) MarshalJSON() ([]byte, error) {
	if !p.Known {
		return json.Marshal(UnknownPageMarker)
	}
	return []byte(strconv.Itoa(p.Number)), nil
}

// UnmarshalJSON accepts an integral number; anything else is an unknown page
func (p *Page) UnmarshalJSON(data []byte) error {
	*p = UnknownPage()

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	num, ok := v.(json.Number)
	if !ok {
		return nil
	}
	if n, err := num.Int64(); err == nil {
		*p = PageNumber(int(n))
		return nil
	}
	if f, err := num.Float64(); err == nil && f == math.Trunc(f) {
		*p = PageNumber(int(f))
	}
	return nil
}
