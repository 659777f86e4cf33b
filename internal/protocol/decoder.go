package protocol

import (
	"encoding/json"

	"github.com/liliang-cn/lexrag/internal/domain"
)

type rawEvent struct {
	Type domain.EventType `json:"type"`
}

// DecodeEvent converts one trimmed NDJSON line into a typed event.
// It never fails: lines that are not JSON, carry an unknown type, or have
// a payload that does not fit their type come back as a domain.SkipEvent.
func DecodeEvent(line string) domain.Event {
	data := []byte(line)

	var base rawEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return skip(line, domain.SkipMalformed)
	}

	switch base.Type {
	case domain.EventStrategy:
		var ev domain.StrategyEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return skip(line, domain.SkipInvalidPayload)
		}
		if !ev.Strategy.Valid() {
			return skip(line, domain.SkipInvalidPayload)
		}
		return ev
	case domain.EventReasoning:
		var ev domain.ReasoningEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return skip(line, domain.SkipInvalidPayload)
		}
		return ev
	case domain.EventToken:
		var ev domain.TokenEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return skip(line, domain.SkipInvalidPayload)
		}
		return ev
	case domain.EventSources:
		var ev domain.SourcesEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return skip(line, domain.SkipInvalidPayload)
		}
		return ev
	case domain.EventDone:
		return domain.DoneEvent{}
	case domain.EventError:
		var ev domain.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return skip(line, domain.SkipInvalidPayload)
		}
		return ev
	default:
		return skip(line, domain.SkipUnknownType)
	}
}

// EncodeEvent serializes an event as one NDJSON line, including the trailing newline.
// Skip events have no wire form and yield an error.
func EncodeEvent(ev domain.Event) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case domain.StrategyEvent:
		payload = struct {
			Type domain.EventType `json:"type"`
			domain.StrategyEvent
		}{e.Type(), e}
	case domain.ReasoningEvent:
		payload = struct {
			Type domain.EventType `json:"type"`
			domain.ReasoningEvent
		}{e.Type(), e}
	case domain.TokenEvent:
		payload = struct {
			Type domain.EventType `json:"type"`
			domain.TokenEvent
		}{e.Type(), e}
	case domain.SourcesEvent:
		if e.Sources == nil {
			e.Sources = []domain.Source{}
		}
		payload = struct {
			Type domain.EventType `json:"type"`
			domain.SourcesEvent
		}{e.Type(), e}
	case domain.DoneEvent:
		payload = rawEvent{Type: e.Type()}
	case domain.ErrorEvent:
		payload = struct {
			Type domain.EventType `json:"type"`
			domain.ErrorEvent
		}{e.Type(), e}
	default:
		return nil, &UnencodableEventError{Type: ev.Type()}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// UnencodableEventError is returned when an event has no wire representation
type UnencodableEventError struct {
	Type domain.EventType
}

func (e *UnencodableEventError) Error() string {
	return "event type " + string(e.Type) + " has no wire form"
}

func skip(line string, reason domain.SkipReason) domain.Event {
	return domain.SkipEvent{Line: line, Reason: reason}
}
