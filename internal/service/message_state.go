package service

import (
	"slices"

	"github.com/liliang-cn/lexrag/internal/domain"
)

// ApplyEvent folds one protocol event into an assistant message and returns the new state.
// m is not modified. Events on a completed or errored message are ignored. Beyond
// "strategy first, terminal last" the backend guarantees no ordering, so non-terminal
// events are accepted in any non-terminal phase.
func ApplyEvent(m domain.Message, ev domain.Event) domain.Message {
	if m.Phase.Terminal() {
		return m
	}
	next := m.Clone()

	switch e := ev.(type) {
	case domain.StrategyEvent:
		next.Strategy = e.Strategy
		next.Phase = domain.PhaseStreaming
	case domain.ReasoningEvent:
		next.Reasoning = slices.Clone(e.Subqueries)
		next.Phase = domain.PhaseStreaming
	case domain.TokenEvent:
		next.Content += e.Content
		next.Phase = domain.PhaseStreaming
	case domain.SourcesEvent:
		next.Sources = slices.Clone(e.Sources)
		next.Phase = domain.PhaseStreaming
	case domain.DoneEvent:
		next.Phase = domain.PhaseCompleted
	case domain.ErrorEvent:
		text := e.Message
		if text == "" {
			text = "The assistant reported an error."
		}
		next.Content = text
		next.Phase = domain.PhaseErrored
		next.Error = &domain.MessageError{Kind: domain.ErrorKindBackendSignaled, Text: text}
	case domain.SkipEvent:
		return m
	}

	return next
}

// FailMessage freezes m as errored after a transport-level failure.
// Content that already streamed is kept; the error text replaces it only when empty.
func FailMessage(m domain.Message, kind domain.ErrorKind, text string) domain.Message {
	if m.Phase.Terminal() {
		return m
	}
	next := m.Clone()
	if next.Content == "" {
		next.Content = text
	}
	next.Phase = domain.PhaseErrored
	next.Error = &domain.MessageError{Kind: kind, Text: text}
	return next
}

// StartLoading marks that the request was accepted and the response is awaited
func StartLoading(m domain.Message) domain.Message {
	if m.Phase != domain.PhasePending {
		return m
	}
	next := m.Clone()
	next.Phase = domain.PhaseLoading
	return next
}
