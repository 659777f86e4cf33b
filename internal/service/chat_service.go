package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/lexrag/internal/client"
	"github.com/liliang-cn/lexrag/internal/config"
	"github.com/liliang-cn/lexrag/internal/domain"
	"github.com/liliang-cn/lexrag/internal/protocol"
	"go.uber.org/zap"
)

// Observer receives every intermediate state of the messages touched by a send
type Observer interface {
	MessageUpdated(sessionID string, m domain.Message)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(sessionID string, m domain.Message)

// MessageUpdated implements Observer
func (f ObserverFunc) MessageUpdated(sessionID string, m domain.Message) { f(sessionID, m) }

// SendRecorder persists send outcomes
type SendRecorder interface {
	RecordSend(ctx context.Context, rec *domain.SendRecord) error
}

// ChatService sends queries and folds the streamed response into the active session
type ChatService struct {
	cfg      config.BackendConfig
	registry *SessionRegistry
	backend  Backend
	recorder SendRecorder
	logger   *zap.Logger

	obsMu     sync.RWMutex
	observers []Observer

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// NewChatService creates a new chat service. recorder may be nil.
func NewChatService(
	cfg config.BackendConfig,
	registry *SessionRegistry,
	backend Backend,
	recorder SendRecorder,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		cfg:      cfg,
		registry: registry,
		backend:  backend,
		recorder: recorder,
		logger:   logger,
	}
}

// Subscribe registers an observer for message updates
func (s *ChatService) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Registry returns the session registry the service drives
func (s *ChatService) Registry() *SessionRegistry {
	return s.registry
}

// Cancel aborts the in-flight send, if any. The assistant message ends errored.
func (s *ChatService) Cancel() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Send submits a query to the active session, creating one if needed, and blocks
// until the response reaches a terminal state. It returns the final assistant message.
// The returned error is non-nil only when the send was rejected outright
// (blank input, or another send in progress).
func (s *ChatService) Send(ctx context.Context, input string) (domain.Message, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return domain.Message{}, domain.ErrEmptyInput
	}

	lease, err := s.registry.BeginStream()
	if err != nil {
		return domain.Message{}, err
	}
	defer lease.Release()

	ctx, cancel := s.streamContext(ctx)
	defer s.clearCancel(cancel)

	rec := &domain.SendRecord{ID: uuid.NewString(), StartedAt: time.Now()}
	defer s.record(ctx, rec)

	// Get or create session
	sessionID, err := lease.EnsureSession(ctx)
	if err != nil {
		msg := s.fail(ctx, domain.NewAssistantMessage(), err)
		s.logger.Warn("Send failed before a session was available", zap.Error(err))
		_ = lease.Append(msg)
		s.publish("", msg)
		rec.MessageID, rec.Phase, rec.ErrorKind = msg.ID, msg.Phase, msg.Error.Kind
		return msg, nil
	}
	rec.SessionID = sessionID

	// The user message is shown immediately and never rolled back
	user := domain.NewUserMessage(input)
	_ = lease.Append(user)
	s.publish(sessionID, user)

	assistant := domain.NewAssistantMessage()
	rec.MessageID = assistant.ID
	_ = lease.Append(assistant)
	s.publish(sessionID, assistant)

	set := func(m domain.Message) {
		assistant = m
		_ = lease.Update(m)
		s.publish(sessionID, m)
	}

	body, err := s.backend.OpenChat(ctx, domain.ChatRequest{SessionID: sessionID, Query: query})
	if err != nil {
		set(s.fail(ctx, assistant, err))
		s.finishRecord(rec, assistant)
		return assistant, nil
	}

	set(StartLoading(assistant))

	stream := protocol.NewResponseStream(body,
		protocol.WithReadSize(s.cfg.ReadBuffer),
		protocol.WithLogger(s.logger.With(zap.String("session_id", sessionID))),
	)
	defer stream.Close()

	for ev, err := range stream.All() {
		if err != nil {
			set(s.fail(ctx, assistant, err))
			break
		}
		if _, ok := ev.(domain.TokenEvent); ok {
			rec.Tokens++
		}
		set(ApplyEvent(assistant, ev))
	}

	rec.Skipped = stream.Skipped()
	if rec.Skipped > 0 {
		s.logger.Warn("Dropped unreadable stream lines",
			zap.String("session_id", sessionID),
			zap.Int("skipped", rec.Skipped),
		)
	}
	s.finishRecord(rec, assistant)

	if assistant.Phase == domain.PhaseCompleted {
		// Best-effort: the turn count and title change on the backend
		if err := lease.Refresh(ctx); err != nil {
			s.logger.Warn("Failed to refresh sessions after send", zap.Error(err))
		}
	}

	return assistant, nil
}

func (s *ChatService) streamContext(parent context.Context) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, s.cfg.StreamTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	return ctx, cancel
}

func (s *ChatService) clearCancel(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = nil
	s.cancelMu.Unlock()
	cancel()
}

// fail classifies err and freezes m as errored
func (s *ChatService) fail(ctx context.Context, m domain.Message, err error) domain.Message {
	kind, text := describeFailure(ctx, err)
	s.logger.Info("Response failed",
		zap.String("message_id", m.ID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return FailMessage(m, kind, text)
}

func describeFailure(ctx context.Context, err error) (domain.ErrorKind, string) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return domain.ErrorKindCancelled, "The response timed out."
		}
		return domain.ErrorKindCancelled, "The request was cancelled."
	}

	var statusErr *client.StatusError
	switch {
	case errors.As(err, &statusErr):
		return domain.ErrorKindBackendRejected, fmt.Sprintf("Error: %s", statusErr.Detail)
	case errors.Is(err, domain.ErrBackendRejected):
		return domain.ErrorKindBackendRejected, fmt.Sprintf("Error: %v", err)
	case errors.Is(err, domain.ErrStreamTruncated):
		return domain.ErrorKindStreamTruncated, "Connection lost before the response completed. Please try again."
	default:
		return domain.ErrorKindTransportUnreachable, "Could not connect to the server. Please check that the backend is running."
	}
}

func (s *ChatService) publish(sessionID string, m domain.Message) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()

	for _, o := range observers {
		o.MessageUpdated(sessionID, m.Clone())
	}
}

func (s *ChatService) finishRecord(rec *domain.SendRecord, m domain.Message) {
	rec.Phase = m.Phase
	rec.Strategy = m.Strategy
	rec.SourceCount = len(m.Sources)
	if m.Error != nil {
		rec.ErrorKind = m.Error.Kind
	}
}

func (s *ChatService) record(ctx context.Context, rec *domain.SendRecord) {
	rec.FinishedAt = time.Now()
	if s.recorder == nil {
		return
	}
	// The send context may already be cancelled; the record is still wanted
	if err := s.recorder.RecordSend(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("Failed to record send", zap.String("send_id", rec.ID), zap.Error(err))
	}
}
