package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/liliang-cn/lexrag/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Backend is the remote surface the client consumes
type Backend interface {
	CreateSession(ctx context.Context) (domain.SessionSummary, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error
	// OpenChat returns the body of a successful chat response
	OpenChat(ctx context.Context, req domain.ChatRequest) (io.ReadCloser, error)
}

// SessionRegistry mirrors the backend's sessions, tracks the active one and owns
// its in-memory message list.
//
// A single permit serializes every operation that talks to the backend. A send
// holds it for its whole duration through a StreamLease, so while a response is
// streaming, creating, selecting, deleting and refreshing sessions fail with
// domain.ErrBusy.
type SessionRegistry struct {
	backend Backend
	logger  *zap.Logger
	permit  *semaphore.Weighted

	mu        sync.RWMutex
	sessions  []domain.SessionSummary
	activeID  string
	messages  []domain.Message
	streaming bool
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry(backend Backend, logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		backend: backend,
		logger:  logger,
		permit:  semaphore.NewWeighted(1),
	}
}

// Load fetches the session list from the backend
func (r *SessionRegistry) Load(ctx context.Context) error {
	if !r.permit.TryAcquire(1) {
		return domain.ErrBusy
	}
	defer r.permit.Release(1)

	return r.refresh(ctx)
}

// CreateSession creates a backend session and makes it active
func (r *SessionRegistry) CreateSession(ctx context.Context) (domain.SessionSummary, error) {
	if !r.permit.TryAcquire(1) {
		return domain.SessionSummary{}, domain.ErrBusy
	}
	defer r.permit.Release(1)

	return r.createSession(ctx)
}

// SelectSession makes id the active session and clears the message list.
// History is not fetched from the backend.
func (r *SessionRegistry) SelectSession(id string) error {
	if !r.permit.TryAcquire(1) {
		return domain.ErrBusy
	}
	defer r.permit.Release(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id == r.activeID {
		return domain.ErrAlreadyActive
	}
	if r.indexOf(id) < 0 {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	r.activeID = id
	r.messages = nil
	return nil
}

// DeleteSession removes a session on the backend and locally.
// A session the backend no longer knows is removed locally as well.
func (r *SessionRegistry) DeleteSession(ctx context.Context, id string) error {
	if !r.permit.TryAcquire(1) {
		return domain.ErrBusy
	}
	defer r.permit.Release(1)

	if err := r.backend.DeleteSession(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		r.logger.Warn("Session already gone on backend", zap.String("session_id", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(id); i >= 0 {
		r.sessions = slices.Delete(r.sessions, i, i+1)
	}
	if r.activeID == id {
		r.activeID = ""
		r.messages = nil
	}
	return nil
}

// BeginStream takes the single stream permit.
// The returned lease must be released on every exit path.
func (r *SessionRegistry) BeginStream() (*StreamLease, error) {
	if !r.permit.TryAcquire(1) {
		return nil, domain.ErrBusy
	}

	r.mu.Lock()
	r.streaming = true
	r.mu.Unlock()

	return &StreamLease{registry: r}, nil
}

// Sessions returns the cached summaries, newest first
func (r *SessionRegistry) Sessions() []domain.SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sessions)
}

// ActiveID returns the active session id, or "" if none
func (r *SessionRegistry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// Active returns the summary of the active session
func (r *SessionRegistry) Active() (domain.SessionSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(r.activeID); i >= 0 {
		return r.sessions[i], true
	}
	return domain.SessionSummary{}, false
}

// Messages returns a copy of the active session's messages
func (r *SessionRegistry) Messages() []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Message, len(r.messages))
	for i, m := range r.messages {
		out[i] = m.Clone()
	}
	return out
}

// Busy reports whether a response is streaming
func (r *SessionRegistry) Busy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streaming
}

func (r *SessionRegistry) createSession(ctx context.Context) (domain.SessionSummary, error) {
	summary, err := r.backend.CreateSession(ctx)
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("failed to create session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(summary.ID); i >= 0 {
		r.sessions = slices.Delete(r.sessions, i, i+1)
	}
	r.sessions = slices.Insert(r.sessions, 0, summary)
	r.activeID = summary.ID
	r.messages = nil

	r.logger.Info("Session created", zap.String("session_id", summary.ID))
	return summary, nil
}

func (r *SessionRegistry) refresh(ctx context.Context) error {
	list, err := r.backend.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	// The backend lists in creation order; the registry keeps newest first
	sessions := slices.Clone(list)
	slices.Reverse(sessions)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = sessions
	if r.activeID != "" && r.indexOf(r.activeID) < 0 {
		r.logger.Warn("Active session no longer exists on backend", zap.String("session_id", r.activeID))
		r.activeID = ""
		r.messages = nil
	}
	return nil
}

// indexOf must be called with mu held
func (r *SessionRegistry) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(r.sessions, func(s domain.SessionSummary) bool { return s.ID == id })
}

// StreamLease is the token that owns the registry for the duration of one send.
// Only the lease holder may create the session for that send and mutate the message list.
type StreamLease struct {
	registry *SessionRegistry
	once     sync.Once

	mu       sync.Mutex
	released bool
}

// EnsureSession returns the active session id, creating a session when none is active
func (l *StreamLease) EnsureSession(ctx context.Context) (string, error) {
	if l.isReleased() {
		return "", domain.ErrLeaseReleased
	}
	if id := l.registry.ActiveID(); id != "" {
		return id, nil
	}
	summary, err := l.registry.createSession(ctx)
	if err != nil {
		return "", err
	}
	return summary.ID, nil
}

// Append adds a message to the active message list
func (l *StreamLease) Append(m domain.Message) error {
	if l.isReleased() {
		return domain.ErrLeaseReleased
	}
	r := l.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m.Clone())
	return nil
}

// Update replaces the message with the same id
func (l *StreamLease) Update(m domain.Message) error {
	if l.isReleased() {
		return domain.ErrLeaseReleased
	}
	r := l.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.messages, func(x domain.Message) bool { return x.ID == m.ID })
	if i < 0 {
		return fmt.Errorf("message %s: %w", m.ID, domain.ErrNotFound)
	}
	r.messages[i] = m.Clone()
	return nil
}

// Refresh reloads session summaries while the lease is held
func (l *StreamLease) Refresh(ctx context.Context) error {
	if l.isReleased() {
		return domain.ErrLeaseReleased
	}
	return l.registry.refresh(ctx)
}

// Release returns the permit. Only the first call has an effect.
func (l *StreamLease) Release() {
	l.once.Do(func() {
		l.mu.Lock()
		l.released = true
		l.mu.Unlock()

		r := l.registry
		r.mu.Lock()
		r.streaming = false
		r.mu.Unlock()

		r.permit.Release(1)
	})
}

func (l *StreamLease) isReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}
