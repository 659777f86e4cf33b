package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/liliang-cn/lexrag/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultTitle    = "New Session"
	titleMaxRunes   = 50
	snippetMaxRunes = 180
	maxSources      = 5
	perLookup       = 3

	smallTalkReply = "I'm here to assist you with legal research questions. " +
		"Please ask me anything about Indian law, statutes, or legal procedures."
	noMatchReply = "I could not find anything in the indexed documents that answers this question. " +
		"Try naming the statute or section you are interested in."
)

// EmitFunc delivers one event to the caller. A non-nil error stops the stream.
type EmitFunc func(domain.Event) error

// Config configures the development backend
type Config struct {
	TokenDelay time.Duration
	Corpus     *Corpus
}

type session struct {
	id    string
	title string
	turns int
}

// Service is an in-memory question-answering backend that speaks the chat stream protocol
type Service struct {
	tokenDelay time.Duration
	corpus     *Corpus
	logger     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
	order    []string
}

// NewService creates a new development backend
func NewService(cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	corpus := cfg.Corpus
	if corpus == nil {
		corpus = DefaultCorpus()
	}
	return &Service{
		tokenDelay: cfg.TokenDelay,
		corpus:     corpus,
		logger:     logger,
		sessions:   make(map[string]*session),
	}
}

// CreateSession starts an empty session
func (s *Service) CreateSession() domain.SessionSummary {
	sess := &session{id: uuid.New().String(), title: defaultTitle}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.order = append(s.order, sess.id)
	s.mu.Unlock()

	s.logger.Info("Session created", zap.String("session_id", sess.id))
	return sess.summary()
}

// ListSessions returns all sessions in creation order
func (s *Service) ListSessions() []domain.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SessionSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].summary())
	}
	return out
}

// DeleteSession removes a session and reports whether it existed
func (s *Service) DeleteSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	return true
}

// HasSession reports whether id is a live session
func (s *Service) HasSession(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// ActiveCount returns the number of live sessions
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stream answers query in the given session, emitting strategy, optional reasoning,
// tokens, sources and done in that order.
func (s *Service) Stream(ctx context.Context, sessionID, query string, emit EmitFunc) error {
	if !s.HasSession(sessionID) {
		return emit(domain.ErrorEvent{Message: "Session not found"})
	}

	strategy := Classify(query)
	logger := s.logger.With(zap.String("session_id", sessionID), zap.String("strategy", string(strategy)))
	logger.Debug("Answering query")

	if err := emit(domain.StrategyEvent{Strategy: strategy}); err != nil {
		return err
	}

	var (
		answer  string
		sources []domain.Source
	)
	if strategy == domain.StrategySimpleConversation {
		answer = smallTalkReply
		sources = []domain.Source{}
	} else {
		lookups := subqueries(strategy, query)
		if len(lookups) > 1 {
			if err := emit(domain.ReasoningEvent{Subqueries: lookups}); err != nil {
				return err
			}
		}
		docs := s.retrieve(lookups)
		answer = compose(docs)
		sources = toSources(docs)
	}

	if !s.completeTurn(sessionID, query) {
		return emit(domain.ErrorEvent{Message: "Session was deleted while answering"})
	}

	for _, word := range strings.Split(answer, " ") {
		if err := s.pause(ctx); err != nil {
			return err
		}
		if err := emit(domain.TokenEvent{Content: word + " "}); err != nil {
			return err
		}
	}

	if err := emit(domain.SourcesEvent{Sources: sources}); err != nil {
		return err
	}
	return emit(domain.DoneEvent{})
}

// retrieve runs every lookup and keeps the first occurrence of each passage
func (s *Service) retrieve(lookups []string) []Document {
	var out []Document
	for _, q := range lookups {
		for _, d := range s.corpus.Retrieve(q, perLookup) {
			if !slices.Contains(out, d) {
				out = append(out, d)
			}
		}
	}
	return out
}

func (s *Service) completeTurn(sessionID, query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	sess.turns++
	if sess.turns == 1 {
		sess.title = truncate(query, titleMaxRunes) + ellipsisIf(utf8.RuneCountInString(query) > titleMaxRunes)
	}
	return true
}

func (s *Service) pause(ctx context.Context) error {
	if s.tokenDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.tokenDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (sess *session) summary() domain.SessionSummary {
	return domain.SessionSummary{ID: sess.id, Title: sess.title, Turns: sess.turns}
}

func compose(docs []Document) string {
	if len(docs) == 0 {
		return noMatchReply
	}

	var b strings.Builder
	fmt.Fprintf(&b, "According to the %s, %s", docs[0].Source, firstSentence(docs[0].Text))
	for _, d := range docs[1:min(len(docs), 3)] {
		fmt.Fprintf(&b, " The %s also provides: %s", d.Source, firstSentence(d.Text))
	}
	return b.String()
}

func firstSentence(text string) string {
	// Section numbers such as "Section 10." end with a period too
	parts := strings.SplitAfter(text, ". ")
	if len(parts) > 1 && len(strings.Fields(parts[0])) <= 3 {
		return strings.TrimSpace(parts[0] + parts[1])
	}
	return strings.TrimSpace(parts[0])
}

func toSources(docs []Document) []domain.Source {
	out := make([]domain.Source, 0, min(len(docs), maxSources))
	for _, d := range docs[:min(len(docs), maxSources)] {
		out = append(out, domain.Source{
			Title:   d.Source,
			Page:    d.Page,
			Snippet: strings.TrimSpace(truncate(d.Text, snippetMaxRunes)),
		})
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func ellipsisIf(cond bool) string {
	if cond {
		return "…"
	}
	return ""
}
