package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/liliang-cn/lexrag/internal/domain"
)

// renderer prints assistant messages as they stream
type renderer struct {
	out         io.Writer
	showSources bool

	mu      sync.Mutex
	printed map[string]int
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, showSources: true, printed: make(map[string]int)}
}

func (r *renderer) MessageUpdated(sessionID string, m domain.Message) {
	if m.Role != domain.RoleAssistant {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n, started := r.printed[m.ID]
	if !started {
		fmt.Fprint(r.out, "lexrag> ")
		r.printed[m.ID] = 0
	}

	switch m.Phase {
	case domain.PhaseStreaming, domain.PhaseCompleted:
		if len(m.Content) > n {
			fmt.Fprint(r.out, m.Content[n:])
			r.printed[m.ID] = len(m.Content)
		}
	}

	switch m.Phase {
	case domain.PhaseCompleted:
		fmt.Fprintln(r.out)
		r.footer(m)
		delete(r.printed, m.ID)
	case domain.PhaseErrored:
		if n > 0 {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintf(r.out, "! %s\n", m.Error.Text)
		delete(r.printed, m.ID)
	}
}

func (r *renderer) footer(m domain.Message) {
	if m.Strategy != "" {
		fmt.Fprintf(r.out, "  strategy: %s\n", m.Strategy)
	}
	if len(m.Reasoning) > 0 {
		fmt.Fprintf(r.out, "  sub-queries: %s\n", strings.Join(m.Reasoning, " | "))
	}
	if !r.showSources {
		return
	}
	for i, src := range m.Sources {
		fmt.Fprintf(r.out, "  [%d] %s, p. %s\n", i+1, src.Title, src.Page.Display())
		if src.Snippet != "" {
			fmt.Fprintf(r.out, "      %s\n", src.Snippet)
		}
	}
}
