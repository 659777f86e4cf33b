package domain

import "time"

// SendRecord is the outcome of one send, kept for diagnostics.
// It carries no message content.
type SendRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	Strategy    Strategy  `json:"strategy,omitempty"`
	Phase       Phase     `json:"phase"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Tokens      int       `json:"tokens"`
	SourceCount int       `json:"source_count"`
	Skipped     int       `json:"skipped"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Duration returns how long the send took
func (r SendRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
