package domain

// SessionSummary is the client-side mirror of a backend session
type SessionSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Turns int    `json:"turns"`
}

// ChatRequest is the body of a chat request
type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Query     string `json:"query"`
}

// Health is the backend health report
type Health struct {
	Status         string `json:"status"`
	SessionsActive int    `json:"sessions_active"`
}

// ErrorDetail is the error body returned on non-success statuses
type ErrorDetail struct {
	Detail string `json:"detail"`
}
