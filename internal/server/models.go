package server

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// ChatRequest is one user message. SessionID empty means start a new
// session; AutoApprove nil means keep the session's current setting.
type ChatRequest struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	AutoApprove *bool  `json:"auto_approve,omitempty"`
}

// ChatResponse reports the outcome of one routing cycle.
type ChatResponse struct {
	SessionID       string   `json:"session_id"`
	CycleID         string   `json:"cycle_id"`
	Answer          string   `json:"answer"`
	PendingApproval bool     `json:"pending_approval"`
	Intent          string   `json:"intent"`
	ToolsUsed       []string `json:"tools_used"`
	ProcessingMS    int64    `json:"processing_ms"`
}

// ApproveRequest confirms a held answer. A non-empty Correction replaces
// the assistant text before it enters approved history.
type ApproveRequest struct {
	SessionID  string `json:"session_id"`
	Correction string `json:"correction,omitempty"`
}

// RejectRequest discards a held answer.
type RejectRequest struct {
	SessionID string `json:"session_id"`
}

// TurnView is one transcript entry as returned by the API.
type TurnView struct {
	ID        string `json:"id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Status    string `json:"status,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// TranscriptResponse is the live transcript of a session.
type TranscriptResponse struct {
	SessionID string     `json:"session_id"`
	Turns     []TurnView `json:"turns"`
	Pending   []TurnView `json:"pending,omitempty"`
}

// SearchResponse carries transcript search hits.
type SearchResponse struct {
	SessionID string      `json:"session_id"`
	Query     string      `json:"query"`
	Hits      []SearchHit `json:"hits"`
}

// SearchHit is one transcript search result.
type SearchHit struct {
	TurnID  string  `json:"turn_id"`
	Role    string  `json:"role"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// AutoApproveRequest toggles automatic approval for a session.
type AutoApproveRequest struct {
	Enabled bool `json:"enabled"`
}
