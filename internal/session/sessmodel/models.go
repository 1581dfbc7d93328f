package sessmodel

import (
	"time"

	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
)

// Session is one user's conversation memory. Implementations are owned by
// a Store; callers hold them for the duration of a request.
type Session interface {
	ID() string
	Expire(ttl time.Duration)
	ExpiresAt() time.Time

	// AutoApprove reports whether answers skip human approval.
	AutoApprove() bool
	SetAutoApprove(v bool)

	// Raw transcript: every turn, including rejected answers.
	RecordRaw(turn core.Turn)
	Raw() []core.Turn

	// Approved log: the only context future cycles see.
	Approved() []core.Turn
	CommitApproved(turns []core.Turn)

	// Pending approval metadata: the turn pair parked between an answer
	// and the human's approve/reject decision.
	RecordPending(turns []core.Turn)
	Pending() ([]core.Turn, bool)
	Approve() []core.Turn
	Reject() []core.Turn

	// SearchTranscript queries the raw transcript.
	SearchTranscript(q string, k int) ([]SearchHit, error)
}

// SearchHit is one transcript search result.
type SearchHit struct {
	TurnID  string  `json:"turn_id"`
	Role    string  `json:"role"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}
