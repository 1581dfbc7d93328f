package inmemory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"

	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
	"github.com/mohammad-safakhou/concierge/internal/session/sessmodel"
)

// Store keeps sessions in process memory; the default backend.
type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (store *Store) EnsureSession(id string, ttl time.Duration) (sessmodel.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if id != "" {
		if sess, ok := store.sessions[id]; ok {
			sess.Expire(ttl)
			return sess, nil
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	sess, err := newSession(id, ttl)
	if err != nil {
		return nil, err
	}
	store.sessions[id] = sess
	return sess, nil
}

func (store *Store) GetSession(id string) (sessmodel.Session, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	sess, ok := store.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// PruneExpired drops sessions past their TTL and returns how many went.
func (store *Store) PruneExpired(now time.Time) int {
	store.mu.Lock()
	defer store.mu.Unlock()
	pruned := 0
	for id, sess := range store.sessions {
		if sess.ExpiresAt().Before(now) {
			delete(store.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Session is the in-memory conversation record. The raw transcript is also
// indexed in a memory-only bleve index for transcript search.
type Session struct {
	id        string
	expiresAt time.Time

	raw      []core.Turn
	approved []core.Turn
	pending  []core.Turn
	auto     bool

	index bleve.Index
	byID  map[string]core.Turn
	mu    sync.RWMutex
}

type turnDoc struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func newSession(id string, ttl time.Duration) (*Session, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating transcript index: %w", err)
	}
	return &Session{
		id:        id,
		expiresAt: time.Now().Add(ttl),
		index:     index,
		byID:      make(map[string]core.Turn),
	}, nil
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Expire(ttl time.Duration) { s.expiresAt = time.Now().Add(ttl) }
func (s *Session) ExpiresAt() time.Time     { return s.expiresAt }

func (s *Session) AutoApprove() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auto
}

func (s *Session) SetAutoApprove(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auto = v
}

func (s *Session) RecordRaw(turn core.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	s.raw = append(s.raw, turn)
	s.byID[turn.ID] = turn
	_ = s.index.Index(turn.ID, turnDoc{Role: string(turn.Role), Content: turn.Content})
}

func (s *Session) Raw() []core.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Turn(nil), s.raw...)
}

func (s *Session) Approved() []core.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Turn(nil), s.approved...)
}

func (s *Session) CommitApproved(turns []core.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved = append(s.approved, turns...)
}

func (s *Session) RecordPending(turns []core.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append([]core.Turn(nil), turns...)
}

func (s *Session) Pending() ([]core.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.pending) == 0 {
		return nil, false
	}
	return append([]core.Turn(nil), s.pending...), true
}

func (s *Session) Approve() []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	committed := s.pending
	s.approved = append(s.approved, committed...)
	s.pending = nil
	return committed
}

func (s *Session) Reject() []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	discarded := s.pending
	s.pending = nil
	return discarded
}

func (s *Session) SearchTranscript(q string, k int) ([]sessmodel.SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []sessmodel.SearchHit
	for i, hit := range res.Hits {
		turn := s.byID[hit.ID]
		out = append(out, sessmodel.SearchHit{
			TurnID:  hit.ID,
			Role:    string(turn.Role),
			Snippet: snippet(turn.Content),
			Score:   hit.Score,
			Rank:    i + 1,
		})
	}
	return out, nil
}

func snippet(s string) string {
	const maxRunes = 200
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}
