package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/concierge/config"
	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
	"github.com/mohammad-safakhou/concierge/internal/session/sessmodel"
)

// Store keeps sessions in Redis so chat memory survives process restarts
// and can be shared across replicas. Each session is four keys:
// sess:{id}:meta, :raw, :approved and :pending, all JSON encoded and
// carrying the same TTL.
type Store struct {
	client *redis.Client
	ctx    context.Context
}

func NewStore(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr(), err)
	}
	return &Store{client: client, ctx: ctx}, nil
}

type sessionMeta struct {
	AutoApprove bool      `json:"auto_approve"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func metaKey(id string) string     { return "sess:" + id + ":meta" }
func rawKey(id string) string      { return "sess:" + id + ":raw" }
func approvedKey(id string) string { return "sess:" + id + ":approved" }
func pendingKey(id string) string  { return "sess:" + id + ":pending" }

func (store *Store) EnsureSession(id string, ttl time.Duration) (sessmodel.Session, error) {
	if id != "" {
		exists, err := store.client.Exists(store.ctx, metaKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if exists == 1 {
			sess := &Session{store: store, id: id, ttl: ttl}
			sess.Expire(ttl)
			return sess, nil
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	sess := &Session{store: store, id: id, ttl: ttl}
	meta := sessionMeta{ExpiresAt: time.Now().Add(ttl)}
	if err := sess.writeMeta(meta); err != nil {
		return nil, err
	}
	return sess, nil
}

func (store *Store) GetSession(id string) (sessmodel.Session, error) {
	exists, err := store.client.Exists(store.ctx, metaKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return &Session{store: store, id: id}, nil
}

// PruneExpired is a no-op for Redis; key TTLs already handle expiry.
func (store *Store) PruneExpired(time.Time) int { return 0 }

// Session reads and writes its state through Redis on every call. That
// keeps replicas consistent at the cost of a round trip per operation,
// which is fine at conversational rates.
type Session struct {
	store *Store
	id    string
	ttl   time.Duration
}

func (s *Session) ID() string { return s.id }

func (s *Session) Expire(ttl time.Duration) {
	s.ttl = ttl
	meta, _ := s.readMeta()
	meta.ExpiresAt = time.Now().Add(ttl)
	_ = s.writeMeta(meta)
	for _, key := range []string{rawKey(s.id), approvedKey(s.id), pendingKey(s.id)} {
		_ = s.store.client.Expire(s.store.ctx, key, ttl).Err()
	}
}

func (s *Session) ExpiresAt() time.Time {
	meta, _ := s.readMeta()
	return meta.ExpiresAt
}

func (s *Session) AutoApprove() bool {
	meta, _ := s.readMeta()
	return meta.AutoApprove
}

func (s *Session) SetAutoApprove(v bool) {
	meta, _ := s.readMeta()
	meta.AutoApprove = v
	_ = s.writeMeta(meta)
}

func (s *Session) RecordRaw(turn core.Turn) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	turns := s.readTurns(rawKey(s.id))
	s.writeTurns(rawKey(s.id), append(turns, turn))
}

func (s *Session) Raw() []core.Turn { return s.readTurns(rawKey(s.id)) }

func (s *Session) Approved() []core.Turn { return s.readTurns(approvedKey(s.id)) }

func (s *Session) CommitApproved(turns []core.Turn) {
	existing := s.readTurns(approvedKey(s.id))
	s.writeTurns(approvedKey(s.id), append(existing, turns...))
}

func (s *Session) RecordPending(turns []core.Turn) {
	s.writeTurns(pendingKey(s.id), turns)
}

func (s *Session) Pending() ([]core.Turn, bool) {
	turns := s.readTurns(pendingKey(s.id))
	if len(turns) == 0 {
		return nil, false
	}
	return turns, true
}

func (s *Session) Approve() []core.Turn {
	committed := s.readTurns(pendingKey(s.id))
	s.CommitApproved(committed)
	_ = s.store.client.Del(s.store.ctx, pendingKey(s.id)).Err()
	return committed
}

func (s *Session) Reject() []core.Turn {
	discarded := s.readTurns(pendingKey(s.id))
	_ = s.store.client.Del(s.store.ctx, pendingKey(s.id)).Err()
	return discarded
}

// SearchTranscript scores raw turns by matched query terms. Redis-backed
// sessions skip the bleve index since turns live off-process; a term scan
// over one conversation is cheap enough.
func (s *Session) SearchTranscript(q string, k int) ([]sessmodel.SearchHit, error) {
	if k <= 0 {
		k = 10
	}
	terms := strings.Fields(strings.ToLower(q))
	if len(terms) == 0 {
		return nil, nil
	}

	type scored struct {
		turn  core.Turn
		score float64
	}
	var matches []scored
	for _, turn := range s.readTurns(rawKey(s.id)) {
		content := strings.ToLower(turn.Content)
		hits := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, scored{turn: turn, score: float64(hits) / float64(len(terms))})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > k {
		matches = matches[:k]
	}

	var out []sessmodel.SearchHit
	for i, m := range matches {
		out = append(out, sessmodel.SearchHit{
			TurnID:  m.turn.ID,
			Role:    string(m.turn.Role),
			Snippet: snippet(m.turn.Content),
			Score:   m.score,
			Rank:    i + 1,
		})
	}
	return out, nil
}

func (s *Session) readMeta() (sessionMeta, error) {
	val, err := s.store.client.Get(s.store.ctx, metaKey(s.id)).Result()
	if err != nil {
		return sessionMeta{}, err
	}
	var meta sessionMeta
	if err := json.Unmarshal([]byte(val), &meta); err != nil {
		return sessionMeta{}, err
	}
	return meta, nil
}

func (s *Session) writeMeta(meta sessionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.store.client.Set(s.store.ctx, metaKey(s.id), data, s.remainingTTL()).Err()
}

func (s *Session) readTurns(key string) []core.Turn {
	val, err := s.store.client.Get(s.store.ctx, key).Result()
	if err != nil {
		return nil
	}
	var turns []core.Turn
	_ = json.Unmarshal([]byte(val), &turns)
	return turns
}

func (s *Session) writeTurns(key string, turns []core.Turn) {
	data, err := json.Marshal(turns)
	if err != nil {
		return
	}
	_ = s.store.client.Set(s.store.ctx, key, data, s.remainingTTL()).Err()
}

func (s *Session) remainingTTL() time.Duration {
	if s.ttl > 0 {
		return s.ttl
	}
	return 12 * time.Hour
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
