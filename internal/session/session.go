// Package session holds process-lifetime conversation memory. A session
// keeps two logs: the raw transcript (everything said, for display) and the
// approved log (only turns the human confirmed, or all turns in auto mode)
// that seeds the model's context on the next cycle. The split is what lets
// a rejected answer stay visible without reappearing in future context.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/concierge/config"
	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
	"github.com/mohammad-safakhou/concierge/internal/session/inmemory"
	redissess "github.com/mohammad-safakhou/concierge/internal/session/redis"
	"github.com/mohammad-safakhou/concierge/internal/session/sessmodel"
)

// Session is the full surface the API layer works with. It embeds the
// narrower contract the orchestrator needs.
type Session = sessmodel.Session

// SearchHit is one transcript search result.
type SearchHit = sessmodel.SearchHit

// Store manages sessions by ID.
type Store interface {
	EnsureSession(id string, ttl time.Duration) (Session, error)
	GetSession(id string) (Session, error)
	PruneExpired(now time.Time) int
}

type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
)

// NewStore builds the configured session store backend.
func NewStore(ctx context.Context, cfg config.SessionsConfig) (Store, error) {
	switch StoreType(cfg.Backend) {
	case InMemoryStore, "":
		return inmemory.NewStore(), nil
	case RedisStore:
		return redissess.NewStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported session store backend: %s", cfg.Backend)
	}
}

// compile-time check that sessions satisfy the orchestrator's contract
var _ core.Session = (Session)(nil)
