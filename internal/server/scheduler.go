package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/concierge/config"
	"github.com/mohammad-safakhou/concierge/internal/session"
	"github.com/mohammad-safakhou/concierge/internal/store"
)

// Scheduler runs retention sweeps: expired sessions are dropped from live
// memory and old turns are pruned from the durable history log. Rdb is
// optional; when set, a SetNX lock keeps replicas from sweeping twice.
type Scheduler struct {
	Cfg      config.RetentionConfig
	Sessions session.Store
	Store    *store.Store
	Rdb      *redis.Client
	Stop     chan struct{}
	Logger   *log.Logger

	lastSweep time.Time
}

func (s *Scheduler) Start() {
	if !s.Cfg.Enabled {
		return
	}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	now := time.Now()
	if !s.due(now) {
		return
	}
	s.lastSweep = now

	ctx := context.Background()
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "retention:lock", "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "retention:lock")
	}

	pruned := s.Sessions.PruneExpired(now)
	if pruned > 0 {
		s.Logger.Printf("pruned %d expired sessions", pruned)
	}

	if s.Store == nil || s.Cfg.MaxTurnAge == "" {
		return
	}
	age, err := time.ParseDuration(s.Cfg.MaxTurnAge)
	if err != nil {
		return
	}
	rows, err := s.Store.PruneTurnsOlderThan(ctx, now.Add(-age))
	if err != nil {
		s.Logger.Printf("pruning history: %v", err)
		return
	}
	if rows > 0 {
		s.Logger.Printf("pruned %d turns older than %s", rows, s.Cfg.MaxTurnAge)
	}
}

// due checks the cron schedule against the last sweep.
// Supports "@hourly", "@daily", and 5-field cron expressions.
func (s *Scheduler) due(now time.Time) bool {
	if s.lastSweep.IsZero() {
		return true
	}
	switch s.Cfg.ScheduleCron {
	case "@daily":
		return now.Sub(s.lastSweep) >= 24*time.Hour
	case "@hourly":
		return now.Sub(s.lastSweep) >= time.Hour
	default:
		expr, err := cronexpr.Parse(s.Cfg.ScheduleCron)
		if err != nil {
			return now.Sub(s.lastSweep) >= time.Hour
		}
		return !expr.Next(s.lastSweep).After(now)
	}
}
