package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
)

// Store is the durable history log. Sessions hold the live conversation;
// this records every turn that passed through the assistant so transcripts
// survive restarts and can be audited after the session expires.
type Store struct {
	DB *sql.DB
}

// Turn statuses in the history log. Pending turns were produced with
// auto-approval off and are waiting on a human decision.
const (
	TurnStatusApproved = "approved"
	TurnStatusPending  = "pending"
	TurnStatusRejected = "rejected"
	TurnStatusEdited   = "edited"
)

// ErrEmailTaken is returned by CreateUser when the email already exists.
var ErrEmailTaken = errors.New("email already registered")

// TurnRecord is one persisted conversation turn.
type TurnRecord struct {
	ID        string
	SessionID string
	UserID    string
	CycleID   string
	Role      string
	Content   string
	Status    string
	CreatedAt time.Time
}

// New connects using DATABASE_URL or the standard POSTGRES_* variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrEmailTaken
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// AppendTurns writes a batch of turns from one cycle under the given status.
func (s *Store) AppendTurns(ctx context.Context, sessionID, userID, cycleID string, turns []core.Turn, status string) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, t := range turns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_turns (id, session_id, user_id, cycle_id, role, content, status, created_at)
			 VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8)
			 ON CONFLICT (id) DO UPDATE SET content=EXCLUDED.content, status=EXCLUDED.status`,
			t.ID, sessionID, userID, cycleID, string(t.Role), t.Content, status, t.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ResolvePending moves every pending turn of a session to a new status,
// used when a held answer is approved or rejected. At most one cycle can
// be pending per session so no cycle ID is needed.
func (s *Store) ResolvePending(ctx context.Context, sessionID, status string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE conversation_turns SET status=$2 WHERE session_id=$1 AND status=$3`,
		sessionID, status, TurnStatusPending)
	return err
}

// EditPendingAnswer replaces the content of the pending assistant turn
// and marks it edited, for approve-with-correction.
func (s *Store) EditPendingAnswer(ctx context.Context, sessionID, content string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE conversation_turns SET content=$2, status=$3
		 WHERE session_id=$1 AND status=$4 AND role='assistant'`,
		sessionID, content, TurnStatusEdited, TurnStatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no pending answer for session %s", sessionID)
	}
	return nil
}

// ListTurns returns the persisted transcript for a session, oldest first.
// A limit of 0 means no limit.
func (s *Store) ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	q := `SELECT id, session_id, COALESCE(user_id::text,''), cycle_id, role, content, status, created_at
	      FROM conversation_turns WHERE session_id=$1 ORDER BY created_at ASC, id ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.CycleID, &rec.Role, &rec.Content, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneTurnsOlderThan removes turns created before the cutoff and returns
// how many rows went. The retention scheduler calls this.
func (s *Store) PruneTurnsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM conversation_turns WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
