package bufstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. Read-modify-write of one
// signature's counters is serialized through a per-signature mutex on
// top of a transaction, so concurrent cases sharing a signature cannot
// interleave their updates.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLiteStore opens or creates a buffer database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		locks:   map[string]*sync.Mutex{},
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS buffers (
		id            TEXT PRIMARY KEY,
		signature     TEXT NOT NULL UNIQUE,
		steps         TEXT NOT NULL,
		label_hint    INTEGER NOT NULL DEFAULT -1,
		usage_count   INTEGER NOT NULL DEFAULT 0,
		scored_count  INTEGER NOT NULL DEFAULT 0,
		correct_count INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_buffers_usage ON buffers(usage_count DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// lockFor returns the mutex guarding one signature's read-modify-write.
func (s *SQLiteStore) lockFor(signature string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[signature]
	if !ok {
		l = &sync.Mutex{}
		s.locks[signature] = l
	}
	return l
}

func (s *SQLiteStore) Get(ctx context.Context, signature string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, signature, steps, label_hint, usage_count, scored_count, correct_count, created_at, updated_at
		 FROM buffers WHERE signature = ?`, signature)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, signature string, steps []string, labelHint int) (*Entry, bool, error) {
	lock := s.lockFor(signature)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.Get(ctx, signature)
	if err == nil {
		return e, false, nil
	}
	if err != ErrNotFound {
		return nil, false, err
	}

	now := time.Now().UTC()
	id := s.newID()
	stepsJSON, _ := json.Marshal(steps)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO buffers (id, signature, steps, label_hint, usage_count, scored_count, correct_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?)`,
		id, signature, string(stepsJSON), labelHint,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, false, fmt.Errorf("insert buffer: %w", err)
	}

	return &Entry{
		ID:        id,
		Signature: signature,
		Steps:     steps,
		LabelHint: labelHint,
		CreatedAt: now,
		UpdatedAt: now,
	}, true, nil
}

func (s *SQLiteStore) Nearest(ctx context.Context, tokens []string, minSim float64) (*Entry, float64, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, 0, err
	}
	tokens = Tokens(Signature(tokens)) // canonical form

	var best *Entry
	bestSim := 0.0
	for i := range all {
		e := &all[i]
		sim := Jaccard(tokens, Tokens(e.Signature))
		if sim < minSim {
			continue
		}
		// Ties break toward the better-performing, then busier entry.
		if best == nil || sim > bestSim ||
			(sim == bestSim && (e.SuccessRate() > best.SuccessRate() ||
				(e.SuccessRate() == best.SuccessRate() && e.Usage > best.Usage))) {
			best = e
			bestSim = sim
		}
	}
	if best == nil {
		return nil, 0, ErrNotFound
	}
	return best, bestSim, nil
}

func (s *SQLiteStore) RecordUse(ctx context.Context, signature string, correct *bool) error {
	lock := s.lockFor(signature)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	scored, correctN := 0, 0
	if correct != nil {
		scored = 1
		if *correct {
			correctN = 1
		}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE buffers
		 SET usage_count = usage_count + 1,
		     scored_count = scored_count + ?,
		     correct_count = correct_count + ?,
		     updated_at = ?
		 WHERE signature = ?`,
		scored, correctN, now, signature)
	if err != nil {
		return fmt.Errorf("record use: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, signature, steps, label_hint, usage_count, scored_count, correct_count, created_at, updated_at
		 FROM buffers ORDER BY usage_count DESC, signature`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Remove(ctx context.Context, signature string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM buffers WHERE signature = ?`, signature)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats holds buffer database statistics.
type Stats struct {
	DBPath     string `json:"db_path"`
	DBSize     int64  `json:"db_size_bytes"`
	Entries    int    `json:"entries"`
	TotalUses  int    `json:"total_uses"`
	ScoredUses int    `json:"scored_uses"`
}

// Stats returns buffer database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSize = info.Size()
	}
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buffers`).Scan(&st.Entries)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(usage_count), 0) FROM buffers`).Scan(&st.TotalUses)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(scored_count), 0) FROM buffers`).Scan(&st.ScoredUses)
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var stepsJSON, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.Signature, &stepsJSON, &e.LabelHint,
		&e.Usage, &e.Scored, &e.Correct, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(stepsJSON), &e.Steps)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &e, nil
}
