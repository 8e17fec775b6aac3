package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/prior-art-engine/internal/priorartsearch"
)

var ErrNotFound = errors.New("run not found")

// Store persists finished searches, their reports, and fetched patent
// claims in SQLite. The claims table backs priorartsearch.ClaimsCache.
type Store struct {
	db       *sqlx.DB
	mu       sync.Mutex
	claimTTL time.Duration
	clock    func() time.Time
}

type Summary struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
	HasReport   bool      `json:"has_report"`
}

const schema = `
CREATE TABLE IF NOT EXISTS search_runs (
	run_id       TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	domain       TEXT NOT NULL DEFAULT '',
	result_count INTEGER NOT NULL DEFAULT 0,
	result_json  TEXT NOT NULL,
	report_md    TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	reported_at  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_search_runs_created ON search_runs (created_at);

CREATE TABLE IF NOT EXISTS patent_claims (
	patent_id   TEXT PRIMARY KEY,
	claims_json TEXT NOT NULL DEFAULT '[]',
	fetched_at  TEXT NOT NULL
);
`

type Option func(*Store)

// WithClaimTTL expires cached claims older than ttl. Zero keeps them forever.
func WithClaimTTL(ttl time.Duration) Option {
	return func(s *Store) { s.claimTTL = ttl }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveRun(ctx context.Context, res priorartsearch.SearchResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO search_runs (run_id, query, domain, result_count, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET result_json = excluded.result_json, result_count = excluded.result_count`,
		res.ID.String(), res.Query, res.Metadata.Domain, len(res.Results), string(b), timeToString(res.Timestamp))
	if err != nil {
		return fmt.Errorf("save run %s: %w", res.ID, err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, runID string) (priorartsearch.SearchResult, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT result_json FROM search_runs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return priorartsearch.SearchResult{}, ErrNotFound
	}
	if err != nil {
		return priorartsearch.SearchResult{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	var res priorartsearch.SearchResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return priorartsearch.SearchResult{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return res, nil
}

func (s *Store) SaveReport(ctx context.Context, runID, markdown string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.db.ExecContext(ctx, `UPDATE search_runs SET report_md = ?, reported_at = ? WHERE run_id = ?`,
		markdown, timeToString(s.clock()), runID)
	if err != nil {
		return fmt.Errorf("save report %s: %w", runID, err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) LoadReport(ctx context.Context, runID string) (string, error) {
	var md string
	err := s.db.GetContext(ctx, &md, `SELECT report_md FROM search_runs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return md, err
}

type summaryRow struct {
	ID          string `db:"run_id"`
	Query       string `db:"query"`
	ResultCount int    `db:"result_count"`
	CreatedAt   string `db:"created_at"`
	ReportLen   int    `db:"report_len"`
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, `SELECT run_id, query, result_count, created_at, length(report_md) AS report_len
		FROM search_runs ORDER BY created_at DESC, run_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		created, _ := parseTime(r.CreatedAt)
		out = append(out, Summary{ID: r.ID, Query: r.Query, ResultCount: r.ResultCount, CreatedAt: created, HasReport: r.ReportLen > 0})
	}
	return out, nil
}

func (s *Store) CachedClaims(ctx context.Context, patentID string) ([]priorartsearch.Claim, bool, error) {
	var row struct {
		ClaimsJSON string `db:"claims_json"`
		FetchedAt  string `db:"fetched_at"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT claims_json, fetched_at FROM patent_claims WHERE patent_id = ?`, patentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if s.claimTTL > 0 {
		fetched, err := parseTime(row.FetchedAt)
		if err != nil || s.clock().Sub(fetched) > s.claimTTL {
			return nil, false, nil
		}
	}
	claims := []priorartsearch.Claim{}
	if err := json.Unmarshal([]byte(row.ClaimsJSON), &claims); err != nil {
		return nil, false, fmt.Errorf("decode cached claims %s: %w", patentID, err)
	}
	return claims, true, nil
}

func (s *Store) StoreClaims(ctx context.Context, patentID string, claims []priorartsearch.Claim) error {
	if claims == nil {
		claims = []priorartsearch.Claim{}
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO patent_claims (patent_id, claims_json, fetched_at) VALUES (?, ?, ?)`,
		patentID, string(b), timeToString(s.clock()))
	return err
}

// Fixed-width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
