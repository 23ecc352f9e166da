package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/bateson-coach/internal/domain"
	"github.com/ashureev/bateson-coach/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts  = 3
	writeBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Journal using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed journal.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		sentiment TEXT NOT NULL,
		polarity REAL NOT NULL,
		reply_received INTEGER NOT NULL,
		error_kind TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordTurn appends one turn record, retrying on SQLITE_BUSY.
func (s *SQLiteStore) RecordTurn(ctx context.Context, rec domain.TurnRecord) error {
	if !rec.Stage.Valid() {
		return fmt.Errorf("record turn: invalid stage %d", rec.Stage)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var errorKind any
	if rec.ErrorKind != "" {
		errorKind = rec.ErrorKind
	}

	query := `
	INSERT INTO turns (session_id, stage, sentiment, polarity, reply_received, error_kind, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, "record_turn", writeAttempts, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.SessionID, rec.Stage.String(), rec.Sentiment.String(), rec.Polarity,
			boolToInt(rec.ReplyReceived), errorKind, createdAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// StageTotals aggregates turns recorded at or after since.
func (s *SQLiteStore) StageTotals(ctx context.Context, since time.Time) (*domain.StageTotals, error) {
	threshold := since.Unix()

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*) FROM turns WHERE created_at >= ? GROUP BY stage`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query stage totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.Stage]int)
	turns := 0
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scan stage total: %w", err)
		}
		turns += n
		if st, ok := domain.ParseStage(stage); ok {
			counts[st] = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage totals: %w", err)
	}

	totals := &domain.StageTotals{
		Turns:    turns,
		Progress: domain.NewProgressCounters(counts),
		Since:    since,
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN reply_received = 0 THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT session_id)
		FROM turns WHERE created_at >= ?`, threshold)
	if err := row.Scan(&totals.Failed, &totals.Sessions); err != nil {
		return nil, fmt.Errorf("scan turn summary: %w", err)
	}

	return totals, nil
}

// CleanupOlderThan removes records older than age.
func (s *SQLiteStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	threshold := s.now().Add(-age).Unix()

	var deleted int64
	err := shared.RetryOnConflict(ctx, "cleanup_turns", writeAttempts, writeBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup turns: %w", err)
	}
	return deleted, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
