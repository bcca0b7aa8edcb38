package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	logx "petitchat/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

// sqliteStore keeps one row per (chat, locator). The ledger only grows, so
// Save is a transaction of idempotent inserts.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	mu sync.Mutex // serializes Save
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context, chats []int64) *Ledger {
	l, err := s.load(ctx)
	if err != nil {
		s.log.Warn("ledger query failed; starting empty", logx.Err(err))
		return NewLedger(chats...)
	}
	l.ensure(chats)
	return l
}

func (s *sqliteStore) load(ctx context.Context) (*Ledger, error) {
	l := NewLedger()

	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM chats`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var chat int64
		if err := rows.Scan(&chat); err != nil {
			_ = rows.Close()
			return nil, err
		}
		l.ensure([]int64{chat})
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT chat_id, locator FROM delivered`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			chat int64
			loc  string
		)
		if err := rows.Scan(&chat, &loc); err != nil {
			return nil, err
		}
		l.Add(chat, loc)
	}
	return l, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, l *Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := l.Snapshot()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	chatStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO chats(chat_id) VALUES(?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer chatStmt.Close()
	locStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO delivered(chat_id, locator, delivered_at) VALUES(?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer locStmt.Close()

	for chat, locs := range snap {
		if _, err := chatStmt.ExecContext(ctx, chat); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chat %d: %w", chat, err)
		}
		for _, loc := range locs {
			if _, err := locStmt.ExecContext(ctx, chat, loc, now); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert locator: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
