package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "petitchat/pkg/logx"
)

// Store is the persisted delivery ledger.
type Store interface {
	// Load never fails: read or parse problems are logged and yield an empty
	// set for every chat in chats.
	Load(ctx context.Context, chats []int64) *Ledger
	// Save serializes the whole ledger. Concurrent calls are serialized.
	Save(ctx context.Context, l *Ledger) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON document at Path
//   - "sqlite": SQLite database at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

const DefaultPath = "./sent_photos.json"

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
