package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logx "petitchat/pkg/logx"
)

// fileStore keeps the ledger in a single JSON file.
//
// Every Save rewrites the whole document to <path>.tmp, fsyncs it and renames
// it over <path>, so readers only ever see a complete file.
type fileStore struct {
	path string
	log  logx.Logger

	mu sync.Mutex // serializes Save
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &fileStore{path: cfg.Path, log: log}, nil
}

func (s *fileStore) Load(ctx context.Context, chats []int64) *Ledger {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info("ledger file not found; starting empty", logx.String("path", s.path))
		} else {
			s.log.Warn("ledger read failed; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return NewLedger(chats...)
	}

	l, err := Decode(b)
	if err != nil {
		s.log.Warn("ledger file corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return NewLedger(chats...)
	}
	l.ensure(chats)
	return l
}

func (s *fileStore) Save(ctx context.Context, l *Ledger) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot under the lock: a later save always carries earlier additions.
	b, err := Encode(l)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return writeFileAtomic(s.path, b, 0o600)
}

func (s *fileStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
