package storage

import (
	"context"
	"sort"
	"sync"
)

// Set is a set of delivered item locators.
type Set map[string]struct{}

func NewSet(locators ...string) Set {
	s := make(Set, len(locators))
	for _, l := range locators {
		s[l] = struct{}{}
	}
	return s
}

func (s Set) Has(locator string) bool {
	_, ok := s[locator]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Ledger maps chat id to the locators already delivered there.
//
// One Ledger is shared by every destination goroutine within a cycle. Sets
// only grow; nothing is ever removed.
type Ledger struct {
	mu   sync.RWMutex
	sent map[int64]Set

	// commitMu serializes add+save so a save never interleaves with another
	// destination's mutation.
	commitMu sync.Mutex
}

// NewLedger returns an empty ledger with an empty set for each chat.
func NewLedger(chats ...int64) *Ledger {
	l := &Ledger{sent: make(map[int64]Set, len(chats))}
	for _, c := range chats {
		l.sent[c] = Set{}
	}
	return l
}

// ensure adds empty sets for chats the ledger does not know yet.
func (l *Ledger) ensure(chats []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range chats {
		if _, ok := l.sent[c]; !ok {
			l.sent[c] = Set{}
		}
	}
}

// Sent returns a copy of the chat's set (empty if the chat is unknown).
func (l *Ledger) Sent(chat int64) Set {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.sent[chat]
	out := make(Set, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

func (l *Ledger) Contains(chat int64, locator string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sent[chat].Has(locator)
}

// Add records locator for chat. It reports whether the locator was new.
func (l *Ledger) Add(chat int64, locator string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sent[chat]
	if !ok {
		s = Set{}
		l.sent[chat] = s
	}
	if s.Has(locator) {
		return false
	}
	s[locator] = struct{}{}
	return true
}

func (l *Ledger) Len(chat int64) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sent[chat])
}

// Chats returns the known chat ids in ascending order.
func (l *Ledger) Chats() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int64, 0, len(l.sent))
	for c := range l.sent {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns every chat's locators as sorted slices.
func (l *Ledger) Snapshot() map[int64][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[int64][]string, len(l.sent))
	for c, s := range l.sent {
		out[c] = s.Sorted()
	}
	return out
}

// Saver persists a full ledger.
type Saver interface {
	Save(ctx context.Context, l *Ledger) error
}

// Commit adds locator for chat and saves the whole ledger, as one critical
// section. The in-memory record is kept even if the save fails.
func (l *Ledger) Commit(ctx context.Context, s Saver, chat int64, locator string) error {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()
	l.Add(chat, locator)
	return s.Save(ctx, l)
}
