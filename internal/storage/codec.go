package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Encode renders the ledger in the file format:
//
//	{"-4723752995": ["https://i.redd.it/a.jpg", ...], ...}
//
// Keys are decimal chat ids; values are sorted so output is stable.
func Encode(l *Ledger) ([]byte, error) {
	snap := l.Snapshot()
	data := make(map[string][]string, len(snap))
	for chat, locs := range snap {
		data[strconv.FormatInt(chat, 10)] = locs
	}
	// encoding/json sorts map keys, so the whole document is deterministic.
	return json.MarshalIndent(data, "", "  ")
}

// Decode parses the file format. Any malformed key or value fails the whole
// document; callers treat that as "start empty".
func Decode(b []byte) (*Ledger, error) {
	var data map[string][]string
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("decode ledger: not an object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("decode ledger: trailing data after object")
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	l := NewLedger()
	for _, k := range keys {
		chat, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode ledger: chat id %q: %w", k, err)
		}
		l.ensure([]int64{chat})
		for _, loc := range data[k] {
			l.Add(chat, loc)
		}
	}
	return l, nil
}
