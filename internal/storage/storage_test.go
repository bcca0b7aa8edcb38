package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "petitchat/pkg/logx"
)

func openTestStore(t *testing.T, driver string) (Store, string) {
	t.Helper()
	name := "sent_photos.json"
	if driver == "sqlite" {
		name = "ledger.db"
	}
	path := filepath.Join(t.TempDir(), "state", name)
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestRoundTripRestoresIntegerKeys(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st, _ := openTestStore(t, driver)

			l := NewLedger(100)
			l.Add(100, "a.jpg")
			l.Add(100, "b.png")
			require.NoError(t, st.Save(ctx, l))

			got := st.Load(ctx, []int64{100})
			require.Equal(t, NewSet("a.jpg", "b.png"), got.Sent(100))
			require.Equal(t, []int64{100}, got.Chats())
		})
	}
}

func TestLoadMissingStartsEmptyForConfiguredChats(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			st, _ := openTestStore(t, driver)
			l := st.Load(context.Background(), []int64{-1, -2})
			require.Equal(t, []int64{-2, -1}, l.Chats())
			require.Empty(t, l.Sent(-1))
			require.Empty(t, l.Sent(-2))
		})
	}
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	cases := map[string]string{
		"truncated":   `{"100": ["a.jpg", "b.p`,
		"not object":  `["a.jpg"]`,
		"null":        `null`,
		"bad key":     `{"chan": ["a.jpg"]}`,
		"bad value":   `{"100": "a.jpg"}`,
		"empty bytes": ``,
		"trailing":    `{"100": ["a.jpg"]}garbage`,
		"two objects": `{"100": ["a.jpg"]} {"200": []}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			st, path := openTestStore(t, "file")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			l := st.Load(context.Background(), []int64{100, 200})
			require.Equal(t, []int64{100, 200}, l.Chats())
			require.Empty(t, l.Sent(100))
			require.Empty(t, l.Sent(200))
		})
	}
}

func TestLoadTopsUpChatsMissingFromFile(t *testing.T) {
	st, path := openTestStore(t, "file")
	require.NoError(t, os.WriteFile(path, []byte(`{"-5": ["x.jpg"]}`), 0o600))

	l := st.Load(context.Background(), []int64{-5, 7})
	require.True(t, l.Contains(-5, "x.jpg"))
	require.Equal(t, 0, l.Len(7))
	require.Equal(t, []int64{-5, 7}, l.Chats())
}

func TestFileFormatIsStable(t *testing.T) {
	st, path := openTestStore(t, "file")
	l := NewLedger(-4723752995)
	l.Add(-4723752995, "z.jpg")
	l.Add(-4723752995, "a.png")
	require.NoError(t, st.Save(context.Background(), l))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"-4723752995": ["a.png", "z.jpg"]}`, string(b))

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file must not linger")
}

func TestConcurrentCommitsKeepEveryDelivery(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st, _ := openTestStore(t, driver)

			chats := []int64{1, 2, 3, 4, 5, 6, 7, 8}
			l := st.Load(ctx, chats)

			var wg sync.WaitGroup
			for _, chat := range chats {
				wg.Add(1)
				go func(chat int64) {
					defer wg.Done()
					for i := 0; i < 5; i++ {
						loc := fmt.Sprintf("https://i.example/%d/%d.jpg", chat, i)
						assert.NoError(t, l.Commit(ctx, st, chat, loc))
					}
				}(chat)
			}
			wg.Wait()

			got := st.Load(ctx, chats)
			for _, chat := range chats {
				require.Equal(t, 5, got.Len(chat), "chat %d", chat)
			}
		})
	}
}

func TestLedgerSetOnlyGrows(t *testing.T) {
	l := NewLedger()
	require.True(t, l.Add(9, "a.jpg"))
	require.False(t, l.Add(9, "a.jpg"))
	require.Equal(t, 1, l.Len(9))

	cp := l.Sent(9)
	cp["b.jpg"] = struct{}{}
	require.False(t, l.Contains(9, "b.jpg"), "Sent must return a copy")
	require.Empty(t, l.Sent(404))
}

func TestDecodeEncodeIsolation(t *testing.T) {
	l, err := Decode([]byte(`{"100": ["b.png", "a.jpg", "a.jpg"], "-3": []}`))
	require.NoError(t, err)
	require.Equal(t, map[int64][]string{100: {"a.jpg", "b.png"}, -3: {}}, l.Snapshot())

	b, err := Encode(l)
	require.NoError(t, err)
	require.JSONEq(t, `{"100": ["a.jpg", "b.png"], "-3": []}`, string(b))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis", Path: filepath.Join(t.TempDir(), "x")}, logx.Nop())
	require.Error(t, err)
}
