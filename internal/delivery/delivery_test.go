package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"petitchat/internal/source"
	"petitchat/internal/storage"
	"petitchat/internal/transport"
	logx "petitchat/pkg/logx"
)

type fakeFetcher struct {
	mu       sync.Mutex
	listings map[string][]source.Entry
	errs     map[string]error
	hang     map[string]bool
	calls    []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, locator string) ([]source.Entry, error) {
	f.mu.Lock()
	f.calls = append(f.calls, locator)
	hang := f.hang[locator]
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, &source.FetchError{Locator: locator, Err: ctx.Err()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[locator]; err != nil {
		return nil, err
	}
	return f.listings[locator], nil
}

type sentPhoto struct {
	chat    int64
	url     string
	caption string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentPhoto
	failed map[int64]bool
	panics map[int64]bool
	hang   map[int64]bool
}

func (s *fakeSender) SendPhoto(ctx context.Context, chat int64, url, caption string) error {
	if s.panics[chat] {
		panic("boom")
	}
	if s.hang[chat] {
		<-ctx.Done()
		return &transport.Error{ChatID: chat, Op: "sendPhoto", Err: ctx.Err()}
	}
	if s.failed[chat] {
		return &transport.Error{ChatID: chat, Op: "sendPhoto", Code: 400, Err: errors.New("Bad Request: chat not found")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentPhoto{chat: chat, url: url, caption: caption})
	return nil
}

func (s *fakeSender) photos() []sentPhoto {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentPhoto(nil), s.sent...)
}

type failingSaver struct{}

func (failingSaver) Save(context.Context, *storage.Ledger) error { return errors.New("disk full") }

func openStore(t *testing.T) (storage.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sent_photos.json")
	st, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func newRunner(t *testing.T, f source.Fetcher, s transport.PhotoSender, st storage.Store, channels ...Channel) *Runner {
	t.Helper()
	opts := Options{FetchTimeout: time.Second, SendTimeout: time.Second}
	sel := NewSelector(f, opts, logx.Nop())
	coord := NewCoordinator(sel, s, st, opts, logx.Nop())
	return NewRunner(channels, st, coord, logx.Nop())
}

func TestIsImageIsCaseSensitiveSuffix(t *testing.T) {
	require.True(t, IsImage("https://i.example/a.jpg"))
	require.True(t, IsImage("https://i.example/a.jpeg"))
	require.True(t, IsImage("https://i.example/a.png"))
	require.False(t, IsImage("https://i.example/a.JPG"))
	require.False(t, IsImage("https://i.example/a.jpg?w=100"))
	require.False(t, IsImage("https://i.example/a.gif"))
	require.False(t, IsImage(""))
	require.Equal(t, KindOther, Item{Locator: "https://v.example/clip.mp4"}.Kind())
}

func TestCaptionTruncatesByRunes(t *testing.T) {
	require.Equal(t, "Cat", Caption("Cat", 200))
	require.Equal(t, "", Caption("", 200))

	long := strings.Repeat("猫", 250)
	got := Caption(long, 200)
	require.Equal(t, 200, len([]rune(got)))
	require.Equal(t, strings.Repeat("猫", 200), got)

	require.Equal(t, 200, len([]rune(Caption(strings.Repeat("a", 300), 0))))
}

func TestSelectPrefersEarlierSourceAndSkipsEmpty(t *testing.T) {
	f := &fakeFetcher{listings: map[string][]source.Entry{
		"s1": {},
		"s2": {{URL: "https://i.example/two.jpg", Title: "two"}},
	}}
	sel := NewSelector(f, Options{}, logx.Nop())

	item, ok := sel.Select(context.Background(), []string{"s1", "s2"}, storage.NewSet())
	require.True(t, ok)
	require.Equal(t, Item{Locator: "https://i.example/two.jpg", Label: "two"}, item)
	require.Equal(t, []string{"s1", "s2"}, f.calls)
}

func TestSelectSkipsSentNonImagesAndFailingSources(t *testing.T) {
	f := &fakeFetcher{
		listings: map[string][]source.Entry{
			"s2": {
				{URL: "", Title: "empty"},
				{URL: "https://i.example/a.gif", Title: "gif"},
				{URL: "https://i.example/old.png", Title: "old"},
				{URL: "https://i.example/new.png", Title: ""},
			},
		},
		errs: map[string]error{"s1": &source.FetchError{Locator: "s1", Status: 503}},
	}
	sel := NewSelector(f, Options{DefaultCaption: "No title"}, logx.Nop())

	item, ok := sel.Select(context.Background(), []string{"s1", "s2"}, storage.NewSet("https://i.example/old.png"))
	require.True(t, ok)
	require.Equal(t, "https://i.example/new.png", item.Locator)
	require.Equal(t, "No title", item.Label)
}

func TestSelectNothingQualifies(t *testing.T) {
	f := &fakeFetcher{listings: map[string][]source.Entry{
		"s1": {{URL: "https://i.example/a.jpg"}},
	}}
	sel := NewSelector(f, Options{}, logx.Nop())
	_, ok := sel.Select(context.Background(), []string{"s1"}, storage.NewSet("https://i.example/a.jpg"))
	require.False(t, ok)
}

func TestCycleEndToEnd(t *testing.T) {
	const chat = int64(-4723752995)
	f := &fakeFetcher{listings: map[string][]source.Entry{
		"r/cat": {
			{URL: "https://i.example/x.gif", Title: "Gif"},
			{URL: "https://i.example/y.jpg", Title: "Cat"},
		},
	}}
	snd := &fakeSender{}
	st, path := openStore(t)
	r := newRunner(t, f, snd, st, Channel{ID: chat, Sources: []string{"r/cat"}})

	rep := r.RunCycle(context.Background())
	require.Equal(t, OutcomeSent, rep.Outcomes[chat])
	require.NotEmpty(t, rep.CycleID)
	require.Equal(t, []sentPhoto{{chat: chat, url: "https://i.example/y.jpg", caption: "Cat"}}, snd.photos())

	reopened, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	require.Equal(t, storage.NewSet("https://i.example/y.jpg"), reopened.Load(context.Background(), nil).Sent(chat))

	// Nothing new: a second cycle sends nothing and changes nothing.
	rep = r.RunCycle(context.Background())
	require.Equal(t, OutcomeNoItem, rep.Outcomes[chat])
	require.Len(t, snd.photos(), 1)
	require.Equal(t, 1, st.Load(context.Background(), nil).Len(chat))
}

func TestCyclesNeverRepeatALocator(t *testing.T) {
	f := &fakeFetcher{listings: map[string][]source.Entry{
		"s": {
			{URL: "https://i.example/1.jpg"},
			{URL: "https://i.example/2.jpeg"},
			{URL: "https://i.example/3.png"},
		},
	}}
	snd := &fakeSender{}
	st, _ := openStore(t)
	r := newRunner(t, f, snd, st, Channel{ID: 1, Sources: []string{"s"}}, Channel{ID: 2, Sources: []string{"s"}})

	for i := 0; i < 5; i++ {
		r.RunCycle(context.Background())
	}

	seen := map[int64]map[string]bool{}
	for _, p := range snd.photos() {
		if seen[p.chat] == nil {
			seen[p.chat] = map[string]bool{}
		}
		require.False(t, seen[p.chat][p.url], "duplicate %s to %d", p.url, p.chat)
		seen[p.chat][p.url] = true
	}
	require.Len(t, seen[1], 3)
	require.Len(t, seen[2], 3)
}

func TestFailingChatDoesNotAffectOthers(t *testing.T) {
	f := &fakeFetcher{listings: map[string][]source.Entry{
		"s": {{URL: "https://i.example/a.jpg", Title: "a"}},
	}}
	snd := &fakeSender{failed: map[int64]bool{10: true}, panics: map[int64]bool{30: true}}
	st, _ := openStore(t)
	r := newRunner(t, f, snd, st,
		Channel{ID: 10, Sources: []string{"s"}},
		Channel{ID: 20, Sources: []string{"s"}},
		Channel{ID: 30, Sources: []string{"s"}},
	)

	rep := r.RunCycle(context.Background())
	require.Equal(t, OutcomeSendFailed, rep.Outcomes[10])
	require.Equal(t, OutcomeSent, rep.Outcomes[20])
	require.Equal(t, OutcomeFailed, rep.Outcomes[30])
	require.Equal(t, 1, rep.Count(OutcomeSent))

	l := st.Load(context.Background(), []int64{10, 20, 30})
	require.Empty(t, l.Sent(10))
	require.True(t, l.Contains(20, "https://i.example/a.jpg"))
	require.Empty(t, l.Sent(30))
}

func TestSaveFailureIsReported(t *testing.T) {
	f := &fakeFetcher{listings: map[string][]source.Entry{
		"s": {{URL: "https://i.example/a.jpg"}},
	}}
	snd := &fakeSender{}
	opts := Options{}
	coord := NewCoordinator(NewSelector(f, opts, logx.Nop()), snd, failingSaver{}, opts, logx.Nop())

	l := storage.NewLedger(5)
	out := coord.DeliverOne(context.Background(), 5, []string{"s"}, l)
	require.Equal(t, OutcomeSaveFailed, out)
	require.True(t, l.Contains(5, "https://i.example/a.jpg"))
	require.Len(t, snd.photos(), 1)
}

func TestDeliverOneUnknownChatStartsEmpty(t *testing.T) {
	long := strings.Repeat("x", 250)
	f := &fakeFetcher{listings: map[string][]source.Entry{
		"s": {{URL: "https://i.example/a.png", Title: long}},
	}}
	snd := &fakeSender{}
	st, _ := openStore(t)
	coord := NewCoordinator(NewSelector(f, Options{}, logx.Nop()), snd, st, Options{}, logx.Nop())

	l := storage.NewLedger()
	require.Equal(t, OutcomeSent, coord.DeliverOne(context.Background(), 77, []string{"s"}, l))
	require.Equal(t, long[:200], snd.photos()[0].caption)
	require.Equal(t, 1, l.Len(77))
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "sent", OutcomeSent.String())
	require.Equal(t, "save_failed", OutcomeSaveFailed.String())
	require.Equal(t, "outcome(42)", Outcome(42).String())
}

func TestHungFetchAndSendAreBounded(t *testing.T) {
	f := &fakeFetcher{
		listings: map[string][]source.Entry{
			"ok": {{URL: "https://i.example/a.jpg", Title: "a"}},
		},
		hang: map[string]bool{"stuck": true},
	}
	snd := &fakeSender{hang: map[int64]bool{2: true}}
	st, _ := openStore(t)

	opts := Options{FetchTimeout: 100 * time.Millisecond, SendTimeout: 100 * time.Millisecond}
	coord := NewCoordinator(NewSelector(f, opts, logx.Nop()), snd, st, opts, logx.Nop())
	r := NewRunner([]Channel{
		{ID: 1, Sources: []string{"stuck", "ok"}},
		{ID: 2, Sources: []string{"ok"}},
		{ID: 3, Sources: []string{"stuck", "stuck"}},
	}, st, coord, logx.Nop())

	start := time.Now()
	rep := r.RunCycle(context.Background())
	require.Less(t, time.Since(start), time.Second)

	// A timed-out source is skipped; the next one still delivers.
	require.Equal(t, OutcomeSent, rep.Outcomes[1])
	require.Equal(t, OutcomeSendFailed, rep.Outcomes[2])
	require.Equal(t, OutcomeNoItem, rep.Outcomes[3])
	require.Equal(t, []sentPhoto{{chat: 1, url: "https://i.example/a.jpg", caption: "a"}}, snd.photos())

	l := st.Load(context.Background(), nil)
	require.True(t, l.Contains(1, "https://i.example/a.jpg"))
	require.Empty(t, l.Sent(2))
}

func TestPacedFetchesDoNotEatTheFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"data":{"children":[{"data":{"title":"t","url":"https://i.example%s.jpg"}}]}}`, r.URL.Path)
	}))
	defer srv.Close()

	// Six fetches at 10/s queue for ~500ms, well past the 150ms fetch timeout.
	mux := source.NewMux(source.Options{RatePerSec: 10, Client: srv.Client()})
	opts := Options{FetchTimeout: 150 * time.Millisecond, SendTimeout: time.Second}
	snd := &fakeSender{}
	st, _ := openStore(t)

	var channels []Channel
	for i := int64(1); i <= 6; i++ {
		channels = append(channels, Channel{ID: i, Sources: []string{fmt.Sprintf("%s/r/c%d/.json", srv.URL, i)}})
	}
	coord := NewCoordinator(NewSelector(mux, opts, logx.Nop()), snd, st, opts, logx.Nop())
	rep := NewRunner(channels, st, coord, logx.Nop()).RunCycle(context.Background())

	require.Equal(t, 6, rep.Count(OutcomeSent), "outcomes: %v", rep.Outcomes)
	require.Len(t, snd.photos(), 6)
}
