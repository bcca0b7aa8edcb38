package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "petitchat/internal/transport"
	logx "petitchat/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides https://api.telegram.org (self-hosted Bot API).
	APIURL string
	// Timeout bounds a single HTTP call to the Bot API.
	Timeout time.Duration
}

// Adapter sends photos and text through the Bot API. It never polls for
// updates, and New never contacts the API; Check verifies the token.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// Check calls getMe and returns the bot's username.
func (a *Adapter) Check(ctx context.Context) (string, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := a.bot.Raw("getMe", nil)
		done <- result{data: data, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", wrapError("getMe", 0, r.err)
		}
		var resp struct {
			Result tele.User `json:"result"`
		}
		if err := json.Unmarshal(r.data, &resp); err != nil {
			return "", &kit.Error{Op: "getMe", Err: err}
		}
		return resp.Result.Username, nil
	case <-ctx.Done():
		return "", &kit.Error{Op: "getMe", Err: ctx.Err()}
	}
}

// SendPhoto sends photoURL to chatID; Telegram downloads the file itself.
func (a *Adapter) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error {
	photo := &tele.Photo{File: tele.FromURL(photoURL), Caption: caption}
	return a.send(ctx, "sendPhoto", kit.ChatTarget{ChatID: chatID}, photo)
}

const telegramTextLimit = 4000

// SendText sends text, split into chunks below the message size limit.
func (a *Adapter) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	to := kit.ChatTarget{ChatID: chatID, ThreadID: threadID}
	for _, chunk := range splitTelegramText(text, telegramTextLimit) {
		if err := a.send(ctx, "sendMessage", to, chunk); err != nil {
			return err
		}
	}
	return nil
}

// send runs one Bot API call. telebot has no context support, so the call
// runs on its own goroutine and ctx only bounds how long we wait for it; the
// HTTP client timeout bounds the call itself.
func (a *Adapter) send(ctx context.Context, op string, to kit.ChatTarget, what any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return &kit.Error{ChatID: to.ChatID, Op: op, Err: err}
	}

	opts := &tele.SendOptions{ThreadID: to.ThreadID}
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, opts)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return wrapError(op, to.ChatID, err)
		}
		return nil
	case <-ctx.Done():
		return &kit.Error{ChatID: to.ChatID, Op: op, Err: ctx.Err()}
	}
}

var (
	codeRe       = regexp.MustCompile(`\((\d{3})\)\s*$`)
	retryAfterRe = regexp.MustCompile(`retry after (\d+)`)
)

// wrapError keeps the API code and flood-control delay. Flood errors are
// recognized by their description text, which telebot preserves.
func wrapError(op string, chatID int64, err error) *kit.Error {
	out := &kit.Error{ChatID: chatID, Op: op, Err: err}
	msg := err.Error()

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		out.Code = apiErr.Code
	} else if m := codeRe.FindStringSubmatch(msg); m != nil {
		out.Code, _ = strconv.Atoi(m[1])
	}
	if m := retryAfterRe.FindStringSubmatch(msg); m != nil {
		secs, _ := strconv.Atoi(m[1])
		out.RetryAfter = time.Duration(secs) * time.Second
		if out.Code == 0 {
			out.Code = http.StatusTooManyRequests
		}
	}
	return out
}

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
