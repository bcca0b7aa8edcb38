package delivery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"petitchat/internal/storage"
	"petitchat/internal/transport"
	logx "petitchat/pkg/logx"
)

type Outcome int

const (
	OutcomeNoItem Outcome = iota
	OutcomeSent
	OutcomeSendFailed
	// OutcomeSaveFailed: delivered, recorded in memory, but not persisted.
	OutcomeSaveFailed
	// OutcomeFailed: the destination's work panicked.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoItem:
		return "no_item"
	case OutcomeSent:
		return "sent"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeSaveFailed:
		return "save_failed"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Coordinator delivers at most one item to one chat.
type Coordinator struct {
	selector *Selector
	sender   transport.PhotoSender
	saver    storage.Saver
	opts     Options
	log      logx.Logger
}

func NewCoordinator(sel *Selector, sender transport.PhotoSender, saver storage.Saver, opts Options, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{selector: sel, sender: sender, saver: saver, opts: opts.withDefaults(), log: log}
}

// DeliverOne selects the first unsent image for chat and sends it. On success
// the locator is added to l and the whole ledger saved. A transport failure
// leaves l untouched; the item is retried next cycle.
func (c *Coordinator) DeliverOne(ctx context.Context, chat int64, sources []string, l *storage.Ledger) (out Outcome) {
	log := c.log.With(logx.Int64("chat", chat))
	defer func() {
		if r := recover(); r != nil {
			log.Error("delivery panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			out = OutcomeFailed
		}
	}()

	item, ok := c.selector.Select(ctx, sources, l.Sent(chat))
	if !ok {
		log.Info("no new item")
		return OutcomeNoItem
	}

	caption := Caption(item.Label, c.opts.CaptionLimit)
	sctx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	err := c.sender.SendPhoto(sctx, chat, item.Locator, caption)
	cancel()
	if err != nil {
		fields := []logx.Field{logx.String("url", item.Locator), logx.Err(err)}
		var te *transport.Error
		if errors.As(err, &te) && te.Code != 0 {
			fields = append(fields, logx.Int("code", te.Code))
		}
		log.Warn("telegram error", fields...)
		return OutcomeSendFailed
	}

	if err := l.Commit(ctx, c.saver, chat, item.Locator); err != nil {
		log.Error("ledger save failed", logx.String("url", item.Locator), logx.Err(err))
		return OutcomeSaveFailed
	}
	log.Info("sent", logx.String("url", item.Locator), logx.String("caption", caption))
	return OutcomeSent
}
