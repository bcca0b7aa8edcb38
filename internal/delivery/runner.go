package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"petitchat/internal/storage"
	logx "petitchat/pkg/logx"
)

// Channel is one destination chat with its ordered sources.
type Channel struct {
	ID      int64
	Name    string
	Sources []string
}

// Report summarizes one cycle.
type Report struct {
	CycleID  string
	Started  time.Time
	Elapsed  time.Duration
	Outcomes map[int64]Outcome
}

// Count returns how many channels ended with o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, got := range r.Outcomes {
		if got == o {
			n++
		}
	}
	return n
}

// Runner runs delivery cycles over a fixed channel list.
type Runner struct {
	channels []Channel
	store    storage.Store
	coord    *Coordinator
	log      logx.Logger
}

func NewRunner(channels []Channel, store storage.Store, coord *Coordinator, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{channels: append([]Channel(nil), channels...), store: store, coord: coord, log: log}
}

func (r *Runner) chatIDs() []int64 {
	out := make([]int64, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch.ID)
	}
	return out
}

// RunCycle loads the ledger and delivers to every channel concurrently, one
// goroutine per channel, then waits for all of them. It may be called
// repeatedly; each call reloads the ledger.
func (r *Runner) RunCycle(ctx context.Context) Report {
	rep := Report{
		CycleID:  uuid.NewString(),
		Started:  time.Now(),
		Outcomes: make(map[int64]Outcome, len(r.channels)),
	}
	log := r.log.With(logx.String("cycle", rep.CycleID))
	log.Debug("cycle started", logx.Int("channels", len(r.channels)))

	ledger := r.store.Load(ctx, r.chatIDs())

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, ch := range r.channels {
		ch := ch
		g.Go(func() error {
			out := r.coord.DeliverOne(ctx, ch.ID, ch.Sources, ledger)
			mu.Lock()
			rep.Outcomes[ch.ID] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep.Elapsed = time.Since(rep.Started)
	log.Info("cycle finished",
		logx.Int("sent", rep.Count(OutcomeSent)),
		logx.Int("no_item", rep.Count(OutcomeNoItem)),
		logx.Int("send_failed", rep.Count(OutcomeSendFailed)),
		logx.Int("save_failed", rep.Count(OutcomeSaveFailed)),
		logx.Int("failed", rep.Count(OutcomeFailed)),
		logx.Duration("elapsed", rep.Elapsed),
	)
	return rep
}
