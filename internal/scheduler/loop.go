package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "petitchat/pkg/logx"
)

// Job is one scheduled run. It should return promptly once ctx is done.
type Job func(ctx context.Context)

type Config struct {
	Schedule   string
	Timezone   string
	RunOnStart bool
}

// Loop drives Job according to a parsed schedule.
type Loop struct {
	spec       ParsedSpec
	loc        *time.Location
	runOnStart bool
	job        Job
	log        logx.Logger

	parser cron.Parser
	sched  cron.Schedule // cron mode only
}

func New(cfg Config, job Job, log logx.Logger) (*Loop, error) {
	if job == nil {
		return nil, fmt.Errorf("job required")
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		loc = l
	}

	lp := &Loop{
		spec:       spec,
		loc:        loc,
		runOnStart: cfg.RunOnStart,
		job:        job,
		log:        log,
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	if spec.Kind == SpecCron {
		s, err := lp.parser.Parse(spec.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron %q: %w", spec.Cron, err)
		}
		lp.sched = s
	}
	return lp, nil
}

func (l *Loop) Spec() ParsedSpec { return l.spec }

// Next returns the next scheduled time after t.
func (l *Loop) Next(t time.Time) time.Time {
	if l.spec.Kind == SpecCron {
		return l.sched.Next(t.In(l.loc))
	}
	return t.Add(l.spec.Every)
}

// Run blocks until ctx is done. An in-flight job is waited for before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("scheduler started",
		logx.String("kind", l.spec.Kind.String()),
		logx.String("schedule", l.describe()),
		logx.String("tz", l.loc.String()),
		logx.Bool("run_on_start", l.runOnStart),
	)
	if l.runOnStart && ctx.Err() == nil {
		l.job(ctx)
	}
	if l.spec.Kind == SpecCron {
		return l.runCron(ctx)
	}
	return l.runInterval(ctx)
}

func (l *Loop) describe() string {
	if l.spec.Kind == SpecCron {
		return l.spec.Cron
	}
	return l.spec.Every.String()
}

func (l *Loop) runInterval(ctx context.Context) error {
	t := time.NewTimer(l.spec.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		l.job(ctx)
		t.Reset(l.spec.Every)
		l.log.Debug("next run", logx.Time("at", time.Now().Add(l.spec.Every)))
	}
}

func (l *Loop) runCron(ctx context.Context) error {
	clog := cronLogger{log: l.log}
	c := cron.New(
		cron.WithParser(l.parser),
		cron.WithLocation(l.loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	c.Schedule(l.sched, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		l.job(ctx)
		l.log.Debug("next run", logx.Time("at", l.Next(time.Now())))
	}))
	c.Start()

	<-ctx.Done()
	// Done once the running job, if any, has returned.
	<-c.Stop().Done()
	return ctx.Err()
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
