// Package runner executes one check cycle: every monitored (address, service)
// pair is fetched, parsed, diffed against the stored baseline and dispatched,
// with bounded concurrency and per-job failure isolation.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/notify"
	"github.com/DmitryBurnaev/tg-housing/internal/provider"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
	"github.com/DmitryBurnaev/tg-housing/internal/storage"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

type OutcomeKind string

const (
	OutcomeOK          OutcomeKind = "ok"
	OutcomeFetchError  OutcomeKind = "fetch_error"
	OutcomeParseError  OutcomeKind = "parse_error"
	OutcomeStoreError  OutcomeKind = "store_error"
	OutcomeNotifyError OutcomeKind = "notify_error"
	OutcomeTimeout     OutcomeKind = "timeout"
)

// Job is one (address, service) check.
type Job struct {
	Address  address.Address
	Provider provider.Provider
	Policy   notify.Policy
}

type Result struct {
	Job      Job
	Kind     OutcomeKind
	Err      error
	Changes  schedule.ChangeSet
	Notified notify.Outcome
	Took     time.Duration
}

// Summary aggregates one run.
type Summary struct {
	Results []Result
	Took    time.Duration
}

func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Kind != OutcomeOK {
			n++
		}
	}
	return n
}

// Partial reports whether some jobs failed while others succeeded.
func (s Summary) Partial() bool {
	f := s.Failed()
	return f > 0 && f < len(s.Results)
}

// Fatal reports whether the run produced any failure, for one-shot exit codes.
func (s Summary) Fatal() bool { return s.Failed() > 0 }

type Options struct {
	// Workers bounds concurrent checks. Defaults to 4.
	Workers int
	// Deadline bounds the run: when it elapses no new job is dequeued.
	// Defaults to 5 minutes.
	Deadline time.Duration
	// DrainGrace bounds how long a finished run waits for in-flight jobs
	// after the deadline. Jobs still missing are reported as timeouts.
	DrainGrace time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Deadline <= 0 {
		o.Deadline = 5 * time.Minute
	}
	if o.DrainGrace <= 0 {
		o.DrainGrace = 10 * time.Second
	}
	return o
}

type Runner struct {
	store    storage.Store
	notifier *notify.Notifier
	opts     Options
	log      logx.Logger
}

func New(store storage.Store, notifier *notify.Notifier, opts Options, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{store: store, notifier: notifier, opts: opts.withDefaults(), log: log}
}

// Run checks every active subscription that has a registered provider.
func (r *Runner) Run(ctx context.Context, registry *provider.Registry, policies map[schedule.Kind]notify.Policy) (Summary, error) {
	subs, err := r.store.ActiveSubscriptions(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load subscriptions: %w", err)
	}

	var jobs []Job
	for _, sub := range subs {
		p, ok := registry.Get(sub.Service)
		if !ok {
			r.log.Debug("no provider for service", logx.String("service", string(sub.Service)))
			continue
		}
		jobs = append(jobs, Job{Address: sub.Address, Provider: p, Policy: policies[sub.Service]})
	}
	return r.RunJobs(ctx, jobs), nil
}

// RunJobs executes the given jobs. It always returns a Summary with exactly
// one Result per job: a job that outlives the deadline plus the drain grace
// is reported as a timeout and its goroutine is abandoned.
func (r *Runner) RunJobs(ctx context.Context, jobs []Job) Summary {
	started := time.Now()
	if len(jobs) == 0 {
		return Summary{Took: time.Since(started)}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Deadline)
	defer cancel()

	type indexed struct {
		idx int
		res Result
	}
	feed := make(chan int)
	results := make(chan indexed, len(jobs))

	workers := r.opts.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	// The deadline gates dequeueing and collection only: an in-flight job is
	// allowed to finish its pipeline and runs on the caller's context.
	for w := 0; w < workers; w++ {
		go func() {
			for idx := range feed {
				results <- indexed{idx: idx, res: r.runJob(ctx, jobs[idx])}
			}
		}()
	}

	go func() {
		defer close(feed)
		for i := range jobs {
			select {
			case feed <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	out := make([]Result, len(jobs))
	done := make([]bool, len(jobs))
	received := 0

	collect := func(stop <-chan struct{}) {
		for received < len(jobs) {
			select {
			case ir := <-results:
				out[ir.idx] = ir.res
				done[ir.idx] = true
				received++
			case <-stop:
				return
			}
		}
	}

	collect(runCtx.Done())
	if received < len(jobs) {
		// Deadline hit; give in-flight jobs a bounded chance to report.
		grace := time.NewTimer(r.opts.DrainGrace)
		defer grace.Stop()
		stop := make(chan struct{})
		go func() {
			<-grace.C
			close(stop)
		}()
		collect(stop)
	}

	for i := range jobs {
		if !done[i] {
			out[i] = Result{
				Job:  jobs[i],
				Kind: OutcomeTimeout,
				Err:  fmt.Errorf("job did not finish within %s", r.opts.Deadline),
				Took: time.Since(started),
			}
		}
	}

	return Summary{Results: out, Took: time.Since(started)}
}

// runJob is one full pipeline pass. Panics in provider or store code are
// contained and attributed to the stage they escaped from.
func (r *Runner) runJob(ctx context.Context, job Job) (res Result) {
	started := time.Now()
	res.Job = job
	stage := OutcomeFetchError

	defer func() {
		res.Took = time.Since(started)
		if p := recover(); p != nil {
			res.Kind = stage
			res.Err = fmt.Errorf("panic: %v", p)
			r.log.Error("job panic",
				logx.String("service", string(job.Provider.Kind())),
				logx.String("address", job.Address.Key()),
				logx.Any("panic", p))
		}
	}()

	log := r.log.With(
		logx.String("service", string(job.Provider.Kind())),
		logx.String("address", job.Address.Key()))

	doc, err := job.Provider.Fetch(ctx, job.Address)
	if err != nil {
		res.Kind, res.Err = OutcomeFetchError, err
		log.Warn("fetch failed", logx.Err(err))
		return res
	}

	stage = OutcomeParseError
	snap, err := job.Provider.Parse(doc, job.Address)
	if err != nil {
		res.Kind, res.Err = OutcomeParseError, err
		log.Warn("parse failed", logx.Err(err))
		return res
	}

	stage = OutcomeStoreError
	prev, err := r.store.LoadSchedule(ctx, job.Address.ID, job.Provider.Kind())
	if err != nil {
		res.Kind, res.Err = OutcomeStoreError, err
		return res
	}

	// The hash short-circuits the diff and the fan-out, not the save: the
	// snapshot is overwritten on every run to keep fetched_at fresh.
	hash := snap.ContentHash()
	unchanged := prev != nil && prev.ContentHash == hash

	var outcome notify.Outcome
	if !unchanged {
		var prevSnap *schedule.Snapshot
		if prev != nil {
			prevSnap = &prev.Snapshot
		}
		res.Changes = schedule.Diff(prevSnap, snap)

		stage = OutcomeNotifyError
		recipients, err := r.store.SubscribersFor(ctx, job.Address.ID, job.Provider.Kind())
		if err != nil {
			res.Kind, res.Err = OutcomeStoreError, err
			return res
		}
		// Per-recipient dispatch failures do not fail the address: they are
		// enumerated in the outcome and the interval stays unmarked in the
		// dedup log for those chats.
		var nerr error
		outcome, nerr = r.notifier.Dispatch(ctx, job.Address, res.Changes, recipients, job.Policy)
		res.Notified = outcome
		if nerr != nil {
			log.Warn("some notifications failed",
				logx.Int("failed", outcome.Failed),
				logx.Err(nerr))
		}
	}

	stage = OutcomeStoreError
	if err := r.store.SaveSchedule(ctx, storage.StoredSchedule{
		AddressID:   job.Address.ID,
		Service:     job.Provider.Kind(),
		FetchedAt:   doc.FetchedAt,
		ContentHash: hash,
		Snapshot:    snap,
	}); err != nil {
		res.Kind, res.Err = OutcomeStoreError, err
		return res
	}

	res.Kind = OutcomeOK
	if !unchanged {
		log.Info("check completed",
			logx.Int("added", len(res.Changes.Added)),
			logx.Int("removed", len(res.Changes.Removed)),
			logx.Int("sent", outcome.Sent),
			logx.Bool("baseline", res.Changes.Baseline))
	} else {
		log.Debug("no changes", logx.String("hash", hash))
	}
	return res
}
