// Package scheduler triggers the periodic check cycle from a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

type Config struct {
	// Spec is a five-field cron expression or a descriptor like "@every 1h".
	Spec string
	// Timezone is an IANA zone name; empty means the host zone.
	Timezone string
}

// Service runs one job on a cron schedule. Overlapping fires are skipped:
// a check cycle that outlives its interval must not stack a second one.
type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	job func(ctx context.Context)

	parser  cron.Parser
	c       *cron.Cron
	baseCtx context.Context

	running atomic.Bool
}

func New(cfg Config, job func(ctx context.Context), log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		job:    job,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	spec := strings.TrimSpace(s.cfg.Spec)
	if spec == "" {
		return fmt.Errorf("empty cron spec")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("cron spec %q: %w", spec, err)
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("timezone %q: %w", tz, err)
		}
		loc = l
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, s.fire); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("scheduler started", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

// Apply swaps the schedule at runtime. A broken new config keeps the old
// schedule running.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return nil
	}
	old := s.cfg
	s.cfg = cfg
	if s.c == nil {
		return nil
	}

	prev := s.c
	s.c = nil
	if err := s.startLocked(); err != nil {
		s.cfg = old
		s.c = prev
		return err
	}
	stopCron(prev)
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

func (s *Service) fire() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("previous check cycle still running, skipping fire")
		return
	}
	defer s.running.Store(false)
	s.job(s.baseCtx)
}

func stopCron(c *cron.Cron) {
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
}
