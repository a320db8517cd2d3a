// Package app wires config, storage, providers, transport and the check
// pipeline into one runnable bot.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/config"
	"github.com/DmitryBurnaev/tg-housing/internal/notify"
	"github.com/DmitryBurnaev/tg-housing/internal/provider"
	"github.com/DmitryBurnaev/tg-housing/internal/provider/spb"
	"github.com/DmitryBurnaev/tg-housing/internal/render"
	"github.com/DmitryBurnaev/tg-housing/internal/runner"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
	"github.com/DmitryBurnaev/tg-housing/internal/scheduler"
	"github.com/DmitryBurnaev/tg-housing/internal/storage"
	"github.com/DmitryBurnaev/tg-housing/internal/transport/telegram"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

type App struct {
	mgr      *config.Manager
	logSvc   *logx.Service
	log      logx.Logger
	store    storage.Store
	renderer *render.Renderer
	adapter  *telegram.Adapter
	notifier *notify.Notifier
	sched    *scheduler.Service

	mu       sync.RWMutex
	cfg      config.Config
	registry *provider.Registry
	policies map[schedule.Kind]notify.Policy
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath, logx.NewConsole("info"))
	loaded, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := loaded.Normalized()

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: config.DurationOrDefault(cfg.Storage.BusyTimeout, 5*time.Second),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		mgr:      mgr,
		logSvc:   logSvc,
		log:      log,
		store:    store,
		renderer: render.New(),
		cfg:      cfg,
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOrDefault(cfg.Telegram.PollTimeout, 10*time.Second),
		DefaultCity: cfg.Telegram.DefaultCity,
	}, a, a.renderer, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a.adapter = adapter
	a.notifier = notify.New(adapter, store, a.renderer, nil, log.With(logx.String("comp", "notify")))
	a.sched = scheduler.New(scheduler.Config{
		Spec:     cfg.Check.Schedule,
		Timezone: cfg.Check.Timezone,
	}, a.checkJob, log.With(logx.String("comp", "scheduler")))

	a.registry, a.policies = a.buildProviders(cfg)
	return a, nil
}

// buildProviders assembles the enabled provider variants over one shared
// HTTP client.
func (a *App) buildProviders(cfg config.Config) (*provider.Registry, map[schedule.Kind]notify.Policy) {
	client := provider.NewClient(provider.ClientOptions{
		Timeout:            config.DurationOrDefault(cfg.Fetch.Timeout, 30*time.Second),
		RetryMax:           cfg.Fetch.RetryMax,
		RetryBase:          config.DurationOrDefault(cfg.Fetch.RetryBase, 500*time.Millisecond),
		RatePerHost:        cfg.Fetch.RatePerHost,
		UserAgent:          cfg.Fetch.UserAgent,
		InsecureSkipVerify: cfg.Fetch.InsecureSkipVerify,
	}, a.log.With(logx.String("comp", "fetch")))

	base := spb.Options{
		Client:     client,
		DaysBefore: cfg.Check.DaysBefore,
		DaysAfter:  cfg.Check.DaysAfter,
		Log:        a.log.With(logx.String("comp", "provider")),
	}

	var providers []provider.Provider
	policies := make(map[schedule.Kind]notify.Policy, len(schedule.Kinds()))
	for _, kind := range schedule.Kinds() {
		pcfg := cfg.Providers[string(kind)]
		policies[kind] = notify.Policy{NotifyCancelled: pcfg.NotifyCancelled}
		if !cfg.ProviderEnabled(kind) {
			continue
		}
		opts := base
		opts.URL = pcfg.URL
		switch kind {
		case schedule.KindElectricity:
			providers = append(providers, spb.NewElectricity(opts))
		case schedule.KindHotWater:
			providers = append(providers, spb.NewHotWater(opts))
		case schedule.KindColdWater:
			providers = append(providers, spb.NewColdWater(opts))
		}
	}
	return provider.NewRegistry(providers...), policies
}

// Start launches the bot: command handling, config watch and the periodic
// check schedule.
func (a *App) Start(ctx context.Context) error {
	if err := a.adapter.Start(ctx); err != nil {
		return err
	}
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	go a.mgr.Watch(ctx)
	sub := a.mgr.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(cfg.Normalized())
			}
		}
	}()

	a.log.Info("bot started")
	return nil
}

// applyConfig applies what can change at runtime: log sinks, the check
// schedule, provider set and fetch options. Token and storage path changes
// need a restart.
func (a *App) applyConfig(cfg config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if err := a.sched.Apply(scheduler.Config{
		Spec:     cfg.Check.Schedule,
		Timezone: cfg.Check.Timezone,
	}); err != nil {
		a.log.Warn("keeping previous schedule", logx.Err(err))
	}

	registry, policies := a.buildProviders(cfg)
	a.mu.Lock()
	a.cfg = cfg
	a.registry = registry
	a.policies = policies
	a.mu.Unlock()

	a.log.Info("config applied")
}

func (a *App) checkJob(ctx context.Context) {
	sum := a.RunOnce(ctx)
	a.log.Info("check cycle finished",
		logx.Int("jobs", len(sum.Results)),
		logx.Int("failed", sum.Failed()),
		logx.Duration("took", sum.Took))
}

// RunOnce executes one full check cycle against the current config.
func (a *App) RunOnce(ctx context.Context) runner.Summary {
	a.mu.RLock()
	cfg := a.cfg
	registry := a.registry
	policies := a.policies
	a.mu.RUnlock()

	r := runner.New(a.store, a.notifier, runner.Options{
		Workers:  cfg.Check.Workers,
		Deadline: config.DurationOrDefault(cfg.Check.Deadline, 5*time.Minute),
	}, a.log.With(logx.String("comp", "runner")))

	sum, err := r.Run(ctx, registry, policies)
	if err != nil {
		a.log.Error("check cycle aborted", logx.Err(err))
	}
	return sum
}

func (a *App) Stop(ctx context.Context) {
	a.sched.Stop(ctx)
	_ = a.adapter.Stop(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	_ = a.logSvc.Close()
}

// ---- telegram.Registrar ----

func (a *App) Register(ctx context.Context, chatID int64, username, locale string) error {
	return a.store.UpsertUser(ctx, storage.Recipient{ChatID: chatID, Username: username, Locale: locale})
}

func (a *App) AddAddress(ctx context.Context, chatID int64, city, raw string) (string, error) {
	addr := address.FromString(city, raw)
	if strings.TrimSpace(addr.StreetName) == "" {
		return "", fmt.Errorf("unrecognized address %q", raw)
	}
	if _, err := a.store.AddAddress(ctx, chatID, addr); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s, %s", city, raw), nil
}

func (a *App) ListAddresses(ctx context.Context, chatID int64) ([]telegram.AddressItem, error) {
	addrs, err := a.store.UserAddresses(ctx, chatID)
	if err != nil {
		return nil, err
	}
	items := make([]telegram.AddressItem, 0, len(addrs))
	for _, ad := range addrs {
		label := ad.Raw
		if strings.TrimSpace(label) == "" {
			label = ad.Key()
		}
		items = append(items, telegram.AddressItem{ID: ad.ID, Label: label})
	}
	return items, nil
}

func (a *App) RemoveAddress(ctx context.Context, chatID, addressID int64) error {
	return a.store.RemoveAddress(ctx, chatID, addressID)
}
