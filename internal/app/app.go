// Package app wires the daemon together: config, logging, transport,
// registry, journal, reporter, and the stdin intake.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"announceq/internal/announce"
	"announceq/internal/config"
	"announceq/internal/eventbus"
	"announceq/internal/report"
	rtsup "announceq/internal/runtime/supervisor"
	"announceq/internal/storage"
	"announceq/internal/transport"
	"announceq/internal/transport/telegram"
	logx "announceq/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus     eventbus.Bus
	adapter transport.Adapter
	store   storage.Store
	reg     *announce.Registry
	rep     *report.Reporter

	// defaults is the settings record applied to submissions that don't
	// carry their own; replaced wholesale on config reload.
	mu          sync.Mutex
	defaults    announce.Settings
	defaultChat int64

	sup *rtsup.Supervisor
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		RatePerSec:  cfg.Telegram.RatePerSec,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	bus := eventbus.New()

	var store storage.Store
	if cfg.Storage != nil {
		busyTimeout, derr := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if derr != nil {
			_ = logSvc.Close()
			return nil, derr
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busyTimeout,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	reg := announce.New(announce.Options{
		Log: log.With(logx.String("comp", "announce")),
		Bus: bus,
	})

	a := &App{
		cfgMgr:      mgr,
		logSvc:      logSvc,
		log:         log,
		bus:         bus,
		adapter:     adapter,
		store:       store,
		reg:         reg,
		defaults:    cfg.Announce.Settings(),
		defaultChat: cfg.Telegram.DefaultChatID,
	}

	if cfg.Report != nil && cfg.Report.Enabled {
		rep, rerr := report.New(cfg.Report.Schedule, reg, log.With(logx.String("comp", "report")))
		if rerr != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("report schedule: %w", rerr)
		}
		a.rep = rep
	}

	return a, nil
}

// Registry exposes the pipeline for tests and embedders.
func (a *App) Registry() *announce.Registry { return a.reg }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "app"))),
		// Background loops are best-effort; one failing must not take the
		// pipeline down.
		rtsup.WithCancelOnError(false),
	)

	a.sup.Go("config.watch", a.cfgMgr.Watch)
	a.sup.Go0("config.apply", a.applyLoop)

	if a.store != nil {
		a.sup.Go0("journal", func(c context.Context) {
			storage.RunRecorder(c, a.bus, a.store, a.log.With(logx.String("comp", "journal")))
		})
	}

	if a.rep != nil {
		a.rep.Start()
	}

	a.sup.Go0("intake.stdin", a.readStdin)

	// Best-effort: ignored outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("announced started")
	return nil
}

// applyLoop re-applies hot-reloadable config: log sinks/level and announce
// defaults. Transport, storage, and the report schedule stay fixed for the
// process lifetime.
func (a *App) applyLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
			a.mu.Lock()
			a.defaults = cfg.Announce.Settings()
			a.defaultChat = cfg.Telegram.DefaultChatID
			a.mu.Unlock()
			a.log.Info("config reapplied")
		}
	}
}

// send delivers one fully-formed item via the transport adapter. Items
// without an origin go to the configured default chat.
func (a *App) send(ctx context.Context, it *announce.Item) error {
	to := transport.Origin{Channel: "telegram"}
	if it.Origin != nil {
		to = *it.Origin
	} else {
		a.mu.Lock()
		to.ChatID = a.defaultChat
		a.mu.Unlock()
	}
	_, err := a.adapter.SendText(ctx, to, it.Prompt, &transport.SendOptions{DisablePreview: true})
	return err
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.sup != nil {
		// The stdin reader may be blocked in a read; don't wait on it
		// past the deadline.
		_ = a.sup.Stop(ctx)
	}

	if a.rep != nil {
		a.rep.Stop()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("announced stopped")
	return a.logSvc.Close()
}
