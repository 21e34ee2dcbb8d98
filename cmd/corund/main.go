// Command corund runs the routine scheduler as a daemon: a tick driver
// pumping one scheduler, cron-triggered jobs from the config file, optional
// failure journaling to sqlite, config hot reload and systemd integration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"corun/internal/config"
	"corun/internal/driver"
	"corun/internal/eventbus"
	"corun/internal/journal"
	"corun/internal/recur"
	"corun/internal/runtime/supervisor"
	logx "corun/pkg/logx"
	"corun/pkg/routine"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("svc", "config")))

	bus := eventbus.New()
	sched := routine.New(
		routine.WithLogger(log.With(logx.String("svc", "routine"))),
		routine.WithBus(bus),
	)
	drv := driver.New(sched, driver.Config{
		TickInterval: cfg.TickInterval(),
		OpQueue:      cfg.OpQueue(),
	}, log.With(logx.String("svc", "driver")))

	sup := supervisor.New(ctx, supervisor.WithLogger(log))

	var jr *journal.Journal
	if jc := cfg.Journal; jc != nil && jc.Enabled {
		busy, _ := config.ParseDurationField("journal.busy_timeout", jc.BusyTimeout)
		jr, err = journal.Open(journal.Config{
			Path:        jc.Path,
			Keep:        jc.KeepOrDefault(),
			BusyTimeout: busy,
		}, log.With(logx.String("svc", "journal")))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jr.Close()
		sup.Go("journal.consume", func(ctx context.Context) error {
			return jr.Consume(ctx, bus)
		})
	}

	drv.Start(ctx)

	rec := recur.New(drv, log.With(logx.String("svc", "recur")))
	for _, jc := range cfg.Jobs {
		job, err := builtinJob(drv, log.With(logx.String("job", jc.Name)), jc)
		if err != nil {
			return err
		}
		if err := rec.Add(job); err != nil {
			return err
		}
	}
	rec.Start()

	// Hot reload covers logging only; driver and job changes need a restart.
	sup.Go("config.watch", func(ctx context.Context) error {
		return mgr.Watch(ctx, func(next *config.Config) {
			logSvc.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File: logx.FileConfig{
					Enabled: next.Logging.File.Enabled,
					Path:    next.Logging.File.Path,
				},
			})
		})
	})

	notifySystemd(sup, log)

	log.Info("corund started",
		logx.String("config", cfgPath),
		logx.Int("jobs", len(cfg.Jobs)),
		logx.Duration("tick", cfg.TickInterval()),
	)

	<-ctx.Done()
	log.Info("shutting down")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	rec.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := drv.Stop(stopCtx); err != nil {
		log.Warn("driver stop", logx.Err(err))
	}
	if err := sup.Stop(stopCtx); err != nil {
		log.Warn("supervisor stop", logx.Err(err))
	}
	return nil
}

// notifySystemd reports readiness and, when the unit has WatchdogSec set,
// keeps the watchdog fed at half the configured interval. No-ops outside
// systemd.
func notifySystemd(sup *supervisor.Supervisor, log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if !sent {
		return
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}
