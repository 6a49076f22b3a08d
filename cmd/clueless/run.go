package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"clueless/internal/clipboard"
	"clueless/internal/config"
	"clueless/internal/dashboard"
	"clueless/internal/health"
	"clueless/internal/inspect"
	"clueless/internal/ipc"
	"clueless/internal/logging"
	"clueless/internal/metrics"
	"clueless/internal/monitor"
	"clueless/internal/overlay"
	"clueless/internal/typing"
)

// crashRetention is how long crash dumps are kept.
const crashRetention = 30 * 24 * time.Hour

// daemon holds the services built once at startup.
type daemon struct {
	cfg   *config.Config
	path  string
	log   *logging.Logger
	audit *logging.AuditLogger
	crash *logging.CrashHandler

	inspector inspect.Inspector
	clip      clipboard.Provider
	detector  *monitor.Detector
	overlay   overlay.Overlay
	dash      *dashboard.Dashboard
	server    *ipc.Server
	metrics   *metrics.Metrics
	health    *health.Checker
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	start := fs.Bool("start", false, "begin detection immediately")
	noIPC := fs.Bool("no-ipc", false, "do not open the control socket")
	fs.Parse(args)

	path := config.ResolvePath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		fatalf("loading config: %v", err)
	}
	if *start {
		cfg.Detection.AutoStart = true
	}
	if *noIPC {
		cfg.IPC.Enabled = false
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatalf("%v", err)
	}

	d, err := newDaemon(cfg, path)
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = d.run(ctx)
	d.close()
	if err != nil {
		fatalf("%v", err)
	}
}

func newDaemon(cfg *config.Config, path string) (*daemon, error) {
	logCfg, err := cfg.LoggingOptions()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	slog.SetDefault(log.Logger)

	d := &daemon{cfg: cfg, path: path, log: log}

	d.crash = logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version: Version,
		OnCrash: func(r logging.CrashReport) {
			log.Error("panic recovered", "panic", r.PanicValue, "context", r.Context)
		},
	})
	if err := d.crash.CleanupOldCrashReports(crashRetention); err != nil {
		log.Debug("crash report cleanup failed", "error", err)
	}

	d.audit, err = logging.NewAuditLogger(logging.DefaultAuditConfig())
	if err != nil {
		// The daemon runs without an audit trail rather than not at all.
		log.Warn("audit log unavailable", "error", err)
	}

	d.metrics = metrics.New()
	d.inspector = inspect.New(inspect.Options{
		Runner: inspect.ExecRunner{Timeout: cfg.MonitorConfig().CommandTimeout},
		Logger: log.Logger,
	})
	d.clip = clipboard.New()
	d.detector = monitor.New(monitor.Options{
		Config:     cfg.MonitorConfig(),
		Inspector:  d.inspector,
		Clipboard:  d.clip,
		Typing:     typing.NewSimulated(cfg.Detection.TypingSeed),
		Signatures: cfg.SignatureSet(),
		Logger:     log.Logger,
		Observer:   d.metrics,
	})

	d.overlay, err = overlay.New(cfg.Overlay.Kind, cfg.Overlay.NotifyPerMinute, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}

	d.dash = dashboard.New(dashboard.Options{
		Detector:  d.detector,
		Overlay:   d.overlay,
		Inspector: d.inspector,
		Broadcast: d.publish,
		Interval:  cfg.DashboardInterval(),
		Logger:    log.Logger,
	})

	if cfg.IPC.Enabled {
		perm, err := strconv.ParseUint(cfg.IPC.Permissions, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("ipc permissions %q: %w", cfg.IPC.Permissions, err)
		}
		d.server = ipc.NewServer(ipc.ServerConfig{
			SocketPath:     cfg.IPC.SocketPath,
			Version:        Version,
			Permissions:    os.FileMode(perm),
			MaxConnections: cfg.IPC.MaxConnections,
			IdleTimeout:    time.Duration(cfg.IPC.TimeoutSec) * time.Second,
			Logger:         log.Logger,
			OnHandshake: func(c *ipc.Client) {
				d.record(logging.AuditClientConnect, c.Actor(), "handshake", nil, map[string]any{"client": c.ID})
			},
		}, ipc.NewHandler(ipc.Services{
			Detector:  d.detector,
			Overlay:   d.overlay,
			Dashboard: d.dash,
			Inspector: d.inspector,
			Audit:     d.audit,
			Logger:    log.Logger,
			Version:   Version,
			Clients:   d.clientCount,
			Broadcast: d.broadcast,
		}))
	}

	d.health = health.NewChecker()
	d.health.RegisterFunc("clipboard", false, health.FlagCheck("clipboard", func() bool {
		return clipboard.Available(d.clip)
	}))
	d.health.RegisterFunc("memory_scan", false, health.FlagCheck("memory scan", d.inspector.SupportsMemoryScan))
	if d.server != nil {
		d.health.RegisterFunc("ipc", true, health.ErrorCheck("ipc socket", func(ctx context.Context) error {
			if d.server.Addr() == "" {
				return errors.New("not listening")
			}
			return nil
		}))
	}
	return d, nil
}

// run supervises the daemon's services until ctx is canceled or one of
// them fails.
func (d *daemon) run(ctx context.Context) error {
	log := d.log.Logger
	log.Info("clueless starting", "version", Version, "platform", d.inspector.Platform(), "config", d.path)
	d.record(logging.AuditStartup, logging.Actor(), "start", nil, map[string]any{"version": Version})

	g, gctx := errgroup.WithContext(ctx)

	if d.server != nil {
		events, cancel := d.detector.Subscribe(256)
		defer cancel()

		g.Go(func() error {
			defer d.crash.RecoverGoroutine("ipc")
			return d.server.Run(gctx)
		})
		g.Go(func() error {
			defer d.crash.RecoverGoroutine("ipc-forward")
			d.server.Forward(gctx, events)
			return nil
		})
	}

	g.Go(func() error {
		defer d.crash.RecoverGoroutine("dashboard")
		return d.dash.Run(gctx)
	})

	if d.cfg.Metrics.Enabled {
		srv := metrics.NewServer(d.cfg.Metrics.Addr, metrics.Router(d.metrics, d.health), log)
		g.Go(func() error {
			defer d.crash.RecoverGoroutine("metrics")
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		defer d.crash.RecoverGoroutine("config")
		d.watchConfig(gctx)
		return nil
	})

	if d.cfg.Detection.AutoStart {
		if err := d.detector.Start(gctx); err != nil {
			log.Error("auto start failed", "error", err)
		} else {
			d.dash.MonitoringStarted()
			d.record(logging.AuditDetectionStart, logging.Actor(), "auto_start", nil, nil)
		}
	}

	d.health.SetReady(true)
	err := g.Wait()
	d.health.SetReady(false)

	if d.detector.Monitoring() {
		if serr := d.detector.Stop(); serr != nil {
			log.Warn("stopping detector", "error", serr)
		}
		d.record(logging.AuditDetectionStop, logging.Actor(), "shutdown", nil, nil)
	}
	d.record(logging.AuditShutdown, logging.Actor(), "stop", err, nil)
	log.Info("clueless stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchConfig reloads the configuration file on change. The log level
// applies immediately; other sections take effect on restart.
func (d *daemon) watchConfig(ctx context.Context) {
	log := d.log.Logger
	loader := config.NewLoader(d.path, log)
	if _, err := loader.Load(); err != nil {
		log.Warn("config watch disabled", "error", err)
		return
	}
	loader.OnChange(func(old, cfg *config.Config) {
		if lvl, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
			d.log.SetLevel(lvl)
		}
		restart := config.RestartRequired(old, cfg)
		log.Info("configuration reloaded", "path", d.path, "log_level", cfg.Logging.Level, "restart_required", restart)
		d.record(logging.AuditConfigChange, logging.Actor(), "reload", nil, map[string]any{
			"path":             d.path,
			"restart_required": restart,
		})
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watch disabled", "error", err)
		return
	}
	defer loader.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-loader.Errors():
			log.Warn("config reload rejected", "error", err)
		}
	}
}

// publish forwards a dashboard snapshot to metrics and subscribers.
func (d *daemon) publish(s dashboard.Snapshot) {
	d.metrics.ObserveStatus(s.Status)
	d.broadcast(ipc.EventStatus, s)
}

func (d *daemon) broadcast(t ipc.EventType, v any) {
	if d.server != nil {
		d.server.BroadcastValue(t, v)
	}
}

func (d *daemon) clientCount() int {
	if d.server == nil {
		return 0
	}
	return d.server.ClientCount()
}

func (d *daemon) record(typ logging.AuditEventType, actor, action string, err error, details map[string]any) {
	if aerr := d.audit.Record(typ, actor, action, err, details); aerr != nil {
		d.log.Warn("audit write failed", "action", action, "error", aerr)
	}
}

func (d *daemon) close() {
	if d.overlay != nil {
		d.overlay.Close()
	}
	if err := d.audit.Close(); err != nil {
		d.log.Debug("closing audit log", "error", err)
	}
	d.log.Close()
}
