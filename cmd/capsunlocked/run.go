package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"capsunlocked/internal/config"
	"capsunlocked/internal/health"
	"capsunlocked/internal/layer"
	"capsunlocked/internal/logging"
	"capsunlocked/internal/mapping"
	"capsunlocked/internal/metrics"
	"capsunlocked/internal/overlay"
	"capsunlocked/internal/platform"
)

// daemon holds everything the run command wires together.
type daemon struct {
	settings *config.Settings
	log      *logging.Logger
	crash    *logging.CrashHandler

	loader  *config.Loader
	engine  *mapping.Engine
	overlay *overlay.Model
	metrics *metrics.LayerMetrics
	health  *health.Checker
	pump    atomic.Pointer[platform.Pump]

	mu        sync.Mutex
	reloadErr error
}

func newDaemon(s *config.Settings, log *logging.Logger, crash *logging.CrashHandler) *daemon {
	d := &daemon{
		settings: s,
		log:      log,
		crash:    crash,
		engine:   mapping.NewEngine(nil),
		overlay:  overlay.New(),
		metrics:  metrics.NewLayerMetrics(nil),
		health:   health.NewChecker(),
	}
	d.loader = config.NewLoader(
		config.WithLogger(log.WithComponent("config").Logger),
		config.WithSchemaValidation(s.Keymap.Validate),
	)
	d.loader.OnChange(d.publish)
	d.health.Register("keymap", true, d.checkKeymap)
	d.health.Register("input", true, d.checkInput)
	return d
}

func (d *daemon) checkKeymap(context.Context) health.CheckResult {
	km := d.loader.Current()
	details := map[string]any{
		"path":     km.Path,
		"entries":  km.Table.Count(),
		"defaults": km.Defaults,
	}

	d.mu.Lock()
	err := d.reloadErr
	d.mu.Unlock()
	if err != nil {
		return health.CheckResult{
			Status:  health.StatusDegraded,
			Message: "last reload failed, previous keymap active",
			Details: details,
			Error:   err.Error(),
		}
	}
	return health.CheckResult{Status: health.StatusHealthy, Details: details}
}

func (d *daemon) checkInput(context.Context) health.CheckResult {
	if p := d.pump.Load(); p != nil && p.Running() {
		return health.CheckResult{
			Status:  health.StatusHealthy,
			Details: map[string]any{"capslock_transitions": p.CapsLock().Transitions()},
		}
	}
	return health.CheckResult{Status: health.StatusUnhealthy, Message: "keyboard hook not running"}
}

func (d *daemon) setReloadErr(err error) {
	d.mu.Lock()
	d.reloadErr = err
	d.mu.Unlock()
}

// publish swaps the engine snapshot and rebinds the overlay.
func (d *daemon) publish(km *config.Keymap) {
	idx := km.Index()
	d.engine.Publish(idx)
	d.overlay.Bind(idx.Enumerate())
}

// loadKeymap performs the initial load. A broken keymap at startup is fatal.
func (d *daemon) loadKeymap() error {
	start := time.Now()
	km, err := d.loader.Load(d.settings.Keymap.Path)
	if err != nil {
		d.metrics.KeymapFailed()
		return fmt.Errorf("load keymap: %w", err)
	}
	d.metrics.KeymapLoaded(km.Table.Count(), time.Since(start))
	d.health.SetReady(true)
	return nil
}

// reload re-reads the keymap. On failure the previous keymap stays active.
func (d *daemon) reload() error {
	start := time.Now()
	km, err := d.loader.Reload()
	if err != nil {
		d.metrics.KeymapFailed()
		d.setReloadErr(err)
		return err
	}
	d.metrics.KeymapLoaded(km.Table.Count(), time.Since(start))
	d.setReloadErr(nil)
	return nil
}

func (d *daemon) platformConfig() platform.Config {
	p := d.settings.Platform
	return platform.Config{
		Device:  p.Device,
		Grab:    p.Grab,
		PollApp: time.Duration(p.PollAppMS) * time.Millisecond,
	}
}

// serve runs the event pump until ctx is done or the hook closes.
func (d *daemon) serve(ctx context.Context, hook platform.Hook, out platform.Output, apps platform.AppMonitor) error {
	ctrl := layer.New(d.engine,
		layer.WithObserver(d.metrics),
		layer.WithLogger(d.log.WithComponent("layer").Logger),
	)
	pump := platform.NewPump(ctrl, hook, out, apps,
		platform.WithPumpLogger(d.log.WithComponent("platform").Logger),
		platform.WithOverlay(d.overlay, time.Duration(d.settings.Platform.DoubleTapMS)*time.Millisecond),
		platform.WithPanicHandler(func(v any) {
			d.crash.HandlePanic(v, map[string]string{"keymap": d.loader.Path()})
		}),
	)
	d.pump.Store(pump)
	return pump.Run(ctx)
}

// serveMetrics exposes the registry and health checks until ctx is done.
func (d *daemon) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Registry().HTTPHandler())
	mux.Handle("/healthz", d.health.Handler())
	mux.Handle("/healthz/ready", d.health.ReadinessHandler())
	srv := &http.Server{
		Addr:              d.settings.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	d.log.Info("metrics listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.log.Warn("metrics server stopped", "error", err)
	}
}

func newLogger(s config.LoggingSettings) (*logging.Logger, error) {
	cfg := logging.DefaultConfig()

	level, err := logging.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(s.Format)
	if err != nil {
		return nil, err
	}
	cfg.Level = level
	cfg.Format = format
	if s.Output != "" {
		cfg.Output = s.Output
	}
	if s.FilePath != "" {
		cfg.FilePath = s.FilePath
	}
	cfg.MaxSize = int64(s.MaxSizeMB)
	cfg.MaxBackups = s.MaxBackups
	return logging.New(cfg)
}

func cmdRun() {
	var common commonFlags
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	common.register(fs)
	dryRun := fs.Bool("dry-run", false, "Print actions instead of injecting them")
	device := fs.String("device", "", "Input device node")
	noGrab := fs.Bool("no-grab", false, "Do not grab keyboards")
	fs.Parse(os.Args[2:])

	settings, err := common.settings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		settings.Platform.Device = *device
	}
	if *noGrab || *dryRun {
		settings.Platform.Grab = false
	}

	if err := run(settings, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(settings *config.Settings, dryRun bool) error {
	log, err := newLogger(settings.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	crash := logging.NewCrashHandler("", version, "capsunlocked")
	defer crash.Recover()

	d := newDaemon(settings, log, crash)
	if err := d.loadKeymap(); err != nil {
		return err
	}

	platformLog := log.WithComponent("platform").Logger
	cfg := d.platformConfig()
	hook, err := platform.NewHook(cfg, platformLog)
	if err != nil {
		return fmt.Errorf("keyboard hook: %w", err)
	}
	if ok, reason := hook.Available(); !ok {
		return fmt.Errorf("keyboard hook unavailable: %s", reason)
	}

	var out platform.Output
	if dryRun {
		out = &platform.Recorder{OnRecord: func(s string) { fmt.Println(s) }}
	} else {
		out, err = platform.NewOutput(cfg, platformLog)
		if err != nil {
			return fmt.Errorf("virtual keyboard: %w", err)
		}
	}
	defer out.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var apps platform.AppMonitor = platform.StaticApp("")
	monitor := platform.NewAppMonitor(cfg, platformLog)
	if ok, reason := monitor.Available(); ok {
		if err := monitor.Start(ctx); err != nil {
			log.Warn("app monitor not started", "error", err)
		} else {
			defer monitor.Stop()
			apps = monitor
			d.health.Register("focus", false, func(context.Context) health.CheckResult {
				if app := monitor.Current(); app != "" {
					return health.CheckResult{Status: health.StatusHealthy}
				}
				return health.CheckResult{Status: health.StatusDegraded, Message: "focused application unknown"}
			})
		}
	} else {
		log.Info("per-app mappings disabled", "reason", reason)
	}

	if settings.Metrics.Enabled {
		go d.serveMetrics(ctx)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := d.reload(); err != nil {
					log.Warn("reload failed, keeping previous keymap", "error", err)
				}
			}
		}
	}()

	log.Info("capsunlocked started",
		"version", version,
		"keymap", d.loader.Path(),
		"grab", cfg.Grab,
		"dry_run", dryRun,
	)
	if err := d.serve(ctx, hook, out, apps); err != nil {
		return err
	}
	log.Info("capsunlocked stopped")
	return nil
}
