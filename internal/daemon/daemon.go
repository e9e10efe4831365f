// Package daemon assembles the ingest pipeline from configuration and
// manages its lifecycle.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"firestige.xyz/ferry/internal/config"
	"firestige.xyz/ferry/internal/controller"
	"firestige.xyz/ferry/internal/log"
	"firestige.xyz/ferry/internal/matcher"
	"firestige.xyz/ferry/internal/metrics"
	"firestige.xyz/ferry/internal/sink"
	"firestige.xyz/ferry/internal/source"
)

const shutdownTimeout = 5 * time.Second

// Daemon owns every resource of one ferry run.
type Daemon struct {
	// Configuration
	config     *config.Config
	configPath string
	loadOpts   []config.LoadOption
	pidFile    string
	logger     log.Logger

	// Pipeline components
	source        source.Source
	matcher       *matcher.Matcher // nil without filter.rules
	producer      *sink.Producer
	controller    *controller.Controller
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sigChan  chan os.Signal
	stopOnce sync.Once
	stopErr  error
}

// New loads the configuration and prepares a Daemon. opts are re-applied
// on every Reload so that command-line overrides survive it.
func New(configPath, pidFile string, opts ...config.LoadOption) (*Daemon, error) {
	cfg, err := config.Load(configPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, configPath, pidFile, opts...), nil
}

// NewWithConfig prepares a Daemon from an already loaded configuration.
func NewWithConfig(cfg *config.Config, configPath, pidFile string, opts ...config.LoadOption) *Daemon {
	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		loadOpts:   opts,
		pidFile:    pidFile,
		logger:     log.GetLogger(),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config { return d.config }

// Start initializes every component. On error the caller must still call
// Stop to release what was already opened.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	d.logger.WithFields(map[string]interface{}{
		"config": d.configPath,
		"sink":   d.config.Sink.Type,
	}).Info("starting ferry")

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Open the input
	src, err := openSource(d.config.Input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	d.source = src

	// 5. Compile the filter and watch its rule file
	if d.config.Filter.Rules != "" {
		m, err := matcher.CompileFile(d.config.Filter.Rules,
			matcher.WithEngine(d.config.Filter.Engine),
			matcher.WithLogger(d.logger.WithField("component", "matcher")))
		if err != nil {
			return fmt.Errorf("failed to compile filter rules: %w", err)
		}
		d.matcher = m
		if d.config.Filter.Watch {
			if err := d.startWatcher(); err != nil {
				return err
			}
		}
	}

	// 6. Converter, sink and controller
	conv, err := buildConverter(d.config, src, d.matcher, d.logger)
	if err != nil {
		return err
	}
	producer, err := sink.New(d.config.Sink)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	d.producer = producer

	ctrl, err := controller.New(controller.Config{
		Source:    src,
		Converter: conv,
		Producer:  producer,
		Batch:     d.config.Batch,
		Skip:      d.config.Input.Skip,
		Count:     d.config.Input.Count,
		Logger:    d.logger.WithField("component", "controller"),
	})
	if err != nil {
		return err
	}
	d.controller = ctrl

	d.logger.WithFields(map[string]interface{}{
		"input":     src.Kind().String(),
		"converter": conv.Name(),
	}).Info("ferry started")
	return nil
}

// Run drives the controller until the input ends or a shutdown signal
// arrives, then stops the daemon. SIGHUP triggers Reload.
func (d *Daemon) Run() (controller.Stats, error) {
	if d.controller == nil {
		return controller.Stats{}, fmt.Errorf("daemon not started")
	}

	// Setup signal handling
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	type result struct {
		stats controller.Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := d.controller.Run(d.ctx)
		done <- result{stats, err}
	}()

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.logger.WithField("signal", sig.String()).Info("received shutdown signal")
				d.cancel()
			case syscall.SIGHUP:
				d.logger.Info("received reload signal")
				if err := d.Reload(); err != nil {
					d.logger.WithError(err).Error("failed to reload")
				}
			}

		case r := <-done:
			if r.err != nil {
				d.logger.WithError(r.err).Error("controller stopped with error")
			}
			return r.stats, multierr.Append(r.err, d.Stop())
		}
	}
}

// Shutdown asks a running daemon to stop. Whatever is batched is flushed.
func (d *Daemon) Shutdown() {
	d.cancel()
}

// Reload re-reads the configuration file.
// Hot-reloadable: log level/format, filter rules.
// Cold (requires restart): input, sink, batch, session, metrics.
func (d *Daemon) Reload() error {
	d.logger.WithField("path", d.configPath).Info("reloading configuration")

	newConfig, err := config.Load(d.configPath, d.loadOpts...)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	hotReloaded := []string{}
	old := *d.config

	// 1. Re-initialize logging with new config (log level + format)
	d.config.Log = newConfig.Log
	if err := d.initLogging(); err != nil {
		d.logger.WithError(err).Error("failed to reinitialize logging")
		d.config.Log = old.Log
	} else {
		hotReloaded = append(hotReloaded, "log")
	}

	// 2. Recompile filter rules; a failure keeps the previous rules
	var reloadErr error
	if d.matcher != nil {
		if newConfig.Filter.Rules != old.Filter.Rules {
			d.logger.Warn("filter.rules path changed, restart required")
		} else if err := d.matcher.ReloadFile(old.Filter.Rules); err != nil {
			reloadErr = err
		} else {
			hotReloaded = append(hotReloaded, "filter")
		}
	}

	// 3. Warn about cold-reload items that changed
	requiresRestart := []string{}
	if newConfig.Input.Path != old.Input.Path || newConfig.Input.Interface != old.Input.Interface {
		requiresRestart = append(requiresRestart, "input")
	}
	if newConfig.Sink.Type != old.Sink.Type {
		requiresRestart = append(requiresRestart, "sink.type")
	}
	if newConfig.Metrics.Listen != old.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}

	d.logger.WithFields(map[string]interface{}{
		"hot_reloaded":     hotReloaded,
		"requires_restart": requiresRestart,
	}).Info("configuration reloaded")

	return reloadErr
}

// Stop releases every resource. It is safe to call more than once and
// after a failed Start.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() { d.stopErr = d.stop() })
	return d.stopErr
}

func (d *Daemon) stop() error {
	d.logger.Info("initiating graceful shutdown")

	// 1. Cancel context to signal all goroutines
	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	d.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	// 2. Flush and close the sink
	if d.producer != nil {
		err = multierr.Append(err, d.producer.Close(ctx))
	}
	// 3. Close the input and the filter
	if d.source != nil {
		err = multierr.Append(err, d.source.Close())
	}
	if d.matcher != nil {
		err = multierr.Append(err, d.matcher.Close())
	}
	// 4. Stop metrics server
	if d.metricsServer != nil {
		err = multierr.Append(err, d.metricsServer.Stop(ctx))
	}
	// 5. Remove PID file
	err = multierr.Append(err, d.removePIDFile())

	if d.controller != nil {
		d.logger.WithField("stats", d.controller.Stats().String()).Info("ferry stopped")
	}
	return err
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := log.Init(d.config.Log); err != nil {
		return err
	}
	d.logger = log.GetLogger()
	d.logger.WithFields(map[string]interface{}{
		"level":  d.config.Log.Level,
		"format": d.config.Log.Format,
	}).Debug("logging initialized")
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		d.logger.Debug("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		d.metricsServer = nil
		return err
	}
	return nil
}

// startWatcher reloads the filter whenever the rule file changes.
func (d *Daemon) startWatcher() error {
	w, err := matcher.NewWatcher(d.matcher, d.config.Filter.Rules)
	if err != nil {
		return fmt.Errorf("failed to watch filter rules: %w", err)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := w.Run(d.ctx); err != nil {
			d.logger.WithError(err).Warn("rules watcher stopped")
		}
	}()
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	d.logger.WithField("path", d.pidFile).Debug("PID file written")
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
