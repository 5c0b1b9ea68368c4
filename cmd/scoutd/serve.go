package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/scoutd/scoutd"
	"github.com/scoutd/scoutd/internal/logger"
	"github.com/scoutd/scoutd/internal/metrics"
)

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Debug      bool
	AutoStart  bool
}

// configPollInterval is how often the daemon checks the config file for
// out-of-band edits.
const configPollInterval = 5 * time.Second

// runServeCommand runs supervision cycles until a shutdown signal
// arrives. A config file change ends the current cycle and starts a
// fresh one from the new snapshot; tuning is never mutated in place.
func runServeCommand(flags *ServeFlags, args []string, sigCh <-chan os.Signal) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	autoStart := flags.AutoStart
	for {
		restart, err := serveCycle(configPath, flags.Debug, autoStart, sigCh)
		if err != nil {
			return err
		}
		if !restart {
			return nil
		}
		// Only the very first cycle honors --start; a config change
		// must not relaunch a worker the operator already stopped.
		autoStart = false
		slog.Info("config changed, restarting supervision cycle", "path", configPath)
	}
}

// serveCycle builds the full daemon from one config snapshot and runs it
// until shutdown (restart=false) or a config change (restart=true).
func serveCycle(configPath string, debug, autoStart bool, sigCh <-chan os.Signal) (restart bool, err error) {
	cfg, err := scoutd.LoadConfig(configPath)
	if err != nil {
		return false, fmt.Errorf("error loading config: %w", err)
	}
	logger.Setup(os.Stderr, debug, true)

	var st scoutd.Store
	if cfg.Store != nil && cfg.Store.DSN != "" {
		st, err = scoutd.OpenStore(cfg.Store.DSN)
		if err != nil {
			return false, fmt.Errorf("failed to open run store: %w", err)
		}
		defer func() { _ = st.Close() }()
	}

	var sinks []scoutd.LogSink
	if ls := cfg.LogSink; ls != nil {
		if ls.DSN != "" {
			sink, err := scoutd.NewSQLLogSink(ls.DSN)
			if err != nil {
				return false, fmt.Errorf("failed to open SQL log sink: %w", err)
			}
			sinks = append(sinks, sink)
		}
		if ls.ClickHouseAddr != "" {
			table := ls.ClickHouseTable
			if table == "" {
				table = "worker_logs"
			}
			sink, err := scoutd.NewClickHouseLogSink(ls.ClickHouseAddr, table)
			if err != nil {
				return false, fmt.Errorf("failed to open ClickHouse log sink: %w", err)
			}
			sinks = append(sinks, sink)
		}
	}

	sup := scoutd.New(cfg, st, sinks...)

	var metricsSrv *http.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := scoutd.RegisterMetricsDefault(); err != nil {
			slog.Warn("failed to register metrics", "err", err)
		}
		if cfg.Metrics.Listen != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsSrv = &http.Server{
				Addr:              cfg.Metrics.Listen,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("metrics server error", "err", err)
				}
			}()
		}
	}

	var apiSrv *http.Server
	if cfg.Server != nil && cfg.Server.Listen != "" {
		apiSrv, err = scoutd.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, sup, st)
		if err != nil {
			return false, fmt.Errorf("failed to create HTTP server: %w", err)
		}
		slog.Info("scoutd API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	if autoStart {
		if runID, err := sup.Start(cfg.Worker.Defaults); err != nil {
			slog.Error("autostart failed", "err", err)
		} else {
			slog.Info("autostarted worker run", "run_id", runID)
		}
	}

	changed := make(chan struct{})
	cancelWatch := cfg.Watch(configPollInterval, func() { close(changed) })

	select {
	case <-sigCh:
		slog.Info("shutting down")
		restart = false
	case <-changed:
		restart = true
	}

	cancelWatch()
	if err := sup.Stop(); err != nil {
		slog.Warn("worker stop on shutdown failed", "err", err)
	}
	if apiSrv != nil {
		_ = apiSrv.Close()
	}
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	return restart, nil
}
