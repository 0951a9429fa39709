package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/config"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/grpchealth"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/load"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/logging"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/metrics"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/profiling"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/server"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/status"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/tracing"
)

func main() {
	// Command-line flags
	configPath := flag.String("config", "", "Path to configuration file (empty = defaults)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("vmsim %s\n", server.Version)
		fmt.Printf("Git commit: %s\n", server.GitCommit)
		fmt.Printf("Build time: %s\n", server.BuildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logging.Fatal("invalid configuration", logging.Err(err))
	}

	logger := newLogger(cfg)
	logging.SetGlobalLogger(logger)

	logger.Info("starting vmsim",
		logging.String("version", server.Version),
		logging.String("listen", cfg.Listen),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("vmsim exited with error", logging.Err(err))
	}
	logger.Info("vmsim stopped")
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	if cfg.Logging == nil {
		return logging.NewDefaultLogger()
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.InfoLevel
	}
	return logging.NewLogger(logging.Config{
		Level:     level,
		Output:    os.Stdout,
		Format:    logging.Format(cfg.Logging.Format),
		AddCaller: cfg.Logging.AddCaller,
	})
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	tracingCfg := tracing.Config{}
	if cfg.Tracing != nil {
		tracingCfg = tracing.Config{
			Enabled:     cfg.Tracing.Enabled,
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
		}
	}
	tracer, err := tracing.NewTracer(tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer tracer.Close(context.Background())

	// Profiling
	var profiler *profiling.Profiler
	if cfg.Profiling != nil && (cfg.Profiling.Enabled || cfg.Profiling.CPUProfilePath != "") {
		profiler = profiling.NewProfiler(profiling.ProfileConfig{
			CPUProfilePath:    cfg.Profiling.CPUProfilePath,
			EnableHTTPProfile: cfg.Profiling.Enabled,
			HTTPProfileAddr:   cfg.Profiling.Listen,
			Logger:            logger,
		})
		if err := profiler.Start(); err != nil {
			return fmt.Errorf("failed to start profiler: %w", err)
		}
		defer profiler.Stop()
	}

	// Core state
	manager := load.NewManager(load.ManagerConfig{
		CPUCount:     cfg.Load.CPUCount,
		CoreFraction: cfg.Load.CoreFraction,
		GracePeriod:  cfg.Load.GracePeriod,
		Default:      cfg.DefaultLoad(),
		Logger:       logger,
	})
	defer manager.Close()

	store := status.NewStore(!cfg.StartUnhealthy)
	store.OnChange(metrics.SetHealthStatus)

	logger.Info("load manager ready",
		logging.Int("pool_size", manager.PoolSize()),
		logging.Int("interval_seconds", cfg.DefaultLoad().IntervalSeconds),
		logging.Int("utilization_percent", cfg.DefaultLoad().UtilizationPercent),
	)

	// HTTP facade
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	srv := server.NewServer(server.Config{
		Listen:       cfg.Listen,
		Hostname:     cfg.Hostname,
		DefaultLoad:  cfg.DefaultLoad(),
		EnableHTTP2:  cfg.HTTP.EnableHTTP2,
		AccessLog:    cfg.HTTP.AccessLog,
		MetricsPath:  metricsPath,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ControlRate:  cfg.HTTP.ControlRateLimit,
		ControlBurst: cfg.HTTP.ControlBurst,
		Logger:       logger,
		Tracer:       tracer,
	}, manager, store)

	// gRPC health mirror
	var grpcSrv *grpchealth.Server
	if cfg.GRPC != nil && cfg.GRPC.Enabled {
		grpcSrv = grpchealth.NewServer(grpchealth.Config{
			ListenAddr:  cfg.GRPC.Listen,
			ServiceName: cfg.GRPC.ServiceName,
			Logger:      logger,
		}, store)
		if err := grpcSrv.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.ListenAndServe)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", logging.Duration("timeout", cfg.HTTP.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if grpcSrv != nil {
			grpcSrv.Stop()
		}
		manager.Stop(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
