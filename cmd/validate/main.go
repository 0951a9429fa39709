package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/config"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/load"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	verbose := flag.Bool("verbose", false, "Show verbose output")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vmsim config validator %s\n", server.Version)
		fmt.Printf("Git commit: %s\n", server.GitCommit)
		fmt.Printf("Build time: %s\n", server.BuildTime)
		os.Exit(0)
	}

	if *verbose {
		fmt.Printf("Validating configuration file: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("✓ Configuration file loaded successfully\n")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	// Checks that are legal but almost certainly mistakes
	problems := []string{}

	if cfg.Load.CPUCount > 0 && load.WorkerCount(cfg.Load.CPUCount, cfg.Load.CoreFraction) == cfg.Load.CPUCount && cfg.Load.CPUCount > 1 {
		problems = append(problems, fmt.Sprintf("core_fraction %.2f leaves no idle core on %d CPUs", cfg.Load.CoreFraction, cfg.Load.CPUCount))
	}

	if cfg.Load.GracePeriod >= cfg.HTTP.ShutdownTimeout {
		problems = append(problems, fmt.Sprintf("grace_period %s is not shorter than http.shutdown_timeout %s", cfg.Load.GracePeriod, cfg.HTTP.ShutdownTimeout))
	}

	if cfg.Profiling != nil && cfg.Profiling.Enabled && cfg.Profiling.Listen == cfg.Listen {
		problems = append(problems, fmt.Sprintf("profiling listen address %s collides with the HTTP listener", cfg.Profiling.Listen))
	}

	if len(problems) > 0 {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed with %d error(s):\n", len(problems))
		for i, p := range problems {
			fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, p)
		}
		os.Exit(1)
	}

	fmt.Printf("✅ Configuration is valid\n")
	if *verbose {
		def := cfg.DefaultLoad()
		fmt.Printf("\nConfiguration summary:\n")
		fmt.Printf("  Listen: %s\n", cfg.Listen)
		fmt.Printf("  Load: %d%% for %ds, core fraction %.2f\n", def.UtilizationPercent, def.IntervalSeconds, cfg.Load.CoreFraction)
		if cfg.Load.CPUCount > 0 {
			fmt.Printf("  Workers: %d (cpu_count override %d)\n", load.WorkerCount(cfg.Load.CPUCount, cfg.Load.CoreFraction), cfg.Load.CPUCount)
		}
		if cfg.StartUnhealthy {
			fmt.Printf("  Starts unhealthy\n")
		}
		if cfg.HTTP.EnableHTTP2 {
			fmt.Printf("  HTTP/2 (h2c): enabled\n")
		}
		if cfg.Metrics.Enabled {
			fmt.Printf("  Metrics: %s\n", cfg.Metrics.Path)
		}
		if cfg.GRPC != nil && cfg.GRPC.Enabled {
			fmt.Printf("  gRPC health: enabled on %s\n", cfg.GRPC.Listen)
		}
		if cfg.Tracing != nil && cfg.Tracing.Enabled {
			fmt.Printf("  Tracing: %s\n", cfg.Tracing.Endpoint)
		}
		if cfg.Profiling != nil && cfg.Profiling.Enabled {
			fmt.Printf("  Profiling: enabled on %s\n", cfg.Profiling.Listen)
		}
	}
}
