package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clueless/internal/config"
	"clueless/internal/logging"
	"clueless/internal/monitor"
	"clueless/internal/report"
	"clueless/internal/typing"
)

// cmdScan monitors in the foreground for a fixed time and prints the
// resulting report. Interrupting the scan prints what was found so far.
func cmdScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	duration := fs.Duration("duration", 30*time.Second, "how long to monitor")
	format := fs.String("format", "text", "report format: text, json or yaml")
	verbose := fs.Bool("v", false, "log detector activity to stderr")
	fs.Parse(args)

	f, err := report.ParseFormat(*format)
	if err != nil {
		fatalf("%v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("loading config: %v", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LevelWarn
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	log := logging.NewWriter(os.Stderr, logCfg)

	det := monitor.New(monitor.Options{
		Config:     cfg.MonitorConfig(),
		Typing:     typing.NewSimulated(cfg.Detection.TypingSeed),
		Signatures: cfg.SignatureSet(),
		Logger:     log.Logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := det.Start(ctx); err != nil {
		fatalf("starting detection: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Monitoring for %s (Ctrl+C to stop early)...\n", *duration)

	select {
	case <-ctx.Done():
	case <-time.After(*duration):
	}
	if err := det.Stop(); err != nil {
		fatalf("stopping detection: %v", err)
	}

	if err := report.Write(os.Stdout, det.Report(), f); err != nil {
		fatalf("%v", err)
	}
}
