package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tkjaer/mping/internal/config"
	"github.com/tkjaer/mping/internal/output"
	"github.com/tkjaer/mping/internal/probe"
	"github.com/tkjaer/mping/internal/shared"
)

func main() {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if logFile != nil {
			logFile.Close()
		}
		os.Exit(1)
	}
}

func run(args config.Args) (err error) {
	slog.Debug("Starting mping",
		"targets", len(args.Targets),
		"count", args.Count,
		"concurrency", args.Concurrency,
		"timeout", args.Timeout,
	)

	pinger := probe.NewPinger(args.PingerOptions()...)
	for _, host := range args.Targets {
		if err := pinger.AddTarget(host); err != nil {
			return err
		}
	}

	om, err := newOutputManager(args)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := om.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close outputs: %w", cerr)
		}
	}()

	// Ctrl+C stops sending; results gathered so far are still reported.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	results, err := pinger.SendPings(ctx, int(args.Count), int(args.Concurrency), args.Timeout, args.Percentiles)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Debug("Received interrupt signal, reporting partial results")
	case err != nil:
		return err
	}

	report := shared.Report{
		Started:  started,
		Duration: time.Since(started),
		Results:  shared.OrderResults(results, pinger.Targets()),
	}
	if err := om.WriteReport(report); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	slog.Debug("mping completed", "duration", report.Duration)
	return nil
}

func newOutputManager(args config.Args) (*output.OutputManager, error) {
	om := &output.OutputManager{}

	if args.Json {
		j, err := output.NewJSONOutput("")
		if err != nil {
			return nil, err
		}
		om.Register(j)
	} else {
		om.Register(output.NewTextOutput(os.Stdout))
	}

	if args.JsonFile != "" {
		j, err := output.NewJSONOutput(args.JsonFile)
		if err != nil {
			return nil, fmt.Errorf("open json file: %w", err)
		}
		om.Register(j)
	}

	if args.PromFile != "" {
		om.Register(output.NewPrometheusOutput(args.PromFile))
	}

	return om, nil
}
