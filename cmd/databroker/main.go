// Package main is the entry point for the databroker process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/databroker/internal/app"
	"github.com/dshills/databroker/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// patterns collects repeated -watch flags.
type patterns []string

func (p *patterns) String() string {
	return strings.Join(*p, ",")
}

func (p *patterns) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	opts, code, ok := parseFlags()
	if !ok {
		return code
	}

	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// parseFlags returns false with an exit code when the process should exit
// without running.
func parseFlags() (app.Options, int, bool) {
	var opts app.Options
	var watch patterns
	var showVersion bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (.toml, .yaml)")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.Var(&watch, "watch", "Print updates of streams matching group/name (repeatable)")
	flag.BoolVar(&opts.JSON, "json", false, "Print console lines as JSON")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "databroker - in-process publish/subscribe data broker\n\n")
		fmt.Fprintf(os.Stderr, "Usage: databroker [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  DATABROKER_LOGGING_LEVEL, DATABROKER_METRICS_ADDR, ... override the config file\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  databroker -config broker.toml\n")
		fmt.Fprintf(os.Stderr, "  databroker -watch 'robot/*' -metrics-addr :9102\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("databroker %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return opts, 0, false
	}

	if opts.LogLevel != "" {
		if _, err := logging.ParseLevel(opts.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", opts.LogLevel)
			return opts, 2, false
		}
	}

	opts.Watch = watch
	return opts, 0, true
}
