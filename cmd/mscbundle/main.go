package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/pipeline"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/platform"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/prompt"
)

// Version will be set at build time via -ldflags
var Version = "v0.1.0"

type options struct {
	showHelp    bool
	showVersion bool
	verbose     bool
	configPath  string
}

func parseArgs(args []string) (options, error) {
	opts := options{configPath: config.DefaultFileName}
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "--help", "-h":
			opts.showHelp = true
		case "--version", "-v":
			opts.showVersion = true
		case "--verbose":
			opts.verbose = true
		case "--config":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("--config requires a path")
			}
			i++
			opts.configPath = args[i]
		default:
			return opts, fmt.Errorf("unknown argument: %s", arg)
		}
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printHelp(os.Stderr)
		os.Exit(2)
	}

	switch {
	case opts.showVersion:
		fmt.Printf("mscbundle %s\n", Version)
		return
	case opts.showHelp:
		printHelp(os.Stdout)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err, opts.verbose))
		os.Exit(1)
	}
}

// errorMessage renders err for the terminal. Override file errors drop the
// Lua stack traceback unless verbose is set.
func errorMessage(err error, verbose bool) string {
	var parseErr *config.ParseError
	if errors.As(err, &parseErr) {
		return "load configuration: " + config.FormatError(err, verbose)
	}
	return err.Error()
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "mscbundle - build a native macOS app bundle of My Summer Car")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mscbundle                 Download what is missing and assemble the bundle")
	fmt.Fprintln(w, "  mscbundle --config <file> Read overrides from <file> (default mscbundle.lua)")
	fmt.Fprintln(w, "  mscbundle --verbose       Log debug output")
	fmt.Fprintln(w, "  mscbundle --version       Show version information")
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector := platform.NewDetector()
	host, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detect platform: %w", err)
	}

	cfg, err := config.NewParser(detector).Load(ctx, opts.configPath, config.Default())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, closeLog := newLogger(cfg.StagingDir, opts.verbose)
	defer closeLog()

	p, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Host:   *host,
		Gate:   prompt.NewTerminal(),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	report, err := p.Run(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrUserDeclined) || errors.Is(err, prompt.ErrAborted) {
			return fmt.Errorf("build stopped: %w", err)
		}
		return err
	}

	printReport(os.Stdout, report)
	return nil
}

func printReport(w io.Writer, r *pipeline.Report) {
	fmt.Fprintf(w, "✓ Built %s\n", r.Bundle.Path)
	fmt.Fprintf(w, "  engine version: %s\n", r.EngineVersion)
	fmt.Fprintf(w, "  fetched: %d, already staged: %d\n", len(r.Fetched), len(r.CacheHits))
	for _, o := range r.Overrides {
		fmt.Fprintf(w, "  ⚠ %s was kept despite a digest mismatch\n", o.Artifact)
	}
	fmt.Fprintf(w, "  took %s\n", r.Elapsed.Round(time.Second))
}
