// Package pipeline runs a bundle build end to end: stage every artifact that
// is missing, check the game data's engine version, and assemble the bundle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/artifact"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/bundle"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/fetch"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/platform"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/prompt"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/staging"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/verify"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/version"
)

// Downloader fetches a URL into a file.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// Options configures a Pipeline. Gate is required; everything else has a
// working default.
type Options struct {
	Config config.Config
	Host   platform.Info
	Gate   prompt.Gate
	Logger config.Logger

	// Runner executes the depot tool, pkgutil and xattr.
	Runner fetch.Runner
	// Downloader performs HTTP fetches.
	Downloader Downloader
	// RunID tags log lines and the report. Generated when empty.
	RunID string
}

// Report summarizes a successful run.
type Report struct {
	RunID string
	// Fetched lists artifacts staged by this run, in order.
	Fetched []string
	// CacheHits lists artifacts that were already staged.
	CacheHits []string
	// Overrides lists digest mismatches the user chose to accept.
	Overrides     []verify.Outcome
	EngineVersion string
	Bundle        *bundle.Result
	Elapsed       time.Duration
}

// Pipeline is one configured build.
type Pipeline struct {
	cfg      config.Config
	host     platform.Info
	runID    string
	logger   config.Logger
	gate     prompt.Gate
	registry *artifact.Registry
	layout   bundle.Layout

	cache      *staging.Cache
	downloader Downloader
	depot      *fetch.Depot
	expander   *fetch.Expander
	verifier   *verify.Verifier
	versions   *version.Gate
	assembler  *bundle.Assembler

	// staged tracks artifacts known to be present during this run.
	staged map[string]bool
}

// New validates opts and wires the pipeline's components.
func New(opts Options) (*Pipeline, error) {
	if opts.Gate == nil {
		return nil, errors.New("pipeline needs a confirmation gate")
	}

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	var err error
	if cfg.StagingDir, err = filepath.Abs(cfg.StagingDir); err != nil {
		return nil, fmt.Errorf("resolve staging dir: %w", err)
	}
	if cfg.OutputDir, err = filepath.Abs(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := config.OrNop(opts.Logger)

	registry, err := DefaultRegistry(cfg, opts.Host)
	if err != nil {
		return nil, err
	}
	layout := DefaultLayout(cfg)
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}

	runner := opts.Runner
	if runner == nil {
		runner = fetch.NewExecRunner()
	}
	downloader := opts.Downloader
	if downloader == nil {
		downloader = fetch.NewHTTP(fetch.HTTPOptions{
			Timeout: cfg.HTTPTimeout,
			Retries: cfg.DownloadRetries,
		}, logger)
	}

	return &Pipeline{
		cfg:        cfg,
		host:       opts.Host,
		runID:      runID,
		logger:     logger,
		gate:       opts.Gate,
		registry:   registry,
		layout:     layout,
		cache:      staging.NewCache(cfg.StagingDir, cfg.VerifyStamps, logger),
		downloader: downloader,
		depot:      fetch.NewDepot(runner, opts.Gate, logger),
		expander:   fetch.NewExpander(runner, opts.Host.OS, logger),
		verifier:   verify.New(opts.Gate, logger),
		versions:   version.NewGate(cfg.AllowVersionMismatch, logger),
		assembler:  bundle.NewAssembler(cfg.OutputDir, logger),
	}, nil
}

// Run stages every missing artifact, checks the engine version and
// assembles the bundle. It stops at the first error; whatever was staged
// stays staged for the next run.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: p.runID}
	p.staged = make(map[string]bool)

	if !p.host.IsMacOS() {
		p.logger.Warn("the bundle targets macOS; pkgutil is only available there",
			"host_os", p.host.OS, "host_arch", p.host.Arch)
	}
	if p.host.Translated {
		p.logger.Info("running translated; using the native depot tool build",
			"binary_arch", p.host.ArchRaw, "host_arch", p.host.Arch)
	}

	lock, err := staging.AcquireLock(ctx, p.cfg.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("lock staging dir %s: %w", p.cfg.StagingDir, err)
	}
	defer lock.Release()

	p.logger.Info("build started", "run_id", p.runID, "staging", p.cfg.StagingDir, "output", p.cfg.OutputDir)

	for _, step := range p.registry.Steps() {
		if err := p.ensure(ctx, step, report); err != nil {
			return nil, err
		}

		if step.ID == IDGameData {
			resource := filepath.Join(step.StagingPath, p.cfg.Game.DataDir, p.cfg.Game.VersionResource)
			found, err := p.versions.Check(resource, p.cfg.Runtime.Version)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", step.ID, err)
			}
			report.EngineVersion = found
		}
	}

	roots := make(map[string]string)
	for _, rule := range p.layout.Rules {
		if rule.From == "" {
			continue
		}
		d, err := p.registry.Get(rule.From)
		if err != nil {
			return nil, err
		}
		roots[d.ID] = d.StagingPath
	}

	result, err := p.assembler.Assemble(ctx, p.layout, roots)
	if err != nil {
		return nil, fmt.Errorf("assemble bundle: %w", err)
	}
	report.Bundle = result
	report.Elapsed = time.Since(start)

	p.logger.Info("build finished",
		"run_id", p.runID, "bundle", result.Path, "fetched", len(report.Fetched),
		"cache_hits", len(report.CacheHits), "overrides", len(report.Overrides),
		"elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// ensure stages d unless it already is, staging its source or tool first
// when needed.
func (p *Pipeline) ensure(ctx context.Context, d artifact.Descriptor, report *Report) error {
	if p.staged[d.ID] {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.cache.IsStaged(d) {
		p.logger.Debug("already staged", "artifact", d.ID, "path", d.StagingPath)
		p.staged[d.ID] = true
		report.CacheHits = append(report.CacheHits, d.ID)
		return nil
	}

	if d.Prompt != "" {
		ok, err := p.gate.Confirm(d.Prompt, true)
		if err != nil {
			return fmt.Errorf("%s: %w", d.ID, err)
		}
		if !ok {
			return fmt.Errorf("%s: %w", d.ID, ErrUserDeclined)
		}
	}

	start := time.Now()
	p.logger.Info("staging artifact", "artifact", d.ID, "kind", d.Kind.String())

	var err error
	switch d.Kind {
	case artifact.KindHTTPFetch:
		err = p.fetchHTTP(ctx, d, report)
	case artifact.KindAuthenticatedFetch:
		err = p.fetchDepot(ctx, d, report)
	case artifact.KindLocalArchive:
		err = p.expand(ctx, d, report)
	default:
		err = fmt.Errorf("%s: unknown kind %s", d.ID, d.Kind)
	}
	if err != nil {
		return err
	}

	if err := p.cache.Stamp(d); err != nil {
		p.logger.Warn("could not record stamp", "artifact", d.ID, "error", err)
	}
	p.staged[d.ID] = true
	report.Fetched = append(report.Fetched, d.ID)
	p.logger.Info("staged artifact", "artifact", d.ID, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (p *Pipeline) fetchHTTP(ctx context.Context, d artifact.Descriptor, report *Report) error {
	if err := p.downloader.Download(ctx, d.URL, d.StagingPath); err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}

	outcome, err := p.verifier.Check(ctx, d, d.StagingPath)
	if err != nil {
		// A rejected file must not count as staged on the next run.
		if errors.Is(err, ErrIntegrityMismatch) {
			if derr := p.cache.Discard(d); derr != nil {
				p.logger.Warn("could not discard rejected download", "artifact", d.ID, "error", derr)
			}
		}
		return err
	}
	if outcome.Overridden {
		report.Overrides = append(report.Overrides, outcome)
	}
	return nil
}

func (p *Pipeline) fetchDepot(ctx context.Context, d artifact.Descriptor, report *Report) error {
	tool, err := p.registry.Get(d.Tool)
	if err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}
	if err := p.ensure(ctx, tool, report); err != nil {
		return err
	}

	return p.depot.Fetch(ctx, d, filepath.Join(tool.StagingPath, d.ToolPath), p.cfg.StagingDir)
}

func (p *Pipeline) expand(ctx context.Context, d artifact.Descriptor, report *Report) error {
	src, err := p.registry.Get(d.Source)
	if err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}
	if err := p.ensure(ctx, src, report); err != nil {
		return err
	}

	if err := p.expander.Expand(ctx, d, src.StagingPath); err != nil {
		return err
	}

	if d.RemoveSource {
		if err := p.cache.Discard(src); err != nil {
			p.logger.Warn("could not clear consumed archive", "artifact", src.ID, "error", err)
		}
		delete(p.staged, src.ID)
	}
	return nil
}
