package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/irts/internal/config"
	"github.com/roach88/irts/internal/harvest"
	"github.com/roach88/irts/internal/mapper"
	"github.com/roach88/irts/internal/metrics"
	"github.com/roach88/irts/internal/reconcile"
	"github.com/roach88/irts/internal/rules"
	"github.com/roach88/irts/internal/source"
	"github.com/roach88/irts/internal/source/arxiv"
	"github.com/roach88/irts/internal/source/crossref"
	"github.com/roach88/irts/internal/store"
)

// HarvestOptions holds flags for the harvest command.
type HarvestOptions struct {
	*RootOptions
	Sources []string
	Type    string
	DryRun  bool
	Workers int
}

// NewHarvestCommand creates the harvest command.
func NewHarvestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HarvestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest records from external sources",
		Long: `Discover, fetch, map and reconcile records from the configured sources.

Harvest types:
  new        discover records not harvested yet; skip unchanged payloads
  reprocess  re-map stored payloads without network access
  reharvest  re-fetch every record already known for a source
  requery    re-run discovery including already harvested records

New records that are not duplicates of an existing record are queued for
review under the "irts" source.

Exit codes:
  0 - Run completed (per-record failures are listed in the report)
  2 - Configuration error, or a source could not be queried`,
		Example: `  irts harvest
  irts harvest --sources crossref --type reharvest
  irts harvest --dry-run -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Sources, "sources", []string{arxiv.Name, crossref.Name}, "sources to harvest, in order")
	cmd.Flags().StringVar(&opts.Type, "type", string(harvest.TypeNew), "harvest type (new|reprocess|reharvest|requery)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log planned writes without changing the store")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "records processed concurrently (default: from config)")

	return cmd
}

func runHarvest(cmd *cobra.Command, opts *HarvestOptions) error {
	t, err := harvest.ParseType(opts.Type)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --type", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}

	logger := opts.logger(cmd.ErrOrStderr())
	logger.Debug("configuration loaded", "config", cfg.String())

	m := metrics.New()
	sources, err := buildSources(cfg, opts.Sources, m, logger)
	if err != nil {
		return err
	}

	st, err := opts.openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ensureRules(ctx, st, cfg.Rules, logger); err != nil {
		return err
	}

	mp := mapper.New(st,
		mapper.WithLogger(logger),
		mapper.WithMessages(st),
		mapper.WithMetrics(m),
		mapper.WithUnmappedPolicy(cfg.UnmappedPolicy()))
	rec := reconcile.New(st, reconcile.WithLogger(logger), reconcile.WithMetrics(m))
	runner := harvest.NewRunner(st, mp, rec,
		harvest.WithLogger(logger),
		harvest.WithMetrics(m),
		harvest.WithWorkers(cfg.Workers),
		harvest.WithDryRun(opts.DryRun))

	logger.Info("harvest starting", "sources", opts.Sources, "type", t, "dry_run", opts.DryRun)
	reports, runErr := runner.Run(ctx, sources, t)

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if err := outputHarvest(opts.formatter(cmd), reports); err != nil {
		return err
	}

	// Per-record failures are part of the reports; only a run that could
	// not harvest a source is an error.
	if runErr != nil {
		return WrapExitError(ExitCommandError, "harvest failed", runErr)
	}
	return nil
}

// buildSources creates the named sources from the configuration, each with
// its own rate-limited fetcher.
func buildSources(cfg *config.Config, names []string, m *metrics.Metrics, logger *slog.Logger) ([]harvest.Source, error) {
	if len(names) == 0 {
		return nil, NewExitError(ExitCommandError, "no sources given")
	}

	userAgent := source.DefaultUserAgent
	if cfg.Email != "" {
		userAgent = fmt.Sprintf("%s (mailto:%s)", source.DefaultUserAgent, cfg.Email)
	}

	var out []harvest.Source
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case arxiv.Name:
			f := source.NewFetcher(arxiv.Name,
				source.WithDelay(cfg.ArxivDelay()),
				source.WithUserAgent(userAgent),
				source.WithMetrics(m))
			out = append(out, arxiv.New(arxiv.Config{
				APIURL:     cfg.Arxiv.API,
				MaxResults: cfg.Arxiv.MaxResults,
				Authors:    cfg.Arxiv.Authors,
				SkipNames:  cfg.Arxiv.SkipNames,
			}, f, logger.With("source", arxiv.Name)))
		case crossref.Name:
			f := source.NewFetcher(crossref.Name,
				source.WithDelay(cfg.CrossrefDelay()),
				source.WithUserAgent(userAgent),
				source.WithMetrics(m))
			out = append(out, crossref.New(crossref.Config{
				APIURL:       cfg.Crossref.API,
				Email:        cfg.Email,
				Affiliations: cfg.Affiliations(),
				Rows:         cfg.Crossref.Rows,
				Window:       cfg.CrossrefWindow(),
			}, f, logger.With("source", crossref.Name)))
		default:
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("unknown source %q (want %s or %s)", name, arxiv.Name, crossref.Name))
		}
	}
	return out, nil
}

// ensureRules seeds the rule tables. A configured rule file is seeded on
// every run so edits take effect; otherwise the built-in rules are seeded
// once into an empty store.
func ensureRules(ctx context.Context, st *store.Store, path string, logger *slog.Logger) error {
	var (
		rs  *rules.RuleSet
		err error
	)
	if path != "" {
		rs, err = rules.LoadPath(path)
	} else {
		existing, listErr := st.ListMappings(ctx, "")
		if listErr != nil {
			return listErr
		}
		if len(existing) > 0 {
			return nil
		}
		rs, err = rules.Defaults()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}

	stats, err := rules.Seed(ctx, st, rs)
	if err != nil {
		return err
	}
	logger.Info("rules seeded", "sources", stats.Sources, "mappings", stats.Mappings, "transformations", stats.Transformations)
	return nil
}

func outputHarvest(f *OutputFormatter, reports []*harvest.Report) error {
	if f.Format == "json" {
		if reports == nil {
			reports = []*harvest.Report{}
		}
		return f.Success(reports)
	}

	for i, rep := range reports {
		if i > 0 {
			fmt.Fprintln(f.Writer)
		}
		if f.Verbose {
			fmt.Fprintln(f.Writer, rep.Text())
		} else {
			fmt.Fprintln(f.Writer, rep.Summary())
		}
	}
	return nil
}
