package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/profilematch/internal/config"
	"github.com/FranksOps/profilematch/internal/fingerprint"
	"github.com/FranksOps/profilematch/internal/metrics"
	"github.com/FranksOps/profilematch/internal/pipeline"
	"github.com/FranksOps/profilematch/internal/progress"
	"github.com/FranksOps/profilematch/internal/record"
	"github.com/FranksOps/profilematch/internal/scraper"
	"github.com/FranksOps/profilematch/internal/serp"
	"github.com/FranksOps/profilematch/internal/storage"
	"github.com/FranksOps/profilematch/internal/storage/sinks"
	"github.com/FranksOps/profilematch/pkg/proxy"
	"github.com/FranksOps/profilematch/pkg/ratelimit"
	"github.com/FranksOps/profilematch/pkg/useragent"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Search every person in the input and record confirmed profile links",
	Long: `Match reads the input CSV and, one person at a time, searches each
configured engine for a profile on the target domain. When the first two
engines' top results name the same profile the link is recorded as
confirmed. Every engine's raw link is stored either way.

People are processed strictly in order with a pause between them
(--delay, default 46s).`,
	RunE: runMatch,
}

func init() {
	f := matchCmd.Flags()
	f.StringP("input", "i", "group_members.csv", "input CSV with a header row")
	f.StringP("output", "o", "results.csv", "result file or database DSN")
	f.String("sink", "", "result sink: csv, ndjson, sqlite or postgres (default: from --output)")
	f.StringSlice("engines", serp.DefaultEngines, "engines to query; the first two are reconciled")
	f.String("engine-file", "", "yaml file overriding or adding engine definitions")
	f.String("domain", serp.DefaultDomain, "profile domain to restrict searches to")
	f.String("name-field", serp.DefaultNameField, "input column holding the person's name")
	f.StringSlice("context-fields", serp.DefaultContextFields, "input columns added to the query (text before the first comma)")
	f.StringSlice("terms", serp.DefaultTerms, "extra search terms")
	f.Duration("delay", config.DefaultDelay, "minimum pause between people")
	f.Float64("jitter", 0, "random extra pause as a fraction of --delay (0-1)")
	f.Bool("skip-malformed", false, "log and skip input rows with the wrong number of columns")
	f.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	f.Duration("timeout", 0, "HTTP request timeout (default 30s)")
	f.String("fingerprint", "go", "TLS fingerprint: go, chrome, firefox, safari or random")
	f.StringSlice("user-agent", nil, "User-Agent strings to use (default: built-in browser list)")
	f.String("ua-strategy", "sticky", "User-Agent choice: sticky, sequential or random")
	f.String("proxy-file", "", "file with one proxy URL per line")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(settings)
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set, err := record.Load(cfg.Input, record.Options{SkipMalformed: cfg.SkipMalformed, Logger: logger})
	if err != nil {
		return err
	}
	logger.Info("loaded input", "path", cfg.Input, "people", len(set.People), "columns", strings.Join(set.Header, ","))

	qb := serp.QueryBuilder{
		Domain:        cfg.Domain,
		NameField:     cfg.NameField,
		ContextFields: cfg.ContextFields,
		Terms:         cfg.Terms,
	}
	if err := qb.Validate(set.Header); err != nil {
		return err
	}

	engines, closeEngines, err := buildEngines(cfg, qb, logger)
	if err != nil {
		return err
	}
	defer closeEngines()

	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.Name()
	}

	kind, err := sinks.ParseKind(cfg.Sink, cfg.Output)
	if err != nil {
		return err
	}
	sink, err := sinks.Open(ctx, kind, cfg.Output, storage.Layout{InputColumns: set.Header, Engines: names})
	if err != nil {
		return err
	}
	defer sink.Close()

	pacer := ratelimit.NewLimiter(cfg.Delay, cfg.Jitter)
	defer pacer.Stop()
	logger.Info("pacing", "interval", pacer.Interval(), "jitter", cfg.Jitter)

	runner := &pipeline.Runner{
		Engines:   engines,
		Sink:      sink,
		Reporter:  progress.NewReporter(os.Stdout, isatty.IsTerminal(os.Stdout.Fd())),
		Pacer:     pacer,
		Logger:    logger,
		NameField: cfg.NameField,
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	defer finish()

	if cfg.MetricsPort > 0 {
		srv := metrics.NewServer(cfg.MetricsPort)
		logger.Info("serving metrics", "port", cfg.MetricsPort)
		g.Go(func() error { return srv.Run(runCtx) })
	}
	g.Go(func() error {
		defer finish()
		_, err := runner.Run(runCtx, set.People)
		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}
	return nil
}

// buildEngines gives every engine its own browsing session.
func buildEngines(cfg config.Config, qb serp.QueryBuilder, logger *slog.Logger) ([]serp.Engine, func(), error) {
	catalog, err := serp.LoadCatalog(cfg.EngineFile)
	if err != nil {
		return nil, nil, err
	}
	specs, err := catalog.Select(cfg.Engines)
	if err != nil {
		return nil, nil, err
	}

	profile, err := fingerprint.ParseProfile(cfg.HTTP.Fingerprint)
	if err != nil {
		return nil, nil, err
	}
	strategy, err := useragent.ParseStrategy(cfg.HTTP.UAStrategy)
	if err != nil {
		return nil, nil, err
	}

	var proxies *proxy.Pool
	if cfg.HTTP.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(cfg.HTTP.ProxyFile); err != nil {
			return nil, nil, err
		}
		logger.Info("loaded proxies", "count", proxies.Len())
	}

	var fetchers []*scraper.Fetcher
	closeAll := func() {
		for _, f := range fetchers {
			f.Close()
		}
	}

	engines := make([]serp.Engine, 0, len(specs))
	for _, spec := range specs {
		fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
			Timeout:     cfg.HTTP.Timeout,
			ProxyPool:   proxies,
			UAPool:      useragent.NewPool(cfg.HTTP.UserAgents, strategy),
			Fingerprint: profile,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("engine %s: %w", spec.Name, err)
		}
		fetchers = append(fetchers, fetcher)

		adapter, err := serp.NewAdapter(spec, qb, fetcher, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		engines = append(engines, adapter)
	}
	return engines, closeAll, nil
}
