package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"review_sync/internal/adapters/ingest"
	"review_sync/internal/adapters/observability"
	redisad "review_sync/internal/adapters/redis"
	"review_sync/internal/adapters/stores"
	"review_sync/internal/app"
	"review_sync/internal/domain"
	"review_sync/internal/shared"
	mysqlrepo "review_sync/internal/storage/mysql"
)

type options struct {
	dryRun  bool
	out     string
	sources []string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "collector",
		Short:         "Collect app reviews from every store source, merge them and deliver one batch",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.dryRun, "dry-run", false, "collect and merge but do not deliver")
	f.StringVar(&opts.out, "out", "", "also write the merged batch as JSON to this file (- for stdout)")
	f.StringSliceVar(&opts.sources, "source", nil, "restrict the run to these sources (primaryApi, feed, renderedPage)")
	f.DurationVar(&opts.timeout, "timeout", 15*time.Minute, "overall deadline for the run")
	return cmd
}

func run(ctx context.Context, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	// 2) fail fast before any network activity
	if err := cfg.Validate(!opts.dryRun); err != nil {
		return err
	}
	for _, s := range opts.sources {
		if !domain.SourceTag(s).Valid() {
			return fmt.Errorf("unknown source %q", s)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	observability.Serve(cfg.MetricsAddr)

	plans := sourcePlans(cfg, opts.sources)
	log.Info().Int("sources", len(plans)).Int("max_reviews", cfg.MaxReviews).
		Bool("dry_run", opts.dryRun).Msg("collector starting")

	var deliverer *app.Deliverer
	if !opts.dryRun {
		client, err := ingest.New(cfg.IngestURL, cfg.IngestToken, cfg.IngestTimeout)
		if err != nil {
			return err
		}
		deliverer = app.NewDeliverer(client, app.RetryPolicy{
			Attempts:  cfg.DeliveryAttempts,
			BaseDelay: cfg.DeliveryBaseDelay,
			MaxJitter: cfg.DeliveryJitter,
		}, nil)
	}

	syncOpts := []app.SyncOption{app.WithWorkers(cfg.SourceWorkers)}
	if store, closeDB := openStore(ctx, cfg); store != nil {
		defer closeDB()
		syncOpts = append(syncOpts, app.WithRunStore(store))
	}
	if cfg.RedisAddr != "" {
		cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer cache.Close()
		syncOpts = append(syncOpts, app.WithCache(cache))
	}

	svc := app.NewSyncService(plans, deliverer, syncOpts...)
	res, err := svc.Run(ctx, opts.dryRun)

	if opts.out != "" {
		if werr := writeBatch(opts.out, res.Reviews); werr != nil {
			log.Error().Err(werr).Str("out", opts.out).Msg("write batch failed")
		}
	}
	if perr := observability.Push(cfg.PushgatewayURL, "review_sync_collector", observability.InitRegistry()); perr != nil {
		log.Warn().Err(perr).Msg("pushgateway push failed")
	}
	if err != nil {
		return err
	}

	ev := log.Info().Str("outcome", res.Run.Outcome).Int("merged", res.Run.Merged).Int("attempts", res.Run.Attempts)
	if res.Run.Accepted != nil {
		ev = ev.Int("accepted", *res.Run.Accepted)
	}
	ev.Msg("collector finished")
	return nil
}

func sourcePlans(cfg shared.Config, only []string) []app.SourcePlan {
	pacing := func(maxPages int) app.RetrievalLimits {
		return app.RetrievalLimits{
			MaxPages: maxPages,
			MaxItems: cfg.MaxReviews,
			PageSize: cfg.PageSize,
			DelayMin: cfg.PageDelayMin,
			DelayMax: cfg.PageDelayMax,
		}
	}
	req := func(appID string) domain.PageRequest {
		return domain.PageRequest{AppID: appID, Country: cfg.Country, Lang: cfg.Lang}
	}

	var plans []app.SourcePlan
	if cfg.AndroidAppID != "" {
		plans = append(plans, app.SourcePlan{
			Adapter: stores.NewPlayAPI(cfg.PlayAPIBase, cfg.SourceRPS, cfg.SourceTimeout),
			Request: req(cfg.AndroidAppID),
			Limits:  pacing(0),
		})
	}
	if cfg.IOSAppID != "" {
		plans = append(plans,
			app.SourcePlan{
				Adapter: stores.NewFeed(cfg.FeedBase, cfg.SourceRPS, cfg.SourceTimeout),
				Request: req(cfg.IOSAppID),
				Limits:  pacing(cfg.FeedMaxPages),
			},
			app.SourcePlan{
				Adapter: stores.NewPage(cfg.StorePageBase, cfg.SourceRPS, cfg.SourceTimeout),
				Request: req(cfg.IOSAppID),
				Limits:  pacing(1),
			},
		)
	}
	if len(only) == 0 {
		return plans
	}
	return slices.DeleteFunc(plans, func(p app.SourcePlan) bool {
		return !slices.Contains(only, string(p.Adapter.Tag()))
	})
}

// openStore connects the optional audit store; audit problems never fail a run.
func openStore(ctx context.Context, cfg shared.Config) (domain.RunStore, func()) {
	if cfg.MySQLDSN == "" {
		return nil, func() {}
	}
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Warn().Err(err).Msg("sql.Open failed, run audit disabled")
		return nil, func() {}
	}
	if err := db.PingContext(ctx); err != nil {
		log.Warn().Err(err).Msg("db.Ping failed, run audit disabled")
		_ = db.Close()
		return nil, func() {}
	}
	return mysqlrepo.New(db), func() { _ = db.Close() }
}

func writeBatch(path string, reviews []domain.CanonicalReview) error {
	if reviews == nil {
		reviews = []domain.CanonicalReview{}
	}
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reviews)
}
