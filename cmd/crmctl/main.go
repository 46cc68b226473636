// Command crmctl runs the CRM decision engines from the command line:
// batch lead rescoring, segment count refresh, trigger detection and schema
// migrations. It is meant to be invoked by a scheduler.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ignite/crm-engine/internal/automation"
	"github.com/ignite/crm-engine/internal/config"
	"github.com/ignite/crm-engine/internal/pkg/batch"
	"github.com/ignite/crm-engine/internal/pkg/distlock"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/pkg/metrics"
	"github.com/ignite/crm-engine/internal/repository/postgres"
	"github.com/ignite/crm-engine/internal/segmentation"
	"github.com/ignite/crm-engine/internal/service/scoring"
)

var (
	configPath  string
	pushgateway string
)

// app holds the connections shared by every subcommand.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Manager
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	if cfg.Database.URL == "" {
		return nil, errors.New("database url is required (config database.url or DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	a := &app{cfg: cfg, db: db, registry: prometheus.NewRegistry()}
	a.metrics = metrics.NewManager(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithPrometheusRegistry(a.registry),
	)

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, using postgres advisory locks", "component", "crmctl", "error", err)
			a.redis.Close()
			a.redis = nil
		}
	}
	return a, nil
}

func (a *app) Close() {
	if pushgateway != "" {
		if err := push.New(pushgateway, "crmctl").Gatherer(a.registry).Push(); err != nil {
			logger.Warn("metrics push failed", "component", "crmctl", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}

func (a *app) locker() distlock.Locker {
	return &distlock.Provider{Redis: a.redis, DB: a.db, TTL: a.cfg.Scoring.LockTTL()}
}

func (a *app) scoringService() *scoring.Service {
	return scoring.NewService(
		postgres.NewLeadRepo(a.db),
		postgres.NewWeightRepo(a.db),
		scoring.WithLocker(a.locker()),
		scoring.WithMetrics(a.metrics),
		scoring.WithWindowDays(a.cfg.Scoring.WindowDays),
		scoring.WithBatch(batch.Options{
			ChunkSize:   a.cfg.Scoring.BatchSize,
			Concurrency: a.cfg.Scoring.Concurrency,
		}),
	)
}

func (a *app) segmentEngine() *segmentation.Engine {
	return segmentation.NewEngine(
		segmentation.NewStore(a.db),
		postgres.NewLeadRepo(a.db),
		segmentation.WithLocker(a.locker()),
		segmentation.WithMetrics(a.metrics),
		segmentation.WithPageSizes(a.cfg.Segments.DefaultPageSize, a.cfg.Segments.MaxPageSize),
	)
}

func (a *app) triggerDetector() *automation.Detector {
	return automation.NewDetector(
		automation.NewStore(a.db),
		automation.WithMetrics(a.metrics),
		automation.WithConcurrency(a.cfg.Triggers.Concurrency),
	)
}

// withApp adapts a handler that needs the shared connections into a RunE.
func withApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd, args)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crmctl",
		Short:         "Run CRM lead scoring, segmentation and workflow triggers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (env vars override it)")
	root.PersistentFlags().StringVar(&pushgateway, "pushgateway", "", "push run metrics to this Prometheus Pushgateway URL")

	root.AddCommand(newScoreCmd(), newSegmentsCmd(), newTriggersCmd(), newMigrateCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "component", "crmctl", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
