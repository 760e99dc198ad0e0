// Package cli implements the kestrel command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/correlation"
	"github.com/kestrelsec/kestrel/internal/feed"
	"github.com/kestrelsec/kestrel/internal/gateway"
	"github.com/kestrelsec/kestrel/internal/nat"
	"github.com/kestrelsec/kestrel/internal/normalizer"
	"github.com/kestrelsec/kestrel/internal/pipeline"
	"github.com/kestrelsec/kestrel/internal/repository"
	"github.com/kestrelsec/kestrel/internal/risk"
	"github.com/kestrelsec/kestrel/internal/timenorm"
)

// NewRootCommand builds the kestrel command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "kestrel",
		Short: "Cross-source threat hunting pipeline",
		Long: `Kestrel correlates firewall, email, endpoint, identity and asset
logs into scored incident candidates for SOC triage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newHuntCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newSeedCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// app bundles everything a command needs after startup.
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	runner    *pipeline.Runner
	store     repository.Store
	publisher *feed.Publisher
	client    *gateway.Client
}

// setup loads configuration and wires the pipeline. Configuration errors
// abort before anything touches the log store.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(log)

	table, err := nat.Load(cfg.Correlation.NATTablePath)
	if err != nil {
		return nil, fmt.Errorf("load NAT table: %w", err)
	}

	tn, err := timenorm.New(cfg.Time.SourceTimezones, cfg.Time.DisplayTimezone)
	if err != nil {
		return nil, err
	}

	client, err := gateway.NewClient(cfg.OpenSearch)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	store, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	publisher, err := feed.NewPublisher(cfg.NATS, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	runner := pipeline.NewRunner(pipeline.Deps{
		Gateway:     gateway.New(client, cfg.Gateway),
		Checkpoints: gateway.NewCheckpointStore(redisClient, cfg.Redis.Enabled),
		Registry:    normalizer.DefaultRegistry(tn),
		Time:        tn,
		Engine:      correlation.NewEngine(cfg.Correlation, table, log),
		Scorer:      risk.New(cfg.Risk),
		Store:       store,
		Publisher:   publisher,
		Log:         log,
	})

	return &app{
		cfg:       cfg,
		log:       log,
		runner:    runner,
		store:     store,
		publisher: publisher,
		client:    client,
	}, nil
}

// close releases the app's connections.
func (a *app) close() {
	a.publisher.Close()
	a.store.Close()
}

// newStore picks the repository backend from configuration.
func newStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (repository.Store, error) {
	switch cfg.Database.Type {
	case "postgres":
		return repository.NewPostgresStore(ctx, cfg.Database.Postgres, log)
	case "memory":
		return repository.NewMemoryStore(), nil
	default:
		return nil, &config.ConfigurationError{
			Field:  "database.type",
			Reason: fmt.Sprintf("unknown backend %q", cfg.Database.Type),
		}
	}
}
