package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/clustermap/pkg/cache"
	"github.com/matzehuels/clustermap/pkg/config"
	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/observability"
	"github.com/matzehuels/clustermap/pkg/pipeline"
	"github.com/matzehuels/clustermap/pkg/server"
)

// serveCommand runs the HTTP service.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the heatmap HTTP service",
		Long: `Run the heatmap HTTP service.

Configuration is read from --config (TOML or YAML), then from a .env file in
the working directory, then from CLUSTERMAP_* environment variables. Without
a config file the service listens on :5000 with an in-memory cache.

Endpoints:
  POST /v1/build_heatmap_html   build a report, respond with its directory
  GET  /v1/status               service state and version
  GET  /healthz                 liveness probe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return c.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (.toml, .yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config file")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg config.Config) error {
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil && c.Logger.GetLevel() != log.DebugLevel {
		c.SetLogLevel(level)
	}
	c.Logger.Debug("loaded config", "config", cfg.String())

	store, keyer, err := newServiceCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(store, keyer, c.Logger).WithMaxLeaves(cfg.Clustering.MaxLeaves)
	runner.ScratchDir = cfg.ScratchDir
	defer runner.Close()

	observability.SetServerHooks(observability.NewLogHooks(c.Logger))

	srv := server.New(runner, c.Logger)
	srv.Defaults = map[string]any{
		pipeline.ParamDistMetric:    cfg.Clustering.DistMetric,
		pipeline.ParamLinkageMethod: cfg.Clustering.LinkageMethod,
	}

	c.Logger.Info("starting service",
		"addr", cfg.Server.Addr,
		"cache", cfg.Cache.Backend,
		"scratch", cfg.ScratchDir)
	return srv.Run(ctx, cfg.Server)
}

// newServiceCache opens the configured cache backend. Entries never outlive
// cfg.TTL.
func newServiceCache(ctx context.Context, cfg config.Cache) (cache.Cache, cache.Keyer, error) {
	var (
		store cache.Cache
		keyer = cache.NewDefaultKeyer()
	)

	switch cfg.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), keyer, nil
	case config.CacheMemory:
		store = cache.NewMemoryCache()
	case config.CacheFile:
		dir := cfg.Dir
		if dir == "" {
			var err error
			if dir, err = cacheDir(); err != nil {
				return nil, nil, fmt.Errorf("get cache dir: %w", err)
			}
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file cache: %w", err)
		}
		store = fc
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return cache.WithMaxTTL(rc, cfg.TTL.Duration), keyer, nil
	default:
		return nil, nil, errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", cfg.Backend)
	}

	if cfg.Prefix != "" {
		keyer = cache.NewScopedKeyer(keyer, cfg.Prefix)
	}
	return cache.WithMaxTTL(store, cfg.TTL.Duration), keyer, nil
}
