package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hivelabs/hivemon/pkg/api"
	"github.com/hivelabs/hivemon/pkg/cache"
	"github.com/hivelabs/hivemon/pkg/config"
	"github.com/hivelabs/hivemon/pkg/log"
	"github.com/hivelabs/hivemon/pkg/metrics"
	"github.com/hivelabs/hivemon/pkg/registry"
	"github.com/hivelabs/hivemon/pkg/stream"
	"github.com/hivelabs/hivemon/pkg/types"
	"github.com/hivelabs/hivemon/pkg/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Hivemon dashboard server",
	Long: `Start the HTTP/SSE server: poll the configured upstream cluster API,
diff successive snapshots, and stream status changes to subscribers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		// Flags override the config file
		if v, _ := cmd.Flags().GetString("listen"); v != "" {
			cfg.Listen = v
		}
		if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
			cfg.DataDir = v
		}
		if v, _ := cmd.Flags().GetString("upstream-url"); v != "" {
			cfg.Upstream.URL = v
		}
		if v, _ := cmd.Flags().GetString("token-id"); v != "" {
			cfg.Upstream.TokenID = v
		}
		if v, _ := cmd.Flags().GetString("secret"); v != "" {
			cfg.Upstream.Secret = v
		}
		if v, _ := cmd.Flags().GetBool("insecure"); v {
			cfg.Upstream.SkipTLSVerify = true
		}
		if v, _ := cmd.Flags().GetDuration("poll-interval"); v > 0 {
			cfg.Poll.Interval = v
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		metrics.SetVersion(Version)
		logger := log.WithComponent("serve")

		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}

		reg, err := registry.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open server registry: %w", err)
		}
		defer reg.Close()
		metrics.RegisterComponent("registry", true, "")

		// --server selects a registered upstream by name over the
		// config file entry
		if name, _ := cmd.Flags().GetString("server"); name != "" {
			server, err := findServerByName(reg, name)
			if err != nil {
				return err
			}
			cfg.Upstream.URL = server.URL
			cfg.Upstream.TokenID = server.TokenID
			cfg.Upstream.Secret = server.Secret
			cfg.Upstream.SkipTLSVerify = server.SkipTLSVerify
			serverLogger := log.WithServer(server.Name)
			serverLogger.Info().Str("url", server.URL).Msg("using registered server")
		}

		if cfg.Upstream.URL == "" {
			return fmt.Errorf("no upstream configured: set upstream.url, --upstream-url, or --server")
		}

		up, err := upstream.NewClient(upstream.Config{
			BaseURL:        cfg.Upstream.URL,
			TokenID:        cfg.Upstream.TokenID,
			Secret:         cfg.Upstream.Secret,
			SkipTLSVerify:  cfg.Upstream.SkipTLSVerify,
			RequestTimeout: cfg.Upstream.RequestTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create upstream client: %w", err)
		}
		metrics.RegisterComponent("upstream", true, "")

		snapshots := cache.New[types.ClusterSnapshot](cfg.Cache.MaxEntries)
		snapshots.StartSweeper(cfg.Cache.SweepInterval)
		defer snapshots.Stop()

		series := cache.New[types.MetricsSeries](cfg.Cache.MaxEntries)
		series.StartSweeper(cfg.Cache.SweepInterval)
		defer series.Stop()

		mux := stream.New(func(ctx context.Context) (types.ClusterSnapshot, error) {
			return snapshots.GetOrCompute(ctx, "cluster", cfg.Cache.TTL, up.ClusterSummary)
		}, stream.Config{
			PollInterval:   cfg.Poll.Interval,
			MaxSubscribers: cfg.Poll.MaxSubscribers,
		})
		defer mux.Stop()
		metrics.RegisterComponent("stream", true, "")

		srv := api.NewServer(api.Config{
			Mux:         mux,
			Upstream:    up,
			Snapshots:   snapshots,
			Series:      series,
			Registry:    reg,
			SnapshotTTL: cfg.Cache.TTL,
		})
		metrics.RegisterComponent("api", true, "")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(cfg.Listen)
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		})

		logger.Info().Str("listen", cfg.Listen).Str("upstream", cfg.Upstream.URL).Msg("hivemon started")
		return g.Wait()
	},
}

// findServerByName resolves a registry entry by its display name
func findServerByName(reg *registry.Store, name string) (*types.Server, error) {
	servers, err := reg.ListServers()
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	for _, s := range servers {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no registered server named %q", name)
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().String("listen", "", "HTTP listen address (default :8090)")
	serveCmd.Flags().String("data-dir", "", "Data directory for the server registry")
	serveCmd.Flags().String("upstream-url", "", "Upstream cluster API base URL")
	serveCmd.Flags().String("token-id", "", "Upstream API token ID")
	serveCmd.Flags().String("secret", "", "Upstream API token secret")
	serveCmd.Flags().Bool("insecure", false, "Skip upstream TLS certificate verification")
	serveCmd.Flags().Duration("poll-interval", 0, "Poll loop interval (default 5s)")
	serveCmd.Flags().String("server", "", "Use a registered server by name instead of the configured upstream")
}
