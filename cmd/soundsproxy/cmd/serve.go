package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"soundsproxy/internal/bbc"
	"soundsproxy/internal/cache"
	"soundsproxy/internal/config"
	"soundsproxy/internal/feed"
	"soundsproxy/internal/hls"
	internalhttp "soundsproxy/internal/http"
	"soundsproxy/internal/http/handlers"
	"soundsproxy/internal/httpclient"
	"soundsproxy/internal/observability"
	"soundsproxy/internal/remux"
	"soundsproxy/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the soundsproxy server",
	Long: `Start the soundsproxy HTTP server.

The server provides:
- RSS podcast feeds at /show/{id}
- ADTS audio streams at /episode/{id}.aac
- Health check endpoint at /healthz
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("base-url", "", "Public base URL for feed links")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("base-url") {
		cfg.Server.BaseURL, _ = cmd.Flags().GetString("base-url")
	}

	setupLogging(cfg)
	logger := slog.Default()

	logger.Info("starting soundsproxy",
		slog.String("version", version.Short()),
		slog.String("address", cfg.Server.Address()),
		slog.Bool("cache_enabled", cfg.Cache.Enabled()),
	)

	// Metadata calls are small and bounded; segment downloads only stop on
	// their own timeout so multi-minute episodes stream through.
	metaClient := httpclient.New(httpclient.Config{
		Timeout:             cfg.Upstream.RequestTimeout,
		RetryAttempts:       cfg.Upstream.RetryAttempts,
		RetryDelay:          cfg.Upstream.RetryDelay,
		RetryMaxDelay:       httpclient.DefaultRetryMaxDelay,
		UserAgent:           cfg.Upstream.UserAgent,
		EnableDecompression: true,
		Logger:              observability.WithComponent(logger, "upstream"),
	})
	segmentClient := httpclient.New(httpclient.Config{
		Timeout:       cfg.Upstream.SegmentTimeout,
		RetryAttempts: cfg.Upstream.RetryAttempts,
		RetryDelay:    cfg.Upstream.RetryDelay,
		RetryMaxDelay: httpclient.DefaultRetryMaxDelay,
		UserAgent:     cfg.Upstream.UserAgent,
		Logger:        observability.WithComponent(logger, "segments"),
	})

	client := bbc.NewClient(metaClient, bbc.WithLogger(observability.WithComponent(logger, "bbc")))
	resolver := hls.NewResolver(metaClient, observability.WithComponent(logger, "hls"))
	source := hls.NewSegmentSource(segmentClient, cfg.Upstream.PrefetchWindow, observability.WithComponent(logger, "hls"))
	remuxer := remux.NewRemuxer(observability.WithComponent(logger, "remux"))

	coordinator, err := buildCoordinator(cfg, logger)
	if err != nil {
		return err
	}

	server := internalhttp.NewServer(cfg.Server, logger, version.Short())

	handlers.NewHealthHandler(version.Short(), cfg.Cache.Enabled()).Register(server.API())
	handlers.NewSystemHandler().Register(server.API())

	episodeHandler := handlers.NewEpisodeHandler(
		client, resolver, source, remuxer,
		coordinator, cfg.Cache.PublicBaseURL, cfg.Server.PublicBaseURL(),
		observability.WithComponent(logger, "episode"),
	)
	episodeHandler.Register(server.Router())

	showHandler := handlers.NewShowHandler(
		client,
		feed.NewBuilder(cfg.Server.PublicBaseURL()),
		observability.WithComponent(logger, "show"),
	)
	showHandler.Register(server.Router())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.ListenAndServe(ctx)
}

// buildCoordinator creates the cache coordinator, or nil when no cache is
// configured.
func buildCoordinator(cfg *config.Config, logger *slog.Logger) (*cache.Coordinator, error) {
	if !cfg.Cache.Enabled() {
		return nil, nil
	}

	store, err := cache.NewS3Store(cfg.Cache, observability.WithComponent(logger, "cache"))
	if err != nil {
		return nil, fmt.Errorf("initializing blob store: %w", err)
	}
	return cache.NewCoordinator(store, observability.WithComponent(logger, "cache")), nil
}
