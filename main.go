package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/docsearch/docsearch-mcp/internal/config"
	"github.com/docsearch/docsearch-mcp/tools"
)

const (
	version     = "0.1.0"
	serverName  = "docsearch-mcp"
	description = "MCP server for searching static documentation builds"
)

// serverFlags holds command-line overrides; only flags the user set are applied
type serverFlags struct {
	configPath string
	artifact   string
	backend    string
	indexDir   string
	baseURL    string
	watch      bool
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Set up logging to stderr (MCP uses stdout for protocol)
	log.SetOutput(os.Stderr)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags serverFlags

	cmd := &cobra.Command{
		Use:     serverName,
		Short:   description,
		Version: version,
		Long: `Serves documentation search over MCP (stdio).

The search index artifact is loaded from --artifact, or from the copy
embedded in the binary when no artifact is configured.

Environment variables:
  DOCSEARCH_ARTIFACT        Search index artifact path
  DOCSEARCH_BACKEND         linear (default) or bleve
  DOCSEARCH_INDEX_DIR       Persist the bleve index here
  DOCSEARCH_BASE_URL        Prefix for result URLs
  DOCSEARCH_MAX_RESULTS     Default number of results
  DOCSEARCH_CACHE_SIZE      Result cache entries (0 disables)
  DOCSEARCH_WATCH           Reload when the artifact changes
  DOCSEARCH_WATCH_DEBOUNCE  Quiet period before reloading`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()
			return runServer(ctx, cfg)
		},
	}

	bindFlags(cmd, &flags)
	return cmd
}

func bindFlags(cmd *cobra.Command, flags *serverFlags) {
	cmd.Flags().StringVar(&flags.configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&flags.artifact, "artifact", "", "search index artifact (default: embedded)")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "search backend: linear or bleve")
	cmd.Flags().StringVar(&flags.indexDir, "index-dir", "", "persist the bleve index in this directory")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "base URL prefixed to result locations")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "reload when the artifact file changes")
}

// loadConfig layers flags over the config file and environment, then
// validates the combined result
func loadConfig(cmd *cobra.Command, flags serverFlags) (config.Config, error) {
	cfg, err := config.Resolve(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}

	set := cmd.Flags().Changed
	if set("artifact") {
		cfg.Artifact = flags.artifact
	}
	if set("backend") {
		cfg.Backend = flags.backend
	}
	if set("index-dir") {
		cfg.IndexDir = flags.indexDir
	}
	if set("base-url") {
		cfg.BaseURL = flags.baseURL
	}
	if set("watch") {
		cfg.Watch = flags.watch
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	log.Printf("%s v%s starting...", serverName, version)

	ds := tools.NewDocSearch(tools.Options{
		ArtifactPath: cfg.Artifact,
		Backend:      cfg.Backend,
		IndexDir:     cfg.IndexDir,
		BaseURL:      cfg.BaseURL,
		MaxResults:   cfg.MaxResults,
		CacheSize:    cfg.CacheSize,
	})
	defer func() {
		if err := ds.Close(); err != nil {
			log.Printf("Error closing doc search: %v", err)
		}
	}()

	// A failed first load is retried by the search tool
	if err := ds.Initialize(ctx); err != nil {
		log.Printf("Warning: Failed to load documentation index: %v", err)
		log.Printf("Documentation search will retry on first use")
	}

	server := createMCPServer()
	ds.RegisterDocSearchTools(server)
	log.Printf("✓ Server ready and waiting for connections")

	// The watcher stops once the client disconnects
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if cfg.Watch {
		watcher := tools.NewArtifactWatcher(cfg.Artifact, cfg.WatchDebounce, func(ctx context.Context) error {
			_, err := ds.Reload(ctx, false)
			return err
		})
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	return g.Wait()
}

// createMCPServer initializes the MCP server
func createMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		nil, // Default options
	)

	log.Printf("Server initialized: %s v%s", serverName, version)
	return server
}
