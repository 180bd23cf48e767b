package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cobra"

	"github.com/opencamphq/campd/internal/logging"
	"github.com/opencamphq/campd/internal/provider"
	"github.com/opencamphq/campd/internal/search"
	"github.com/opencamphq/campd/internal/server"
	"github.com/opencamphq/campd/internal/store"
)

// NewServeCmd constructs the `campd serve` command, which starts the HTTP
// API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the campd HTTP API server",
		Long: `Start the campd HTTP API server on localhost.

The server exposes the REST API for camps, roles, attendees, and camp
documents. External providers (vector store, object storage, mail,
similarity search) are attached when their configuration is present and
skipped otherwise.

Examples:
  campd serve
  campd serve --port 9090
  CAMPD_API_KEY=... campd serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Open the registration database. CAMPD_DB overrides the default
			// path (~/.campd/campd.db).
			dbPath := os.Getenv("CAMPD_DB")
			if dbPath == "" {
				var err error
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open store: %w", err)
			}
			defer func() { _ = st.Close() }()
			log.Info("store opened", slog.String("path", dbPath))

			registry := buildRegistry(log)

			pingers := []server.Pinger{
				server.NewStorePinger(st),
				server.NewProviderPinger(registry, provider.TypeVectorStore),
				server.NewProviderPinger(registry, provider.TypeObjectStorage),
				server.NewProviderPinger(registry, provider.TypeMail),
			}

			// The similarity index needs both Qdrant and an embedding
			// backend; without either, search endpoints report 503.
			var idx *search.Index
			if searchCfg, ok := searchConfigFromEnv(); ok {
				apiKey := os.Getenv("OPENAI_API_KEY")
				if apiKey == "" {
					log.Warn("similarity search disabled", slog.String("reason", "OPENAI_API_KEY not set"))
				} else {
					embedder := search.NewOpenAIEmbedder(apiKey,
						os.Getenv("EMBEDDING_MODEL"),
						envInt("EMBEDDING_DIMENSIONS", 0),
					)
					idx, err = search.NewIndex(ctx, searchCfg, embedder, log)
					if err != nil {
						return fmt.Errorf("serve: failed to initialise similarity index: %w", err)
					}
					defer func() { _ = idx.Close() }()
					log.Info("similarity index ready",
						slog.String("host", searchCfg.Host),
						slog.String("collection", searchCfg.Collection),
					)

					qc, err := qdrant.NewClient(&qdrant.Config{
						Host:   searchCfg.Host,
						Port:   searchCfg.Port,
						APIKey: searchCfg.APIKey,
						UseTLS: searchCfg.UseTLS,
					})
					if err != nil {
						return fmt.Errorf("serve: failed to create qdrant health client: %w", err)
					}
					defer func() { _ = qc.Close() }()
					pingers = append(pingers, server.NewQdrantPinger(qc))
				}
			}

			srv, err := server.New(st, registry, searcherOrNil(idx), &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("CAMPD_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// searcherOrNil converts a possibly-nil *search.Index into the interface the
// server takes, keeping the nil check meaningful on the server side.
func searcherOrNil(idx *search.Index) server.Searcher {
	if idx == nil {
		return nil
	}
	return idx
}
