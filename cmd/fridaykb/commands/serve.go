package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/fridaylabs/friday-kb/internal/logging"
	"github.com/fridaylabs/friday-kb/internal/provider"
	"github.com/fridaylabs/friday-kb/internal/rag"
	"github.com/fridaylabs/friday-kb/internal/server"
	"github.com/fridaylabs/friday-kb/internal/tracing"
)

// NewServeCmd constructs the `fridaykb serve` command, which starts the
// knowledge base HTTP server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the knowledge base HTTP server",
		Long: `Start the Friday KB HTTP server on localhost.

On startup the data directory is scanned and any documents not yet in the
store are ingested, then the similarity index is built. The server then
accepts document uploads on POST /api/upload and grounded questions on
POST /api/chat.

Examples:
  fridaykb serve
  fridaykb serve --port 9090
  MODEL_PROVIDER=bedrock fridaykb serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			backend := os.Getenv("MODEL_PROVIDER")
			if backend == "" {
				backend = "ollama"
			}
			log.Info("provider initialised", slog.String("provider", backend))

			kb, closeKB, err := buildKnowledgeBase(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeKB()

			// Ingest anything sitting in the data dir that the store has not
			// seen yet, then build the index from all stored chunks.
			ingested, err := kb.pipeline.Bootstrap(ctx)
			if err != nil {
				return fmt.Errorf("serve: bootstrap scan failed: %w", err)
			}
			if err := kb.index.Rebuild(ctx); err != nil {
				return fmt.Errorf("serve: initial index build failed: %w", err)
			}
			log.Info("knowledge base ready",
				slog.Int("bootstrap_ingested", ingested),
				slog.Int("index_entries", kb.index.Size()),
			)

			engine, err := rag.NewEngine(kb.index, provider.NewCompletion(chatModel), topKFromEnv())
			if err != nil {
				return fmt.Errorf("serve: failed to create query engine: %w", err)
			}

			srv, err := server.New(engine, kb.pipeline, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewStorePinger(kb.chunks),
					server.NewModelPinger(chatModel, backend),
				},
				IndexSize: kb.index.Size,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			kb.pipeline.OnChunksEmbedded(srv.ChunkObserver())
			kb.index.OnSwap(srv.RebuildObserver())

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
