package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fridaylabs/friday-kb/internal/extract"
	"github.com/fridaylabs/friday-kb/internal/logging"
)

// NewIngestCmd constructs the `fridaykb ingest` command, which ingests one or
// more documents into the knowledge base without starting the server.
func NewIngestCmd() *cobra.Command {
	var bootstrap bool

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest documents into the knowledge base",
		Long: `Extract, chunk, embed, and store the given documents. Each file is also
copied into the data directory so it survives restarts.

With --bootstrap, the data directory itself is scanned instead and any file
not yet present in the store is ingested.

Supported formats: txt, py, pdf, docx, csv, xlsx, jpg, png, mp3, wav, m4a,
mp4, mov, mkv. Audio and video require TRANSCRIBE_API_KEY; images require
AWS credentials for Textract.

Examples:
  fridaykb ingest lease.pdf notes.txt
  fridaykb ingest --bootstrap`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if !bootstrap && len(args) == 0 {
				return fmt.Errorf("ingest: provide at least one file, or use --bootstrap to scan the data directory")
			}

			kb, closeKB, err := buildKnowledgeBase(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeKB()

			if bootstrap {
				n, err := kb.pipeline.Bootstrap(ctx)
				if err != nil {
					return fmt.Errorf("ingest: bootstrap scan failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %d new file(s) from %s\n", n, kb.pipeline.DataDir())
				return nil
			}

			files, err := expandPaths(args)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			for _, path := range files {
				res, err := kb.pipeline.Ingest(ctx, path)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}
				log.Info("document ingested",
					slog.String("file", res.FileName),
					slog.Int("chunks", res.ChunksEmbedded),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunk(s) embedded\n", res.FileName, res.ChunksEmbedded)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "Scan the data directory and ingest files missing from the store")

	return cmd
}

// expandPaths resolves each argument to the files it names: a plain file
// passes through, a directory contributes its supported regular files
// (non-recursive).
func expandPaths(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			p := filepath.Join(arg, e.Name())
			if extract.Supported(p) {
				files = append(files, p)
			}
		}
	}
	return files, nil
}
