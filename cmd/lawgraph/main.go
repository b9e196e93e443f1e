package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/lawgraph-backend/internal/app"
	"github.com/yungbote/lawgraph-backend/internal/artifacts"
	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/embedding"
	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

const (
	exitOK       = 0
	exitConfig   = 1
	exitArtifact = 2
	exitBind     = 3
)

var rootCmd = &cobra.Command{
	Use:           "lawgraph",
	Short:         "Criminal-law retrieval service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load artifacts and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx)
		if err != nil {
			return err
		}
		return application.Run(ctx)
	},
}

var healthURL string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a running instance's readiness endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("probe %s: %w", healthURL, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fmt.Printf("%s %s\n", resp.Status, string(body))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("not ready")
		}
		return nil
	},
}

var reindexBatch int

// reindexCmd rebuilds the vector artifacts from the document corpora using
// the configured embedding provider. Run it after a corpus refresh, then
// restart serve.
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed the corpora and rewrite the vector artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(envutil.Str("LOG_MODE", "development"), envutil.Str("LOG_LEVEL", "info"))
		if err != nil {
			return err
		}
		defer log.Sync()

		dataDir := envutil.Str("DATA_DIR", "")
		loader, err := artifacts.NewLoader(log, dataDir)
		if err != nil {
			return err
		}
		articles, cases, err := loader.LoadCorpora()
		if err != nil {
			return err
		}

		provider, err := embedding.NewFromEnv(log, envutil.Int("EMBED_DIM", embedding.HashDim))
		if err != nil {
			return err
		}
		log.Info("reindexing corpora",
			"articles", len(articles),
			"cases", len(cases),
			"provider", provider.Name(),
			"dim", provider.Dim(),
		)

		ctx := cmd.Context()
		if err := reindexPartition(ctx, provider, articles, filepath.Join(dataDir, "vectors", "articles.bin")); err != nil {
			return err
		}
		if err := reindexPartition(ctx, provider, cases, filepath.Join(dataDir, "vectors", "cases.bin")); err != nil {
			return err
		}
		log.Info("vector artifacts rewritten", "dir", filepath.Join(dataDir, "vectors"))
		return nil
	},
}

func reindexPartition(ctx context.Context, provider embedding.Provider, docs []*domain.Document, path string) error {
	ids := make([]string, 0, len(docs))
	vectors := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += reindexBatch {
		end := min(start+reindexBatch, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			ids = append(ids, d.ID)
			texts = append(texts, d.Title+"\n"+d.Content)
		}
		batch, err := provider.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed %s rows %d-%d: %w", path, start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return artifacts.WriteVectorFile(path, provider.Dim(), ids, vectors)
}

// exitCode distinguishes operator mistakes (1), missing or corrupt data
// artifacts (2), and an unusable listen address (3).
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, domain.ErrArtifactCorruption) || errors.Is(err, os.ErrNotExist) {
		return exitArtifact
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, syscall.EADDRINUSE) {
		return exitBind
	}
	return exitConfig
}

func main() {
	healthCmd.Flags().StringVar(&healthURL, "url", "http://127.0.0.1:8080/readyz", "readiness endpoint to probe")
	reindexCmd.Flags().IntVar(&reindexBatch, "batch", 64, "documents per embedding request")
	rootCmd.AddCommand(serveCmd, healthCmd, reindexCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lawgraph: %v\n", err)
		os.Exit(exitCode(err))
	}
}
