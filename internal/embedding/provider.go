package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// Provider turns text into dense vectors. Implementations must be
// deterministic for identical input within a process run and safe for
// concurrent use.
type Provider interface {
	// Embed returns one vector per input, all of dimension Dim.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
	Name() string
}

// NewFromEnv selects the provider via EMBED_PROVIDER: "http" for an
// OpenAI-compatible embeddings endpoint, "hash" (the default) for the
// offline deterministic feature-hashing encoder.
func NewFromEnv(log *logger.Logger, wantDim int) (Provider, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	switch strings.ToLower(envutil.Str("EMBED_PROVIDER", "hash")) {
	case "http":
		return newHTTPProvider(log, wantDim)
	case "hash", "":
		return NewHashProvider(wantDim), nil
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", envutil.Str("EMBED_PROVIDER", ""))
	}
}
