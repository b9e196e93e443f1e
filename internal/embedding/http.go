package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/httpx"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// httpProvider calls an OpenAI-compatible POST /v1/embeddings endpoint.
type httpProvider struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	model   string
	dim     int

	hc         *http.Client
	maxRetries int
}

func newHTTPProvider(log *logger.Logger, wantDim int) (Provider, error) {
	apiKey := envutil.Str("EMBED_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing EMBED_API_KEY")
	}
	baseURL := strings.TrimRight(envutil.Str("EMBED_BASE_URL", "https://api.openai.com"), "/")
	model := envutil.Str("EMBED_MODEL", "text-embedding-3-small")

	return &httpProvider{
		log:        log.With("service", "EmbeddingProvider", "provider", "http"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dim:        wantDim,
		hc:         &http.Client{Timeout: envutil.Seconds("EMBED_TIMEOUT_SECONDS", 30*time.Second)},
		maxRetries: envutil.Int("EMBED_MAX_RETRIES", 2),
	}, nil
}

func (p *httpProvider) Name() string { return "http:" + p.model }
func (p *httpProvider) Dim() int     { return p.dim }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *httpProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(httpx.JitterSleep(time.Duration(attempt) * 500 * time.Millisecond)):
			}
		}
		out, err := p.call(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) {
			break
		}
		p.log.Warn("embedding call retrying", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, lastErr)
}

func (p *httpProvider) call(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpx.StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	var er embedResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	out := make([][]float32, len(er.Data))
	for _, d := range er.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings response index %d out of range", d.Index)
		}
		if p.dim > 0 && len(d.Embedding) != p.dim {
			return nil, fmt.Errorf("embedding dimension mismatch: expected=%d got=%d", p.dim, len(d.Embedding))
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embeddings response missing index %d", i)
		}
	}
	return out, nil
}
