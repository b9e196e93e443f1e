package llm

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

// provider is one upstream OpenAI-compatible chat endpoint.
type provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (Response, error)
}

type httpProvider struct {
	log     *logger.Logger
	name    string
	baseURL string
	apiKey  string
	model   string

	hc         *http.Client
	maxRetries int
}

// newHTTPProvider reads <PREFIX>_BASE_URL, <PREFIX>_API_KEY, and
// <PREFIX>_MODEL, falling back to the short env surface: baseURLAlias
// (LLM_PROVIDER for the primary slot, LLM_FALLBACK_PROVIDER for the
// fallback) plus the shared LLM_API_KEY and LLM_MODEL. A missing base URL
// means the slot is not configured and returns (nil, nil).
func newHTTPProvider(log *logger.Logger, name, prefix, baseURLAlias string) (*httpProvider, error) {
	baseURL := envutil.Str(prefix+"_BASE_URL", envutil.Str(baseURLAlias, ""))
	if baseURL == "" {
		return nil, nil
	}
	apiKey := envutil.Str(prefix+"_API_KEY", envutil.Str("LLM_API_KEY", ""))
	if apiKey == "" {
		return nil, fmt.Errorf("missing %s_API_KEY", prefix)
	}
	model := envutil.Str(prefix+"_MODEL", envutil.Str("LLM_MODEL", ""))
	if model == "" {
		return nil, fmt.Errorf("missing %s_MODEL", prefix)
	}
	return &httpProvider{
		log:        log.With("service", "LLMProvider", "provider", name),
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		hc:         &http.Client{Timeout: envutil.Seconds("LLM_TIMEOUT_SECONDS", 30*time.Second)},
		maxRetries: envutil.Int("LLM_MAX_RETRIES", 2),
	}, nil
}

func (p *httpProvider) Name() string  { return p.name }
func (p *httpProvider) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *httpProvider) Generate(ctx context.Context, req Request) (Response, error) {
	msgs := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(httpx.JitterSleep(time.Duration(1<<(attempt-1)) * time.Second)):
			}
		}
		resp, err := p.call(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) {
			return Response{}, fmt.Errorf("%w: %v", domain.ErrProviderNotRetryable, err)
		}
		p.log.Warn("llm call retrying", "attempt", attempt+1, "error", err)
	}
	return Response{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, lastErr)
}

func (p *httpProvider) call(ctx context.Context, body []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.hc.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, &httpx.StatusError{Status: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Response{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Response{}, fmt.Errorf("chat response has no choices")
	}
	return Response{
		Text:      strings.TrimSpace(cr.Choices[0].Message.Content),
		Model:     p.model,
		Provider:  p.name,
		TokensIn:  cr.Usage.PromptTokens,
		TokensOut: cr.Usage.CompletionTokens,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
