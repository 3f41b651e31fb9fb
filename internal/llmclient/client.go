// Package llmclient talks to the configured upstream chat-completion and
// embedding endpoints as a generic OpenAI-compatible API: a base URL and
// API key for chat, another pair for embeddings, JSON in and out. Vendor-specific usage fields (cache hit
// accounting) are normalized on the way out so the rest of the pipeline
// never branches on which vendor is behind the base URL.
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"inkwell/internal/observability"
)

const (
	chatTimeout  = 300 * time.Second
	embedTimeout = 30 * time.Second
)

// Usage is the normalized token accounting for one completion call,
// folding vendor-specific cache fields (DeepSeek prompt_cache_hit_tokens,
// the prompt_tokens_details.cached_tokens slot for everyone else) into one
// shape.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CacheHitTokens   int
	CacheMissTokens  int
}

// ChatMessage is the wire-agnostic message shape callers build requests
// from; Client translates to/from the openai package's types.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is one chat-completion call.
type ChatRequest struct {
	Model            string
	Messages         []ChatMessage
	Temperature      float32
	TopP             float32
	MaxTokens        int
	FrequencyPenalty float32
	PresencePenalty  float32
}

// ChatResponse is the normalized result of a chat-completion call.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// Client wraps a chat (baseURL, apiKey) pair and an embeddings (baseURL,
// apiKey) pair, both instrumented with the shared OTel HTTP transport.
type Client struct {
	chat       *openai.Client
	embed      *openai.Client
	embedModel string
}

// New constructs a Client. chatBaseURL/chatAPIKey and embedBaseURL/
// embedAPIKey may point at different upstreams (spec allows a distinct
// RAG/embedding endpoint from the chat endpoint).
func New(chatBaseURL, chatAPIKey, embedBaseURL, embedAPIKey, embedModel string) *Client {
	return &Client{
		chat:       newOpenAIClient(chatBaseURL, chatAPIKey),
		embed:      newOpenAIClient(embedBaseURL, embedAPIKey),
		embedModel: embedModel,
	}
}

func newOpenAIClient(baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = observability.NewHTTPClient(&http.Client{})
	return openai.NewClientWithConfig(cfg)
}

// Chat issues a chat-completion call and returns the first choice's
// content alongside normalized usage.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llmclient: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("llmclient: chat completion returned no choices")
	}

	return ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Usage:   normalizeUsage(req.Model, resp.Usage),
	}, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	resp, err := c.embed.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("llmclient: embeddings: missing vector for input %d", i)
		}
	}
	return out, nil
}

// normalizeUsage folds a vendor's usage shape into the pipeline's
// vendor-neutral Usage, dispatching on model so each vendor's cache
// accounting field lands in CacheHitTokens: DeepSeek reports
// prompt_cache_hit_tokens directly; Claude (behind an OpenAI-compatible
// proxy) surfaces cache_read_input_tokens via the same
// prompt_tokens_details.cached_tokens slot OpenAI itself uses. Unknown
// vendors fall back to that slot too, since it is the most common
// convention among OpenAI-compatible upstreams.
func normalizeUsage(model string, u openai.Usage) Usage {
	out := Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	switch {
	case isDeepSeekModel(model):
		out.CacheHitTokens = u.PromptCacheHitTokens
	default:
		if u.PromptTokensDetails != nil {
			out.CacheHitTokens = u.PromptTokensDetails.CachedTokens
		}
	}
	out.CacheMissTokens = out.PromptTokens - out.CacheHitTokens
	if out.CacheMissTokens < 0 {
		out.CacheMissTokens = 0
	}
	return out
}

func isDeepSeekModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "deepseek")
}
