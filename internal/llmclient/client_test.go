package llmclient

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUsage_NoCacheDetails(t *testing.T) {
	u := normalizeUsage("gpt-4o-mini", openai.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120})
	assert.Equal(t, 100, u.PromptTokens)
	assert.Equal(t, 0, u.CacheHitTokens)
	assert.Equal(t, 100, u.CacheMissTokens)
}

func TestNormalizeUsage_WithCachedTokens(t *testing.T) {
	u := normalizeUsage("gpt-4o-mini", openai.Usage{
		PromptTokens:     100,
		CompletionTokens: 20,
		TotalTokens:      120,
		PromptTokensDetails: &openai.PromptTokensDetails{
			CachedTokens: 40,
		},
	})
	assert.Equal(t, 40, u.CacheHitTokens)
	assert.Equal(t, 60, u.CacheMissTokens)
}

func TestNormalizeUsage_DeepSeekPromptCacheHitTokens(t *testing.T) {
	u := normalizeUsage("deepseek-chat", openai.Usage{
		PromptTokens:          1000,
		TotalTokens:           1200,
		PromptCacheHitTokens:  400,
		PromptCacheMissTokens: 600,
	})
	assert.Equal(t, 400, u.CacheHitTokens)
	assert.Equal(t, 600, u.CacheMissTokens)
	assert.Equal(t, 1200, u.TotalTokens)
}

func TestNormalizeUsage_ClaudeViaCachedTokensSlot(t *testing.T) {
	u := normalizeUsage("claude-3-5-sonnet", openai.Usage{
		PromptTokens:     500,
		TotalTokens:      520,
		PromptTokensDetails: &openai.PromptTokensDetails{
			CachedTokens: 300,
		},
	})
	assert.Equal(t, 300, u.CacheHitTokens)
	assert.Equal(t, 200, u.CacheMissTokens)
}
