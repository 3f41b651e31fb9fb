// Package utilityllm adapts internal/llmclient.Client to the narrow
// Summarizer and Completer interfaces that C7 (history) and C8
// (factextract) depend on, so both background probes can share one
// upstream client configured with the cheaper utility model.
package utilityllm

import (
	"context"
	"strings"

	"inkwell/internal/llmclient"
	"inkwell/internal/persistence"
)

const summarizePrompt = `Summarize the following conversation turns into a concise third-person recap that preserves names, facts, and outstanding plot threads. Do not invent details. Respond with prose only, no preamble.`

// Adapter wraps an llmclient.Client bound to one model, exposing it as
// history.Summarizer and factextract.Completer.
type Adapter struct {
	client *llmclient.Client
	model  string
}

func New(client *llmclient.Client, model string) *Adapter {
	return &Adapter{client: client, model: model}
}

// Summarize implements history.Summarizer.
func (a *Adapter) Summarize(ctx context.Context, messages []persistence.ChatMessage) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	resp, err := a.client.Chat(ctx, llmclient.ChatRequest{
		Model: a.model,
		Messages: []llmclient.ChatMessage{
			{Role: "system", Content: summarizePrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Complete implements factextract.Completer.
func (a *Adapter) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	resp, err := a.client.Chat(ctx, llmclient.ChatRequest{
		Model: a.model,
		Messages: []llmclient.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
