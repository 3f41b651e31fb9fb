// Package chatservice orchestrates one chat turn end to end: resolve the
// session, gather context (C3 memories, C4 lore, C5 card), assemble the
// prompt (C6), dispatch to the upstream LLM, persist both turns, and
// schedule the background compactor (C7) and fact extractor (C8) probes.
//
// Card and lorebook-entry content are not owned by this service (CRUD for
// cards/lorebooks is out of scope here). The card arrives inline on the
// request; lore entries come from the request's override when present,
// otherwise from the configured LoreEntrySource.
package chatservice

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"inkwell/internal/apperr"
	"inkwell/internal/card"
	"inkwell/internal/factextract"
	"inkwell/internal/history"
	"inkwell/internal/llmclient"
	"inkwell/internal/lorebook"
	"inkwell/internal/memory"
	"inkwell/internal/modelregistry"
	"inkwell/internal/observability"
	"inkwell/internal/persistence"
	"inkwell/internal/promptassembler"
	"inkwell/internal/tokencount"
	"inkwell/internal/vectorstore"
	"inkwell/internal/workerpool"
)

// LLM is the subset of llmclient.Client this service depends on, narrowed
// to allow stubbing in tests.
type LLM interface {
	Chat(ctx context.Context, req llmclient.ChatRequest) (llmclient.ChatResponse, error)
}

// LoreEntrySource supplies the enabled entries of a user's configured
// lorebooks (owned by lorebook CRUD outside this service) as the default
// activation set, used whenever a turn's request omits an override.
type LoreEntrySource interface {
	ActiveEntries(ctx context.Context, userID string) ([]lorebook.Entry, error)
}

// MemoryConfig lets the caller disable memory retrieval for a turn or
// override how many hits are pulled.
type MemoryConfig struct {
	Enabled bool
	Limit   int
}

// GenerationParams mirrors the spec's per-turn sampling overrides.
type GenerationParams struct {
	Temperature      float32
	TopP             float32
	MaxTokens        int
	FrequencyPenalty float32
	PresencePenalty  float32
}

// Request is one inbound chat turn.
type Request struct {
	UserID             string
	Message            string
	UserAlias          string
	Card               card.Card
	LoreOverride       []lorebook.Entry // when non-nil, replaces the user's stored lore entries for this turn
	ForcedLoreIDs      []string         // router-style forced activation, bypassing keyword/regex matching
	SmartContext       string           // caller-refined history synopsis, spliced ahead of raw history
	MaxContextMessages int
	MaxContextTokens   int
	Model              string
	Memory             MemoryConfig
	Generation         GenerationParams
}

// Response is the result of one completed turn.
type Response struct {
	SessionID     string
	Reply         string
	SystemPreview string
	UsedLore      bool
	TriggeredLore []lorebook.Entry
	Model         string
	TokenStats    promptassembler.TokenStats
}

const defaultMemoryLimit = 5
const defaultHistoryLimit = 200
const defaultLoreVectorHits = 5

// Service wires C1-C9 together for the per-turn control flow.
type Service struct {
	chat      persistence.ChatStore
	memories  *memory.Store
	vectors   *vectorstore.Gateway
	lore      LoreEntrySource
	registry  *modelregistry.Registry
	estimator *tokencount.Estimator
	assembler *promptassembler.Assembler
	llm       LLM
	compactor *history.Compactor
	extractor *factextract.Extractor
	pool      *workerpool.Pool
}

// Option configures a Service during construction.
type Option func(*Service)

func WithWorkerPool(p *workerpool.Pool) Option { return func(s *Service) { s.pool = p } }

func New(
	chat persistence.ChatStore,
	memories *memory.Store,
	vectors *vectorstore.Gateway,
	lore LoreEntrySource,
	registry *modelregistry.Registry,
	estimator *tokencount.Estimator,
	llm LLM,
	compactor *history.Compactor,
	extractor *factextract.Extractor,
	opts ...Option,
) *Service {
	s := &Service{
		chat:      chat,
		memories:  memories,
		vectors:   vectors,
		lore:      lore,
		registry:  registry,
		estimator: estimator,
		assembler: promptassembler.New(registry, estimator),
		llm:       llm,
		compactor: compactor,
		extractor: extractor,
	}
	for _, o := range opts {
		o(s)
	}
	if s.pool == nil {
		s.pool = workerpool.New(4)
	}
	return s
}

// SessionID resolves the deterministic session key for a (user, card)
// pair: user_id ‖ "::card::" ‖ card_id.
func SessionID(userID, cardID string) string {
	return userID + "::card::" + cardID
}

// Turn runs one inbound chat turn to completion, synchronously returning
// the assistant's reply, and schedules the compactor/fact-extractor
// probes asynchronously once persistence succeeds.
func (s *Service) Turn(ctx context.Context, req Request) (Response, error) {
	if req.UserID == "" || req.Message == "" {
		return Response{}, fmt.Errorf("%w: user_id and message are required", apperr.ErrValidation)
	}
	if req.Card.ID == "" {
		return Response{}, fmt.Errorf("%w: card.id is required", apperr.ErrValidation)
	}

	log := observability.LoggerWithTrace(ctx)
	sessionID := SessionID(req.UserID, req.Card.ID)

	historyLimit := req.MaxContextMessages
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	recentHistory, err := s.chat.ListMessages(ctx, sessionID, historyLimit, false)
	if err != nil {
		return Response{}, err
	}

	entries := req.LoreOverride
	if entries == nil {
		entries, err = s.lore.ActiveEntries(ctx, req.UserID)
		if err != nil {
			log.Warn().Err(err).Msg("lore_entries_failed")
		}
	}

	// Memory (C3) and lore (C4+C2) retrieval both embed the user's message
	// and hit the vector store; run them concurrently, same as C3's own
	// vector+keyword fan-out.
	var memStrings []string
	var loreHitIDs []string
	g, gctx := errgroup.WithContext(ctx)
	if req.Memory.Enabled {
		limit := req.Memory.Limit
		if limit <= 0 {
			limit = defaultMemoryLimit
		}
		g.Go(func() error {
			memHits, err := s.memories.Search(gctx, req.UserID, req.Message, limit)
			if err != nil {
				log.Warn().Err(err).Msg("memory_search_failed")
				return nil
			}
			memStrings = make([]string, len(memHits))
			for i, m := range memHits {
				memStrings[i] = m.Content
			}
			return nil
		})
	}
	g.Go(func() error {
		ids, err := s.searchLore(gctx, entries, req.Message)
		if err != nil {
			log.Warn().Err(err).Msg("lore_vector_search_failed")
			return nil
		}
		loreHitIDs = ids
		return nil
	})
	_ = g.Wait()

	limits := s.registry.Lookup(req.Model)
	loreBudget := clampInt(int(0.2*float64(limits.ContextWindow)), 500, 3000)

	historyStrings := make([]string, 0, len(recentHistory))
	for _, h := range recentHistory {
		historyStrings = append(historyStrings, h.Content)
	}
	forcedIDs := make(map[string]struct{}, len(req.ForcedLoreIDs)+len(loreHitIDs))
	for _, id := range req.ForcedLoreIDs {
		forcedIDs[id] = struct{}{}
	}
	for _, id := range loreHitIDs {
		forcedIDs[id] = struct{}{}
	}
	if len(forcedIDs) == 0 {
		forcedIDs = nil
	}
	loreBlocks, triggered := lorebook.Activate(lorebook.ActivateInput{
		Entries:     entries,
		History:     historyStrings,
		UserMessage: req.Message,
		ForcedIDs:   forcedIDs,
		TokenBudget: loreBudget,
	}, s.estimator)

	roleBlock := card.Render(req.Card, req.UserAlias)

	assemblerHistory := make([]promptassembler.HistoryMessage, 0, len(recentHistory))
	for _, h := range recentHistory {
		assemblerHistory = append(assemblerHistory, promptassembler.HistoryMessage{Role: h.Role, Content: h.Content})
	}

	assembled := s.assembler.Assemble(promptassembler.Input{
		RoleBlock:              roleBlock,
		Memories:               memStrings,
		LoreBlocks:             loreBlocks,
		History:                assemblerHistory,
		UserMessage:            req.Message,
		SmartContext:           req.SmartContext,
		RequestedHistoryBudget: req.MaxContextTokens,
		Model:                  req.Model,
	})

	chatMessages := make([]llmclient.ChatMessage, 0, len(assembled.Messages)+1)
	chatMessages = append(chatMessages, llmclient.ChatMessage{Role: "system", Content: assembled.SystemPrompt})
	for _, m := range assembled.Messages {
		chatMessages = append(chatMessages, llmclient.ChatMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := s.llm.Chat(ctx, llmclient.ChatRequest{
		Model:            req.Model,
		Messages:         chatMessages,
		Temperature:      req.Generation.Temperature,
		TopP:             req.Generation.TopP,
		MaxTokens:        req.Generation.MaxTokens,
		FrequencyPenalty: req.Generation.FrequencyPenalty,
		PresencePenalty:  req.Generation.PresencePenalty,
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}

	now := time.Now().UTC()
	if err := s.chat.AppendMessages(ctx, sessionID, []persistence.ChatMessage{
		{Role: "user", Content: req.Message, CreatedAt: now},
		{Role: "assistant", Content: resp.Content, CreatedAt: now.Add(time.Millisecond)},
	}); err != nil {
		return Response{}, err
	}

	s.scheduleBackgroundWork(sessionID, req.UserID, req.Message, resp.Content, limits.ContextWindow)

	return Response{
		SessionID:     sessionID,
		Reply:         resp.Content,
		SystemPreview: assembled.SystemPrompt,
		UsedLore:      len(triggered) > 0,
		TriggeredLore: triggered,
		Model:         req.Model,
		TokenStats:    assembled.TokenStats,
	}, nil
}

// DeleteSession removes exactly one session's history (scope=session).
func (s *Service) DeleteSession(ctx context.Context, userID, cardID string) error {
	return s.chat.DeleteSession(ctx, SessionID(userID, cardID))
}

// DeleteCardScope removes every session for userID (scope=card) and all
// of the user's memories, across both the SQL and vector stores.
func (s *Service) DeleteCardScope(ctx context.Context, userID string) error {
	if err := s.chat.DeleteSessionsByUserPrefix(ctx, userID); err != nil {
		return err
	}
	return s.memories.DeleteAll(ctx, userID)
}

// ListMessages returns recent non-archived messages for a session.
func (s *Service) ListMessages(ctx context.Context, userID, cardID string, limit int) ([]persistence.ChatMessage, error) {
	return s.chat.ListMessages(ctx, SessionID(userID, cardID), limit, false)
}

// ListArchived returns archived messages for a session.
func (s *Service) ListArchived(ctx context.Context, userID, cardID string) ([]persistence.ChatMessage, error) {
	return s.chat.ListArchived(ctx, SessionID(userID, cardID))
}

// Unarchive clears the archived flag on the given message ids.
func (s *Service) Unarchive(ctx context.Context, userID, cardID string, ids []string) error {
	return s.chat.Unarchive(ctx, SessionID(userID, cardID), ids)
}

// ExportBundle is the minimal session-metadata export shape: messages plus
// the identifiers needed to re-derive the session, never settings content.
type ExportBundle struct {
	Version  int                       `json:"version"`
	UserID   string                    `json:"user_id"`
	CardID   string                    `json:"character_id"`
	Messages []persistence.ChatMessage `json:"messages"`
}

const exportVersion = 1

// Export bundles a session's full message history (including archived).
func (s *Service) Export(ctx context.Context, userID, cardID string) (ExportBundle, error) {
	messages, err := s.chat.ListMessages(ctx, SessionID(userID, cardID), 0, true)
	if err != nil {
		return ExportBundle{}, err
	}
	return ExportBundle{Version: exportVersion, UserID: userID, CardID: cardID, Messages: messages}, nil
}

// Import appends bundle's messages to the session they name. Import is
// additive: existing history is never replaced or deduplicated.
func (s *Service) Import(ctx context.Context, bundle ExportBundle) error {
	if bundle.UserID == "" || bundle.CardID == "" {
		return fmt.Errorf("%w: user_id and character_id are required", apperr.ErrValidation)
	}
	if len(bundle.Messages) == 0 {
		return nil
	}
	return s.chat.AppendMessages(ctx, SessionID(bundle.UserID, bundle.CardID), bundle.Messages)
}

// searchLore embeds userMessage and runs C2's vector search over the
// lorebooks named by entries, returning the entry ids of the nearest
// hits so they can be folded into C4's ForcedIDs alongside any
// caller-supplied forced ids.
func (s *Service) searchLore(ctx context.Context, entries []lorebook.Entry, userMessage string) ([]string, error) {
	lorebookIDs := uniqueLorebookIDs(entries)
	if len(lorebookIDs) == 0 {
		return nil, nil
	}
	vectors, err := s.vectors.Embed(ctx, []string{userMessage})
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.SearchLore(ctx, lorebookIDs, vectors[0], defaultLoreVectorHits)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids, nil
}

func uniqueLorebookIDs(entries []lorebook.Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	var ids []string
	for _, e := range entries {
		if e.LorebookID == "" {
			continue
		}
		if _, ok := seen[e.LorebookID]; ok {
			continue
		}
		seen[e.LorebookID] = struct{}{}
		ids = append(ids, e.LorebookID)
	}
	return ids
}

// scheduleBackgroundWork hands the compactor probe and fact extraction
// off to the worker pool, run on their own context so they outlive the
// request that triggered them.
func (s *Service) scheduleBackgroundWork(sessionID, userID, userMsg, assistantMsg string, contextWindow int) {
	s.pool.Submit(func(ctx context.Context) {
		if err := s.compactor.Probe(ctx, sessionID, contextWindow); err != nil {
			observability.LoggerWithTrace(ctx).Error().Err(err).Str("session_id", sessionID).Msg("compaction_probe_failed")
		}
	})
	s.pool.Submit(func(ctx context.Context) {
		if err := s.extractor.Observe(ctx, userID, userMsg, assistantMsg); err != nil {
			observability.LoggerWithTrace(ctx).Error().Err(err).Str("user_id", userID).Msg("fact_extraction_failed")
		}
	})
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
