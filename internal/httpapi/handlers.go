package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"inkwell/internal/apperr"
	"inkwell/internal/card"
	"inkwell/internal/chatservice"
	"inkwell/internal/lorebook"
)

type memoryConfigRequest struct {
	Enabled bool `json:"enabled"`
	Limit   int  `json:"limit"`
}

type chatResponse struct {
	Reply         string           `json:"reply"`
	SystemPreview string           `json:"systemPreview"`
	UsedLore      bool             `json:"usedLore"`
	TriggeredLore []lorebook.Entry `json:"triggered_entries"`
	Model         string           `json:"model"`
	TokenStats    any              `json:"tokenStats"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID             string               `json:"user_id"`
		Message            string               `json:"message"`
		Card               card.Card            `json:"card"`
		Lore               []lorebook.Entry     `json:"lore"`
		ForcedLoreIDs      []string             `json:"forced_lore_ids"`
		SmartContext       string               `json:"smart_context"`
		MaxContextMessages int                  `json:"max_context_messages"`
		MaxContextTokens   int                  `json:"max_context_tokens"`
		Model              string               `json:"model"`
		MemoryConfig       memoryConfigRequest  `json:"memory_config"`
		Temperature        float32              `json:"temperature"`
		TopP               float32              `json:"top_p"`
		MaxTokens          int                  `json:"max_tokens"`
		FrequencyPenalty   float32              `json:"frequency_penalty"`
		PresencePenalty    float32              `json:"presence_penalty"`
		UserAlias          string               `json:"user_alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(body.UserID) == "" || strings.TrimSpace(body.Message) == "" {
		respondError(w, http.StatusBadRequest, errors.New("user_id and message are required"))
		return
	}

	req := chatservice.Request{
		UserID:             body.UserID,
		Message:            strings.TrimSpace(body.Message),
		UserAlias:          body.UserAlias,
		Card:               body.Card,
		LoreOverride:       body.Lore,
		ForcedLoreIDs:      body.ForcedLoreIDs,
		SmartContext:       body.SmartContext,
		MaxContextMessages: body.MaxContextMessages,
		MaxContextTokens:   body.MaxContextTokens,
		Model:              body.Model,
		Memory: chatservice.MemoryConfig{
			Enabled: body.MemoryConfig.Enabled,
			Limit:   body.MemoryConfig.Limit,
		},
		Generation: chatservice.GenerationParams{
			Temperature:      body.Temperature,
			TopP:             body.TopP,
			MaxTokens:        body.MaxTokens,
			FrequencyPenalty: body.FrequencyPenalty,
			PresencePenalty:  body.PresencePenalty,
		},
	}

	resp, err := s.service.Turn(r.Context(), req)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{
		Reply:         resp.Reply,
		SystemPreview: resp.SystemPreview,
		UsedLore:      resp.UsedLore,
		TriggeredLore: resp.TriggeredLore,
		Model:         resp.Model,
		TokenStats:    resp.TokenStats,
	})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	userID := q.Get("user_id")
	characterID := q.Get("character_id")
	scope := q.Get("scope")

	if userID == "" {
		respondError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}

	switch scope {
	case "session":
		if characterID == "" {
			respondError(w, http.StatusBadRequest, errors.New("character_id is required for scope=session"))
			return
		}
		if err := s.service.DeleteSession(ctx, userID, characterID); err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
	case "card":
		if err := s.service.DeleteCardScope(ctx, userID); err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
	default:
		respondError(w, http.StatusBadRequest, errors.New("scope must be \"session\" or \"card\""))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	userID, characterID := q.Get("user_id"), q.Get("character_id")
	if userID == "" || characterID == "" {
		respondError(w, http.StatusBadRequest, errors.New("user_id and character_id are required"))
		return
	}
	messages, err := s.service.ListMessages(ctx, userID, characterID, 0)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleListArchived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	userID, characterID := q.Get("user_id"), q.Get("character_id")
	if userID == "" || characterID == "" {
		respondError(w, http.StatusBadRequest, errors.New("user_id and character_id are required"))
		return
	}
	messages, err := s.service.ListArchived(ctx, userID, characterID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleUnarchive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID      string   `json:"user_id"`
		CharacterID string   `json:"character_id"`
		MessageIDs  []string `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if body.UserID == "" || body.CharacterID == "" {
		respondError(w, http.StatusBadRequest, errors.New("user_id and character_id are required"))
		return
	}
	if err := s.service.Unarchive(r.Context(), body.UserID, body.CharacterID, body.MessageIDs); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	userID, characterID := q.Get("user_id"), q.Get("character_id")
	if userID == "" || characterID == "" {
		respondError(w, http.StatusBadRequest, errors.New("user_id and character_id are required"))
		return
	}
	bundle, err := s.service.Export(ctx, userID, characterID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var bundle chatservice.ExportBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.service.Import(r.Context(), bundle); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrUpstream):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
