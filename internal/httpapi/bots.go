package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
)

// storedCredentials mirrors the unexported shape internal/ai.DecryptAPIKey
// expects inside BotProfile.EncryptedCredentials.
type storedCredentials struct {
	APIKey string `json:"api_key"`
}

type botProfileRequest struct {
	Name         string  `json:"name"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	ApiKey       string  `json:"api_key,omitempty"`
}

func (s *Server) handleBotProfiles(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	switch r.Method {
	case http.MethodPost:
		var req botProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Model = strings.TrimSpace(req.Model)
		if req.Name == "" || req.Model == "" {
			writeError(w, http.StatusUnprocessableEntity, "name and model are required")
			return
		}
		encrypted, err := s.encryptCredential(req.ApiKey)
		if err != nil {
			writeAppError(w, err)
			return
		}
		now := time.Now().UTC()
		bot := domain.BotProfile{
			ID: util.NewID(), TenantID: auth.TenantID, Name: req.Name, Model: req.Model,
			SystemPrompt: req.SystemPrompt, Temperature: req.Temperature, MaxTokens: req.MaxTokens,
			EncryptedCredentials: encrypted, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := s.store.CreateBotProfile(r.Context(), bot); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "bot_profile.create", "success", "tenant_id", auth.TenantID, "bot_profile_id", bot.ID)
		writeJSON(w, http.StatusCreated, bot)
	case http.MethodGet:
		bots, err := s.store.ListBotProfiles(r.Context(), auth.TenantID, listFilterFromQuery(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bots)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) encryptCredential(apiKey string) ([]byte, error) {
	if apiKey == "" || s.cipher == nil {
		return nil, nil
	}
	plain, err := json.Marshal(storedCredentials{APIKey: apiKey})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal bot credential", err)
	}
	encrypted, err := s.cipher.Encrypt(plain)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encrypt bot credential", err)
	}
	return encrypted, nil
}

func (s *Server) handleBotProfileByID(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/bot-profiles/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		bot, ok, err := s.store.GetBotProfile(r.Context(), id, auth.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeAppError(w, apperr.NotFound("bot profile not found"))
			return
		}
		writeJSON(w, http.StatusOK, bot)
	case http.MethodPatch:
		bot, ok, err := s.store.GetBotProfile(r.Context(), id, auth.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeAppError(w, apperr.NotFound("bot profile not found"))
			return
		}
		var req botProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
		if strings.TrimSpace(req.Name) != "" {
			bot.Name = strings.TrimSpace(req.Name)
		}
		if strings.TrimSpace(req.Model) != "" {
			bot.Model = strings.TrimSpace(req.Model)
		}
		bot.SystemPrompt = req.SystemPrompt
		bot.Temperature = req.Temperature
		bot.MaxTokens = req.MaxTokens
		if req.ApiKey != "" {
			encrypted, err := s.encryptCredential(req.ApiKey)
			if err != nil {
				writeAppError(w, err)
				return
			}
			bot.EncryptedCredentials = encrypted
		}
		bot.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateBotProfile(r.Context(), bot); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "bot_profile.update", "success", "tenant_id", auth.TenantID, "bot_profile_id", id)
		writeJSON(w, http.StatusOK, bot)
	case http.MethodDelete:
		if err := s.store.SoftDeleteBotProfile(r.Context(), id, auth.TenantID); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "bot_profile.delete", "success", "tenant_id", auth.TenantID, "bot_profile_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

