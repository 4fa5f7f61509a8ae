package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/rag"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
)

type createChatRequest struct {
	BotProfileID string `json:"bot_profile_id"`
	Title        string `json:"title,omitempty"`
	Message      string `json:"message"`
	Stream       bool   `json:"stream,omitempty"`
}

type usagePayload struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

type sendChatResponse struct {
	ChatID        string             `json:"chat_id"`
	MessageID     string             `json:"message_id"`
	Content       string             `json:"content"`
	ContextChunks []rag.ContextChunk `json:"context_chunks"`
	Usage         usagePayload       `json:"usage"`
}

// handleChatCollection serves GET /v1/chat (list) and POST /v1/chat
// (start a new chat + send its first message, honoring ?stream=true).
func (s *Server) handleChatCollection(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	switch r.Method {
	case http.MethodGet:
		chats, err := s.store.ListChats(r.Context(), auth.TenantID, listFilterFromQuery(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chats)
	case http.MethodPost:
		s.sendChatMessage(w, r, auth, "")
	default:
		methodNotAllowed(w)
	}
}

// handleChatByID serves chat metadata, history, feedback, and sending a
// follow-up message into an existing chat: GET /v1/chat/{id}[/messages],
// POST /v1/chat/{id}/messages, PATCH /v1/chat/{id}/messages/{mid}/feedback.
func (s *Server) handleChatByID(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/chat/")
	parts := strings.SplitN(rest, "/", 4)
	chatID := parts[0]
	if chatID == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		chat, ok, err := s.store.GetChat(r.Context(), chatID, auth.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeAppError(w, apperr.NotFound("chat not found"))
			return
		}
		writeJSON(w, http.StatusOK, chat)
		return
	}

	if parts[1] != "messages" {
		http.NotFound(w, r)
		return
	}

	switch len(parts) {
	case 2:
		switch r.Method {
		case http.MethodGet:
			s.listChatMessages(w, r, auth, chatID)
		case http.MethodPost:
			s.sendChatMessage(w, r, auth, chatID)
		default:
			methodNotAllowed(w)
		}
	case 4:
		if parts[3] != "feedback" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		s.setMessageFeedback(w, r, auth, chatID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) listChatMessages(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, chatID string) {
	if _, ok, err := s.store.GetChat(r.Context(), chatID, auth.TenantID); err != nil {
		writeAppError(w, err)
		return
	} else if !ok {
		writeAppError(w, apperr.NotFound("chat not found"))
		return
	}
	msgs, err := s.store.ListMessagesByChat(r.Context(), chatID, auth.TenantID, 0)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// sendChatMessage resolves (or creates) the target chat and its bot
// profile, then runs one RAG turn, streaming via SSE when ?stream=true.
func (s *Server) sendChatMessage(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, existingChatID string) {
	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}

	var chat domain.Chat
	if existingChatID != "" {
		existing, ok, err := s.store.GetChat(r.Context(), existingChatID, auth.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeAppError(w, apperr.NotFound("chat not found"))
			return
		}
		chat = existing
	} else {
		if strings.TrimSpace(req.BotProfileID) == "" {
			writeError(w, http.StatusUnprocessableEntity, "bot_profile_id is required to start a new chat")
			return
		}
		if err := s.validator.BotProfileExists(r.Context(), auth.TenantID, req.BotProfileID); err != nil {
			writeAppError(w, err)
			return
		}
		now := time.Now().UTC()
		chat = domain.Chat{
			ID: util.NewID(), TenantID: auth.TenantID, BotProfileID: req.BotProfileID,
			UserID: auth.UserID, Title: req.Title, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.store.CreateChat(r.Context(), chat); err != nil {
			writeAppError(w, err)
			return
		}
	}

	bot, ok, err := s.store.GetBotProfile(r.Context(), chat.BotProfileID, auth.TenantID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		writeAppError(w, apperr.NotFound("bot profile for chat not found"))
		return
	}

	if req.Stream || r.URL.Query().Get("stream") == "true" {
		s.streamChatMessage(w, r, auth, bot, chat, req.Message)
		return
	}

	resp, err := s.rag.RunChatTurn(r.Context(), auth.TenantID, bot, chat, req.Message)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "chat.send", "success", "tenant_id", auth.TenantID, "chat_id", chat.ID, "message_id", resp.MessageID)
	writeJSON(w, http.StatusOK, sendChatResponse{
		ChatID: chat.ID, MessageID: resp.MessageID, Content: resp.Content, ContextChunks: resp.ContextChunks,
		Usage: usagePayload{Model: bot.Model, PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens},
	})
}

type sseSourcesPayload struct {
	Sources []rag.ContextChunk `json:"sources"`
}

type sseDeltaPayload struct {
	Content string `json:"content"`
}

type sseDonePayload struct {
	ChatID    string       `json:"chat_id"`
	MessageID string       `json:"message_id"`
	Usage     usagePayload `json:"usage"`
}

type sseErrorPayload struct {
	Detail string `json:"detail"`
}

// streamChatMessage bridges the orchestrator's tagged StreamEvent channel
// onto SSE frames, per the sources -> delta* -> done|error event contract.
func (s *Server) streamChatMessage(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, bot domain.BotProfile, chat domain.Chat, message string) {
	stream, err := newSSEWriter(w)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "open sse stream", err))
		return
	}

	runErr := s.rag.RunChatTurnStream(r.Context(), auth.TenantID, bot, chat, message, func(e rag.StreamEvent) error {
		switch e.Kind {
		case rag.EventSources:
			return stream.writeEvent("sources", sseSourcesPayload{Sources: e.Sources})
		case rag.EventDelta:
			return stream.writeEvent("delta", sseDeltaPayload{Content: e.Delta})
		case rag.EventDone:
			return stream.writeEvent("done", sseDonePayload{
				ChatID: e.Done.ChatID, MessageID: e.Done.MessageID,
				Usage: usagePayload{Model: bot.Model, PromptTokens: e.Done.Usage.PromptTokens, CompletionTokens: e.Done.Usage.CompletionTokens},
			})
		case rag.EventError:
			detail := "stream failed"
			if e.Err != nil {
				detail = e.Err.Error()
			}
			return stream.writeEvent("error", sseErrorPayload{Detail: detail})
		default:
			return nil
		}
	})

	if runErr != nil {
		s.audit(r, "chat.send_stream", "failure", "tenant_id", auth.TenantID, "chat_id", chat.ID, "reason", runErr.Error())
		return
	}
	s.audit(r, "chat.send_stream", "success", "tenant_id", auth.TenantID, "chat_id", chat.ID)
}

type feedbackRequest struct {
	Feedback *string `json:"feedback"`
}

func (s *Server) setMessageFeedback(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, chatID, messageID string) {
	if _, ok, err := s.store.GetChat(r.Context(), chatID, auth.TenantID); err != nil {
		writeAppError(w, err)
		return
	} else if !ok {
		writeAppError(w, apperr.NotFound("chat not found"))
		return
	}
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	var feedback *domain.Feedback
	if req.Feedback != nil {
		switch domain.Feedback(*req.Feedback) {
		case domain.FeedbackPositive, domain.FeedbackNegative:
			f := domain.Feedback(*req.Feedback)
			feedback = &f
		default:
			writeError(w, http.StatusUnprocessableEntity, "feedback must be one of positive, negative, or null")
			return
		}
	}
	if err := s.store.SetMessageFeedback(r.Context(), messageID, auth.TenantID, feedback); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "chat.feedback", "success", "tenant_id", auth.TenantID, "chat_id", chatID, "message_id", messageID)
	w.WriteHeader(http.StatusNoContent)
}
