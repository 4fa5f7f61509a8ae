package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/apperr"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/authresolve"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
)

const maxUploadBytes = 20 << 20 // 20MB

type sourceRequest struct {
	BotProfileID    string  `json:"bot_profile_id"`
	ParentSourceID  *string `json:"parent_source_id,omitempty"`
	SourceType      string  `json:"source_type"`
	Content         string  `json:"content"`
	RefreshSchedule string  `json:"refresh_schedule,omitempty"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	switch r.Method {
	case http.MethodPost:
		s.createSource(w, r, auth)
	case http.MethodGet:
		sources, err := s.store.ListSources(r.Context(), auth.TenantID, listFilterFromQuery(r))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sources)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	var req sourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	src, err := s.buildSourceFromRequest(r.Context(), auth.TenantID, "", req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := s.store.CreateSource(r.Context(), src); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "source.create", "success", "tenant_id", auth.TenantID, "source_id", src.ID)
	writeJSON(w, http.StatusCreated, src)
}

// buildSourceFromRequest validates the bot profile and parent-source
// references and assembles a pending Source ready for persistence.
// selfID is the source's own id for cycle-checking; empty for a new create.
func (s *Server) buildSourceFromRequest(ctx context.Context, tenantID, selfID string, req sourceRequest) (domain.Source, error) {
	sourceType := domain.SourceType(strings.TrimSpace(req.SourceType))
	switch sourceType {
	case domain.SourceTypeText, domain.SourceTypeURL, domain.SourceTypeUpload:
	default:
		return domain.Source{}, apperr.InvalidInput("source_type must be one of text, url, upload")
	}
	if strings.TrimSpace(req.BotProfileID) == "" {
		return domain.Source{}, apperr.InvalidInput("bot_profile_id is required")
	}
	if err := s.validator.BotProfileExists(ctx, tenantID, req.BotProfileID); err != nil {
		return domain.Source{}, err
	}
	var parentID string
	if req.ParentSourceID != nil {
		parentID = strings.TrimSpace(*req.ParentSourceID)
	}
	if parentID != "" {
		if err := s.validator.SourceExists(ctx, tenantID, parentID); err != nil {
			return domain.Source{}, err
		}
		if err := s.validator.NoSourceCycle(ctx, tenantID, selfID, parentID); err != nil {
			return domain.Source{}, err
		}
	}
	refresh := domain.RefreshSchedule(req.RefreshSchedule)
	switch refresh {
	case "", domain.RefreshNone, domain.RefreshHourly, domain.RefreshDaily, domain.RefreshWeekly:
		if refresh == "" {
			refresh = domain.RefreshNone
		}
	default:
		return domain.Source{}, apperr.InvalidInput("refresh_schedule must be one of none, hourly, daily, weekly")
	}

	now := time.Now().UTC()
	var parentPtr *string
	if parentID != "" {
		parentPtr = &parentID
	}
	return domain.Source{
		ID: util.NewID(), TenantID: tenantID, BotProfileID: req.BotProfileID,
		ParentSourceID: parentPtr, SourceType: sourceType, Status: domain.SourceStatusPending,
		Content: req.Content, RefreshSchedule: refresh, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (s *Server) handleSourceByID(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sources/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "ingest":
			s.handleSourceIngestTrigger(w, r, auth, id)
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		src, ok, err := s.store.GetSource(r.Context(), id, auth.TenantID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !ok {
			writeAppError(w, apperr.NotFound("source not found"))
			return
		}
		writeJSON(w, http.StatusOK, src)
	case http.MethodPatch:
		s.updateSource(w, r, auth, id)
	case http.MethodDelete:
		if err := s.store.SoftDeleteSource(r.Context(), id, auth.TenantID); err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "source.delete", "success", "tenant_id", auth.TenantID, "source_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) updateSource(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, id string) {
	existing, ok, err := s.store.GetSource(r.Context(), id, auth.TenantID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		writeAppError(w, apperr.NotFound("source not found"))
		return
	}
	var req sourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if req.BotProfileID == "" {
		req.BotProfileID = existing.BotProfileID
	}
	if req.SourceType == "" {
		req.SourceType = string(existing.SourceType)
	}
	if req.ParentSourceID == nil {
		req.ParentSourceID = existing.ParentSourceID
	}
	if req.RefreshSchedule == "" {
		req.RefreshSchedule = string(existing.RefreshSchedule)
	}
	if req.Content == "" {
		req.Content = existing.Content
	}
	updated, err := s.buildSourceFromRequest(r.Context(), auth.TenantID, id, req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	updated.ID = existing.ID
	updated.Status = existing.Status
	updated.LastRefreshedAt = existing.LastRefreshedAt
	updated.LastError = existing.LastError
	updated.DocumentCount = existing.DocumentCount
	updated.ChunkCount = existing.ChunkCount
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateSource(r.Context(), updated); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "source.update", "success", "tenant_id", auth.TenantID, "source_id", id)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSourceIngestTrigger(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if _, ok, err := s.store.GetSource(r.Context(), id, auth.TenantID); err != nil {
		writeAppError(w, err)
		return
	} else if !ok {
		writeAppError(w, apperr.NotFound("source not found"))
		return
	}
	jobID, err := s.queue.Enqueue(r.Context(), "ingest_source", map[string]string{
		"source_id": id,
		"tenant_id": auth.TenantID,
	})
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "enqueue ingest job", err))
		return
	}
	s.audit(r, "source.ingest_trigger", "success", "tenant_id", auth.TenantID, "source_id", id, "job_id", jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "queued"})
}

type sourceBatchRequest struct {
	ParentSourceID string          `json:"parent_source_id"`
	Children       []sourceRequest `json:"children"`
}

func (s *Server) handleSourceBatch(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req sourceBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	req.ParentSourceID = strings.TrimSpace(req.ParentSourceID)
	if req.ParentSourceID == "" {
		writeError(w, http.StatusUnprocessableEntity, "parent_source_id is required")
		return
	}
	if err := s.validator.SourceExists(r.Context(), auth.TenantID, req.ParentSourceID); err != nil {
		writeAppError(w, err)
		return
	}
	if len(req.Children) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "children must contain at least one source")
		return
	}

	created := make([]domain.Source, 0, len(req.Children))
	for _, child := range req.Children {
		child.ParentSourceID = &req.ParentSourceID
		src, err := s.buildSourceFromRequest(r.Context(), auth.TenantID, "", child)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if err := s.store.CreateSource(r.Context(), src); err != nil {
			writeAppError(w, err)
			return
		}
		created = append(created, src)
	}
	s.audit(r, "source.batch_create", "success", "tenant_id", auth.TenantID, "parent_source_id", req.ParentSourceID, "count", len(created))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleSourceUpload(w http.ResponseWriter, r *http.Request, auth authresolve.AuthContext) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "request exceeds the upload size limit or is not valid multipart form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	botProfileID := strings.TrimSpace(r.FormValue("bot_profile_id"))
	if botProfileID == "" {
		writeError(w, http.StatusUnprocessableEntity, "bot_profile_id is required")
		return
	}
	if err := s.validator.BotProfileExists(r.Context(), auth.TenantID, botProfileID); err != nil {
		writeAppError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "a multipart file field named file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidInput, "read uploaded file", err))
		return
	}
	content, err := extractUploadContent(header.Filename, data)
	if err != nil {
		writeAppError(w, err)
		return
	}

	now := time.Now().UTC()
	src := domain.Source{
		ID: util.NewID(), TenantID: auth.TenantID, BotProfileID: botProfileID,
		SourceType: domain.SourceTypeUpload, Status: domain.SourceStatusPending,
		Content: content, RefreshSchedule: domain.RefreshNone, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.store.CreateSource(r.Context(), src); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "source.upload", "success", "tenant_id", auth.TenantID, "source_id", src.ID, "filename", header.Filename)
	writeJSON(w, http.StatusCreated, src)
}
