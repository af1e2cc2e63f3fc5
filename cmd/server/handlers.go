package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/regdocs/ragcore"
	"github.com/regdocs/ragcore/chunker"
	"github.com/regdocs/ragcore/embedclient"
	"github.com/regdocs/ragcore/kb"
	"github.com/regdocs/ragcore/llm"
	"github.com/regdocs/ragcore/parser"
	"github.com/regdocs/ragcore/rag"
	"github.com/regdocs/ragcore/regulatory"
	"github.com/regdocs/ragcore/session"
	"github.com/regdocs/ragcore/uploadcache"
)

type handler struct {
	cfg      ragcore.Config
	kb       *kb.KnowledgeBase
	sessions *session.Registry
	embedder *embedclient.Client
	embed    llm.Provider
	chat     llm.Provider
	rag      *rag.Orchestrator
	enhancer *regulatory.Enhancer
	uploads  *uploadcache.Cache

	parsers *parser.Registry
}

// registry lazily builds the parser registry on first use.
func (h *handler) registry() *parser.Registry {
	if h.parsers == nil {
		h.parsers = parser.NewRegistry()
	}
	return h.parsers
}

// resolveAPIKey returns the request-supplied key, falling back to the
// server's configured fallback key (OPENAI_API_KEY).
func (h *handler) resolveAPIKey(requestKey string) string {
	if requestKey != "" {
		return requestKey
	}
	return h.cfg.FallbackAPIKey
}

// providersFor returns chat/embedding providers and an embedding client
// bound to apiKey. If apiKey matches the server's fallback key, the
// process-wide providers are reused; otherwise fresh ones are built for
// this request, matching the "bind to whichever key the caller supplies"
// model (§4.5).
func (h *handler) providersFor(apiKey string) (llm.Provider, llm.Provider, *embedclient.Client, error) {
	if apiKey == "" || apiKey == h.cfg.FallbackAPIKey {
		return h.embed, h.chat, h.embedder, nil
	}

	embedProvider, err := llm.NewProvider(llm.Config{
		Model:   h.cfg.Embedding.Model,
		BaseURL: h.cfg.Embedding.BaseURL,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	chatProvider, err := llm.NewProvider(llm.Config{
		Model:   h.cfg.Chat.Model,
		BaseURL: h.cfg.Chat.BaseURL,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	client := embedclient.New(embedProvider, h.cfg.EmbedConcurrency)
	return embedProvider, chatProvider, client, nil
}

// ensureBound binds the knowledge base to apiKey if it is not already
// ready under that key's fingerprint. Bind is cheap (a no-op) when the
// fingerprint already matches.
func (h *handler) ensureBound(ctx context.Context, client *embedclient.Client, apiKey string) error {
	if apiKey == "" {
		return ragcore.ErrKnowledgeBaseNotReady
	}
	return h.kb.Bind(ctx, client, apiKey)
}

// POST /api/chat
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserMessage string `json:"user_message"`
		Model       string `json:"model,omitempty"`
		APIKey      string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserMessage == "" {
		writeError(w, http.StatusBadRequest, "user_message is required")
		return
	}

	apiKey := h.resolveAPIKey(req.APIKey)
	_, chatProvider, _, err := h.providersFor(apiKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to configure chat provider")
		slog.Error("configuring chat provider", "error", err)
		return
	}

	model := req.Model
	if model == "" {
		model = h.cfg.Chat.Model
	}

	orch := &rag.Orchestrator{Chatter: chatProvider, Model: model}
	paragraphs, errs := orch.RunDirect(r.Context(), req.UserMessage)
	streamParagraphs(w, paragraphs, errs)
}

// POST /api/rag-chat
func (h *handler) handleRAGChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserMessage string `json:"user_message"`
		SessionID   string `json:"session_id"`
		Model       string `json:"model,omitempty"`
		APIKey      string `json:"api_key"`
		UseRAG      *bool  `json:"use_rag,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserMessage == "" {
		writeError(w, http.StatusBadRequest, "user_message is required")
		return
	}

	apiKey := h.resolveAPIKey(req.APIKey)
	embedProvider, chatProvider, client, err := h.providersFor(apiKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to configure providers")
		slog.Error("configuring providers", "error", err)
		return
	}

	h.sessions.GetOrCreate(req.SessionID, apiKey)

	model := req.Model
	if model == "" {
		model = h.cfg.Chat.Model
	}

	useRAG := req.UseRAG == nil || *req.UseRAG
	if !useRAG {
		orch := &rag.Orchestrator{Chatter: chatProvider, Model: model}
		paragraphs, errs := orch.RunDirect(r.Context(), req.UserMessage)
		streamParagraphs(w, paragraphs, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	if err := h.ensureBound(ctx, client, apiKey); err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	orch := rag.New(embedProvider, chatProvider, h.kb, model)
	paragraphs, errs := orch.Run(r.Context(), req.UserMessage, h.cfg.RetrievalK)
	streamParagraphs(w, paragraphs, errs)
}

// POST /api/regulatory-rag-chat
func (h *handler) handleRegulatoryRAGChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserMessage     string   `json:"user_message"`
		SessionID       string   `json:"session_id"`
		UserRole        string   `json:"user_role,omitempty"`
		Model           string   `json:"model,omitempty"`
		APIKey          string   `json:"api_key"`
		UseRAG          *bool    `json:"use_rag,omitempty"`
		DocTypes        []string `json:"doc_types,omitempty"`
		PrioritySources []string `json:"priority_sources,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserMessage == "" {
		writeError(w, http.StatusBadRequest, "user_message is required")
		return
	}

	apiKey := h.resolveAPIKey(req.APIKey)
	embedProvider, chatProvider, client, err := h.providersFor(apiKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to configure providers")
		slog.Error("configuring providers", "error", err)
		return
	}

	h.sessions.GetOrCreate(req.SessionID, apiKey)

	model := req.Model
	if model == "" {
		model = h.cfg.Chat.Model
	}

	useRAG := req.UseRAG == nil || *req.UseRAG
	if !useRAG {
		orch := &rag.Orchestrator{Chatter: chatProvider, Model: model}
		paragraphs, errs := orch.RunDirect(r.Context(), req.UserMessage)
		streamParagraphs(w, paragraphs, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	if err := h.ensureBound(ctx, client, apiKey); err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	base := rag.New(embedProvider, chatProvider, h.kb, model)
	enhancer := regulatory.New(base, h.kb)
	result := enhancer.Run(r.Context(), req.UserMessage, regulatory.Options{
		Role:            req.UserRole,
		K:               h.cfg.RetrievalK,
		DocTypes:        req.DocTypes,
		PrioritySources: req.PrioritySources,
	})
	streamParagraphs(w, result.Paragraphs, result.Errs)
}

// POST /api/upload-document
func (h *handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data with a 'file' part")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' part")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	sessionID := r.FormValue("session_id")
	apiKey := h.resolveAPIKey(r.FormValue("api_key"))

	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		ext = ext[1:]
	}
	p, ok := h.registry().Get(ext)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: .%s", ext))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		slog.Error("reading upload", "filename", filename, "error", err)
		return
	}

	sess := h.sessions.GetOrCreate(sessionID, apiKey)

	if h.uploads != nil {
		matched, err := h.uploads.MatchesExisting(ctx, sess.ID, filename, content)
		if err != nil {
			slog.Warn("checking upload cache", "filename", filename, "error", err)
		} else if matched {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":         true,
				"message":         fmt.Sprintf("%s already uploaded with identical content; skipped re-ingestion", filename),
				"session_id":      sess.ID,
				"document_count":  h.kb.DocumentCount(),
				"filename":        filename,
				"doc_type":        "",
				"regulatory_type": "",
				"chunks_created":  0,
			})
			return
		}
	}

	tmp, err := os.CreateTemp("", "ragcore-upload-*-"+filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		slog.Error("staging upload", "error", err)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		slog.Error("writing staged upload", "error", err)
		return
	}
	tmp.Close()

	fragments, err := p.Parse(ctx, tmpPath, filename)
	if err != nil {
		var parseErr *parser.ParseError
		if errors.As(err, &parseErr) {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse document: "+err.Error())
		return
	}

	c := chunker.New(chunker.Config{ChunkSize: h.cfg.ChunkSize, Overlap: h.cfg.ChunkOverlap})
	chunks := c.ChunkFragments(fragments)
	kbChunks := make([]kb.Chunk, len(chunks))
	for i, ch := range chunks {
		kbChunks[i] = kb.Chunk{Text: ch.Text, Metadata: ch.Metadata}
	}

	_, _, client, err := h.providersFor(apiKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to configure embedding provider")
		slog.Error("configuring embedding provider", "error", err)
		return
	}
	if err := h.ensureBound(ctx, client, apiKey); err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	n, err := h.kb.AddDocument(ctx, client, filename, kbChunks)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	h.sessions.RecordUpload(sess.ID, filename)

	if h.uploads != nil {
		if err := h.uploads.Put(ctx, sess.ID, filename, content); err != nil {
			slog.Warn("caching raw upload", "filename", filename, "error", err)
		}
	}

	docType, regulatoryType := "", ""
	if len(kbChunks) > 0 {
		docType = kbChunks[0].Metadata["doc_type"]
		regulatoryType = kbChunks[0].Metadata["regulatory_type"]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"message":         fmt.Sprintf("uploaded %s", filename),
		"session_id":      sess.ID,
		"document_count":  h.kb.DocumentCount(),
		"filename":        filename,
		"doc_type":        docType,
		"regulatory_type": regulatoryType,
		"chunks_created":  n,
	})
}

// GET /api/global-knowledge-base
func (h *handler) handleGlobalKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	state := h.kb.State()
	resp := map[string]interface{}{
		"status":                   state.String(),
		"initialized":              state == kb.Ready,
		"documents":                h.kb.PreloadedFilenames(),
		"user_uploaded_documents":  h.kb.UserUploadedFilenames(),
		"document_count":           h.kb.DocumentCount(),
		"chunk_count":              h.kb.ChunkCount(),
		"description":              "Global regulatory knowledge base shared across all sessions.",
	}
	if state != kb.Ready {
		resp["error"] = "knowledge base has not completed binding to an API key yet"
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/sessions
func (h *handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	all := h.sessions.All()
	out := make([]map[string]interface{}, len(all))
	for i, s := range all {
		out[i] = map[string]interface{}{
			"session_id":         s.ID,
			"created_at":         s.CreatedAt,
			"uploaded_documents": s.Filenames(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_sessions": h.sessions.Len(),
		"sessions":       out,
	})
}

// GET /api/session/{id}
func (h *handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := h.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":         sess.ID,
		"created_at":         sess.CreatedAt,
		"uploaded_documents": sess.Filenames(),
	})
}

// DELETE /api/session/{id}
func (h *handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.sessions.Delete(id) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "session deleted",
	})
}

// DELETE /api/document/{filename}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if r.URL.Query().Get("api_key") == "" && h.cfg.FallbackAPIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	removed, err := h.kb.RemoveDocument(filename)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	if removed == 0 {
		writeError(w, http.StatusNotFound, "unknown document")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":                  true,
		"message":                  fmt.Sprintf("removed %s", filename),
		"remaining_user_documents": len(h.kb.UserUploadedFilenames()),
		"total_documents":          h.kb.DocumentCount(),
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"global_kb": map[string]interface{}{
			"state":          h.kb.State().String(),
			"document_count": h.kb.DocumentCount(),
			"chunk_count":    h.kb.ChunkCount(),
		},
	})
}

// statusForError maps the error taxonomy (§7) to an HTTP status code and
// a client-facing message, using errors.Is/errors.As rather than string
// matching.
func statusForError(err error) (int, string) {
	var parseErr *parser.ParseError
	switch {
	case errors.Is(err, kb.ErrProtectedDocument), errors.Is(err, ragcore.ErrProtectedDocument):
		return http.StatusBadRequest, "document is preloaded and cannot be modified"
	case errors.Is(err, kb.ErrNotReady), errors.Is(err, ragcore.ErrKnowledgeBaseNotReady), errors.Is(err, kb.ErrNotSeeded):
		return http.StatusServiceUnavailable, "knowledge base is not ready yet"
	case errors.Is(err, ragcore.ErrUnsupportedFileType):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &parseErr):
		return http.StatusBadRequest, parseErr.Error()
	case errors.Is(err, llm.ErrEmbedding), errors.Is(err, llm.ErrChat):
		return http.StatusInternalServerError, "upstream model provider request failed: " + err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// streamParagraphs writes each paragraph separated by a blank line,
// flushing after every write so the client observes incremental output.
func streamParagraphs(w http.ResponseWriter, paragraphs <-chan string, errs <-chan error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)

	first := true
	for p := range paragraphs {
		if !first {
			io.WriteString(w, "\n\n")
		}
		io.WriteString(w, p)
		first = false
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := <-errs; err != nil {
		if !first {
			io.WriteString(w, "\n\n")
		}
		io.WriteString(w, "Error: "+err.Error())
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
