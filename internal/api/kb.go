package api

import (
	"encoding/json"
	"net/http"
)

const (
	defaultSearchLimit   = 5
	defaultFindLimit     = 10
	defaultRetrieveLimit = 3
	maxBodySize          = 1 << 20 // 1 MB
)

// queryRequest is the JSON body for search, find, and retrieve.
type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// addRequest is the JSON body for POST /api/kb/add.
type addRequest struct {
	Path string `json:"path"`
}

// memoryRequest is the JSON body for POST /api/kb/memory.
type memoryRequest struct {
	Content string `json:"content"`
}

// sessionRequest is the JSON body for POST /api/kb/sessions.
type sessionRequest struct {
	Title string `json:"title"`
}

type resultResponse struct {
	Result string `json:"result"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.kb.Ready() {
		s.writeJSON(w, http.StatusOK, statusResponse{
			Status:  "disabled",
			Message: "knowledge base not initialized",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Ready: true})
}

// requireReady enforces the fast-fail readiness contract: no request
// reaches the bridge before the engine is initialized.
func (s *Server) requireReady(w http.ResponseWriter) bool {
	if !s.kb.Ready() {
		s.writeError(w, http.StatusServiceUnavailable, "knowledge base not initialized")
		return false
	}
	return true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req queryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.Search(r.Context(), req.Query, req.Limit)})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req queryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultFindLimit
	}

	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.Find(r.Context(), req.Query, req.Limit)})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req addRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.AddResource(r.Context(), req.Path)})
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req memoryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.AddMemory(r.Context(), req.Content)})
}

func (s *Server) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req sessionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.RecordSession(r.Context(), req.Title)})
}

func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	uri := r.URL.Query().Get("uri")
	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.ListDirectory(r.Context(), uri)})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.Read(r.Context(), uri)})
}

func (s *Server) handleAbstract(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.Abstract(r.Context(), uri)})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	s.writeJSON(w, http.StatusOK, resultResponse{Result: s.kb.ListSessions(r.Context())})
}

func (s *Server) handleRetrieveContext(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req queryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultRetrieveLimit
	}

	// An empty context is a valid outcome: augmentation is best-effort.
	s.writeJSON(w, http.StatusOK, map[string]string{
		"context": s.kb.RetrieveContext(r.Context(), req.Query, req.Limit),
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
